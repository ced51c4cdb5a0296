package systemd

import (
	"fmt"
	"strings"
	"sync"

	systemdDbus "github.com/coreos/go-systemd/v22/dbus"

	"github.com/go-oci/ocirt/libcontainer/cgroups"
	"github.com/go-oci/ocirt/libcontainer/cgroups/fs"
	"github.com/go-oci/ocirt/libcontainer/configs"
)

// legacyManager drives cgroup v1 through a systemd transient unit:
// systemd creates and owns the top-level cgroup, an embedded fs
// Manager handles the per-controller files underneath it exactly the
// way a non-systemd v1 container would.
type legacyManager struct {
	mu       sync.Mutex
	cgroups  *configs.Cgroup
	rootless bool
	fs       cgroups.Manager
}

func NewLegacyManager(cg *configs.Cgroup, rootless bool) cgroups.Manager {
	return &legacyManager{cgroups: cg, rootless: rootless}
}

func (m *legacyManager) Apply(pid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, err := dbusConnection(m.rootless)
	if err != nil {
		return err
	}

	name := unitName(m.cgroups)
	slice := "system.slice"
	if m.cgroups.Parent != "" {
		slice = m.cgroups.Parent
	}

	properties := []systemdDbus.Property{
		systemdDbus.PropDescription("ocirt container " + name),
		systemdDbus.PropWants(slice),
		newProp("DefaultDependencies", false),
		newProp("MemoryAccounting", true),
		newProp("CPUAccounting", true),
		newProp("BlockIOAccounting", true),
		newProp("TasksAccounting", true),
		newProp("Delegate", true),
	}
	if pid != 0 {
		properties = append(properties, newProp("PIDs", []uint32{uint32(pid)}))
	}

	if err := startUnit(conn, name, properties); err != nil {
		return fmt.Errorf("unable to start unit %q: %w", name, err)
	}

	paths, err := m.unitCgroupPaths(name)
	if err != nil {
		return err
	}
	m.fs = fs.NewManager(m.cgroups, paths, m.rootless)
	return nil
}

// unitCgroupPaths resolves the per-controller cgroup paths systemd
// just created for name, the same way the fs Manager would compute
// them for a non-delegated container but rooted under the unit.
func (m *legacyManager) unitCgroupPaths(name string) (map[string]string, error) {
	slice := "system.slice"
	if m.cgroups.Parent != "" {
		slice = m.cgroups.Parent
	}
	paths := make(map[string]string)
	for _, ctrl := range []string{"cpu", "cpuacct", "cpuset", "memory", "pids", "blkio", "hugetlb", "devices", "freezer", "net_cls", "net_prio", "perf_event"} {
		mount, err := cgroups.FindCgroupMountpoint("/sys/fs/cgroup", ctrl)
		if err != nil {
			continue
		}
		paths[ctrl] = joinCgroupPath(mount, slice, name)
	}
	return paths, nil
}

func joinCgroupPath(mount, slice, unit string) string {
	return mount + "/" + strings.TrimSuffix(slice, "/") + "/" + unit
}

func (m *legacyManager) Destroy() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, err := dbusConnection(m.rootless)
	if err != nil {
		return err
	}
	if err := stopUnit(conn, unitName(m.cgroups)); err != nil {
		return err
	}
	if m.fs != nil {
		return m.fs.Destroy()
	}
	return nil
}

func (m *legacyManager) Path(subsys string) string {
	if m.fs == nil {
		return ""
	}
	return m.fs.Path(subsys)
}

func (m *legacyManager) GetStats() (*cgroups.Stats, error) {
	if m.fs == nil {
		return cgroups.NewStats(), nil
	}
	return m.fs.GetStats()
}

func (m *legacyManager) Set(container *configs.Config) error {
	conn, err := dbusConnection(m.rootless)
	if err != nil {
		return err
	}
	props := resourcesToProperties(container.Cgroups.Resources)
	if len(props) > 0 {
		if err := setUnitProperties(conn, unitName(m.cgroups), props...); err != nil {
			return err
		}
	}
	if m.fs == nil {
		return nil
	}
	return m.fs.Set(container)
}

func (m *legacyManager) Freeze(state configs.FreezerState) error {
	if m.fs == nil {
		return fmt.Errorf("cannot toggle freezer: cgroup not applied")
	}
	return m.fs.Freeze(state)
}

func (m *legacyManager) GetPids() ([]int, error) {
	if m.fs == nil {
		return nil, nil
	}
	return m.fs.GetPids()
}

func (m *legacyManager) GetAllPids() ([]int, error) {
	if m.fs == nil {
		return nil, nil
	}
	return m.fs.GetAllPids()
}

func (m *legacyManager) GetPaths() map[string]string {
	if m.fs == nil {
		return nil
	}
	return m.fs.GetPaths()
}

func (m *legacyManager) GetCgroups() (*configs.Cgroup, error) {
	return m.cgroups, nil
}

func (m *legacyManager) GetFreezerState() (configs.FreezerState, error) {
	if m.fs == nil {
		return configs.Undefined, nil
	}
	return m.fs.GetFreezerState()
}

func (m *legacyManager) Exists() bool {
	return m.fs != nil && m.fs.Exists()
}

func (m *legacyManager) Type() cgroups.CgroupType {
	return cgroups.CgroupV1Systemd
}

// resourcesToProperties renders the subset of Resources systemd itself
// understands (everything else is left to the embedded fs Manager's
// direct cgroupfs writes once Apply has resolved the unit's paths).
func resourcesToProperties(r *configs.Resources) []systemdDbus.Property {
	if r == nil {
		return nil
	}
	var props []systemdDbus.Property
	if r.Memory != 0 {
		props = append(props, newProp("MemoryMax", uint64(r.Memory)))
	}
	if r.MemoryReservation != 0 {
		props = append(props, newProp("MemoryLow", uint64(r.MemoryReservation)))
	}
	if r.CpuShares != 0 {
		props = append(props, newProp("CPUShares", r.CpuShares))
	}
	if r.CpuQuota != 0 && r.CpuPeriod != 0 {
		props = append(props, newProp("CPUQuotaPerSecUSec", uint64(r.CpuQuota)*1000000/r.CpuPeriod))
	}
	if r.BlkioWeight != 0 {
		props = append(props, newProp("BlockIOWeight", uint64(r.BlkioWeight)))
	}
	if r.PidsLimit > 0 {
		props = append(props, newProp("TasksMax", uint64(r.PidsLimit)))
	}
	if len(r.Devices) > 0 {
		props = append(props, newProp("DevicePolicy", "strict"))
	}
	return props
}
