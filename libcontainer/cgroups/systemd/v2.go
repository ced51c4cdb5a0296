package systemd

import (
	"fmt"
	"sync"

	systemdDbus "github.com/coreos/go-systemd/v22/dbus"

	"github.com/go-oci/ocirt/libcontainer/cgroups"
	"github.com/go-oci/ocirt/libcontainer/cgroups/fs2"
	"github.com/go-oci/ocirt/libcontainer/configs"
)

// unifiedManager is legacyManager's v2 counterpart: systemd creates the
// transient scope, and the resulting unified cgroup directory is then
// driven with an embedded fs2 Manager.
type unifiedManager struct {
	mu       sync.Mutex
	cgroups  *configs.Cgroup
	rootless bool
	dirPath  string
	fs2      cgroups.Manager
}

func NewUnifiedManager(cg *configs.Cgroup, dirPath string, rootless bool) cgroups.Manager {
	return &unifiedManager{cgroups: cg, rootless: rootless, dirPath: dirPath}
}

func (m *unifiedManager) Apply(pid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, err := dbusConnection(m.rootless)
	if err != nil {
		return err
	}

	name := unitName(m.cgroups)
	properties := []systemdDbus.Property{
		systemdDbus.PropDescription("ocirt container " + name),
		newProp("DefaultDependencies", false),
		newProp("MemoryAccounting", true),
		newProp("CPUAccounting", true),
		newProp("IOAccounting", true),
		newProp("TasksAccounting", true),
		newProp("Delegate", true),
	}
	if pid != 0 {
		properties = append(properties, newProp("PIDs", []uint32{uint32(pid)}))
	}

	if err := startUnit(conn, name, properties); err != nil {
		return fmt.Errorf("unable to start unit %q: %w", name, err)
	}

	dirPath := m.dirPath
	if dirPath == "" {
		slice := "system.slice"
		if m.cgroups.Parent != "" {
			slice = m.cgroups.Parent
		}
		dirPath = "/sys/fs/cgroup/" + slice + "/" + name
	}
	m.dirPath = dirPath

	fsMgr, err := fs2.NewManager(m.cgroups, dirPath, m.rootless)
	if err != nil {
		return err
	}
	m.fs2 = fsMgr
	return nil
}

func (m *unifiedManager) Destroy() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, err := dbusConnection(m.rootless)
	if err != nil {
		return err
	}
	if err := stopUnit(conn, unitName(m.cgroups)); err != nil {
		return err
	}
	if m.fs2 != nil {
		return m.fs2.Destroy()
	}
	return nil
}

func (m *unifiedManager) Path(subsys string) string { return m.dirPath }

func (m *unifiedManager) GetStats() (*cgroups.Stats, error) {
	if m.fs2 == nil {
		return cgroups.NewStats(), nil
	}
	return m.fs2.GetStats()
}

func (m *unifiedManager) Set(container *configs.Config) error {
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
	if m.fs2 == nil {
		return nil
	}
	return m.fs2.Set(container)
}

func (m *unifiedManager) Freeze(state configs.FreezerState) error {
	if m.fs2 == nil {
		return fmt.Errorf("cannot toggle freezer: cgroup not applied")
	}
	return m.fs2.Freeze(state)
}

func (m *unifiedManager) GetPids() ([]int, error) {
	if m.fs2 == nil {
		return nil, nil
	}
	return m.fs2.GetPids()
}

func (m *unifiedManager) GetAllPids() ([]int, error) {
	if m.fs2 == nil {
		return nil, nil
	}
	return m.fs2.GetAllPids()
}

func (m *unifiedManager) GetPaths() map[string]string {
	return map[string]string{"": m.dirPath}
}

func (m *unifiedManager) GetCgroups() (*configs.Cgroup, error) {
	return m.cgroups, nil
}

func (m *unifiedManager) GetFreezerState() (configs.FreezerState, error) {
	if m.fs2 == nil {
		return configs.Undefined, nil
	}
	return m.fs2.GetFreezerState()
}

func (m *unifiedManager) Exists() bool {
	return m.fs2 != nil && m.fs2.Exists()
}

func (m *unifiedManager) Type() cgroups.CgroupType {
	return cgroups.CgroupV2Systemd
}
