// Package fs implements the cgroup v1 Manager: one subdirectory per
// controller, discovered via /proc/self/mountinfo and joined/configured
// independently.
package fs

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/go-oci/ocirt/libcontainer/cgroups"
	"github.com/go-oci/ocirt/libcontainer/configs"
	"github.com/go-oci/ocirt/libcontainer/utils"
)

var subsystems = []subsystem{
	&CpusetGroup{},
	&DevicesGroup{},
	&MemoryGroup{},
	&CpuGroup{},
	&CpuacctGroup{},
	&PidsGroup{},
	&BlkioGroup{},
	&HugetlbGroup{},
	&NetClsGroup{},
	&NetPrioGroup{},
	&PerfEventGroup{},
	&FreezerGroup{},
	&RdmaGroup{},
	&NameGroup{GroupName: "name=systemd", Join: true},
}

type subsystem interface {
	// Name returns the name of the subsystem.
	Name() string
	// GetStats fills in stats for the cgroup at path.
	GetStats(path string, stats *cgroups.Stats) error
	// Apply creates and joins the cgroup represented by cgroupData.
	Apply(path string, d *cgroupData) error
	// Set applies the resource limits in cgroup.
	Set(path string, cgroup *configs.Cgroup) error
	// Clone copies a subsystem's inheritable settings from source to a
	// freshly created dest directory.
	Clone(source, dest string) error
}

type manager struct {
	mu       sync.Mutex
	cgroups  *configs.Cgroup
	rootless bool
	paths    map[string]string
}

// NewManager builds a v1 Manager. paths, when non-nil, are pre-resolved
// subsystem paths to join rather than compute (used when restoring a
// container's state from disk).
func NewManager(cg *configs.Cgroup, paths map[string]string, rootless bool) cgroups.Manager {
	return &manager{cgroups: cg, paths: paths, rootless: rootless}
}

var cgroupRootLock sync.Mutex
var cgroupRoot string

const defaultCgroupRoot = "/sys/fs/cgroup"

func tryDefaultCgroupRoot() string {
	var st, pst unix.Stat_t

	if err := unix.Lstat(defaultCgroupRoot, &st); err != nil || st.Mode&unix.S_IFDIR == 0 {
		return ""
	}
	if err := unix.Lstat(filepath.Dir(defaultCgroupRoot), &pst); err != nil {
		return ""
	}
	if st.Dev == pst.Dev {
		return ""
	}
	var fst unix.Statfs_t
	if err := unix.Statfs(defaultCgroupRoot, &fst); err != nil || fst.Type != unix.TMPFS_MAGIC {
		return ""
	}
	dir, err := os.Open(defaultCgroupRoot)
	if err != nil {
		return ""
	}
	defer dir.Close()
	names, err := dir.Readdirnames(1)
	if err != nil || len(names) < 1 {
		return ""
	}
	if err := unix.Statfs(filepath.Join(defaultCgroupRoot, names[0]), &fst); err != nil || fst.Type != unix.CGROUP_SUPER_MAGIC {
		return ""
	}
	return defaultCgroupRoot
}

func getCgroupRoot() (string, error) {
	cgroupRootLock.Lock()
	defer cgroupRootLock.Unlock()

	if cgroupRoot != "" {
		return cgroupRoot, nil
	}
	if r := tryDefaultCgroupRoot(); r != "" {
		cgroupRoot = r
		return cgroupRoot, nil
	}

	f, err := os.Open("/proc/self/mountinfo")
	if err != nil {
		return "", err
	}
	defer f.Close()

	var root string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		text := scanner.Text()
		fields := strings.Split(text, " ")
		idx := strings.Index(text, " - ")
		if idx < 0 {
			continue
		}
		post := strings.Fields(text[idx+3:])
		if len(post) == 0 {
			return "", fmt.Errorf("mountinfo: found no fields post '-' in %q", text)
		}
		if post[0] == "cgroup" {
			if len(post) < 3 {
				return "", fmt.Errorf("mountinfo: found less than 3 fields post '-' in %q", text)
			}
			root = filepath.Dir(fields[4])
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	if root == "" {
		return "", errors.New("no cgroup mount found in mountinfo")
	}
	if _, err := os.Stat(root); err != nil {
		return "", err
	}
	cgroupRoot = root
	return cgroupRoot, nil
}

type cgroupData struct {
	root      string
	innerPath string
	config    *configs.Cgroup
	pid       int
}

// isIgnorableError reports whether err is a permission-shaped error
// (EPERM/EACCES/EROFS) that a rootless caller should tolerate rather
// than fail outright on, since rootless containers routinely can't
// create or join arbitrary cgroup subsystems.
func isIgnorableError(rootless bool, err error) bool {
	if !rootless {
		return false
	}
	if errors.Is(err, os.ErrPermission) {
		return true
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno == unix.EROFS || errno == unix.EPERM || errno == unix.EACCES
	}
	return false
}

func (m *manager) Apply(pid int) error {
	if m.cgroups == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.cgroups
	if c.Resources != nil && c.Resources.Unified != nil {
		return cgroups.ErrV1NoUnified
	}

	m.paths = make(map[string]string)

	d, err := getCgroupData(m.cgroups, pid)
	if err != nil {
		return err
	}

	for _, sys := range subsystems {
		p, err := d.path(sys.Name())
		if err != nil {
			if cgroups.IsNotFound(err) && (c.Resources == nil || c.Resources.SkipDevices || sys.Name() != "devices") {
				continue
			}
			return err
		}
		m.paths[sys.Name()] = p

		if err := sys.Apply(p, d); err != nil {
			if isIgnorableError(m.rootless, err) && m.cgroups.Path == "" {
				delete(m.paths, sys.Name())
				continue
			}
			return err
		}
	}
	return nil
}

func (m *manager) Destroy() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cgroups.RemovePaths(m.paths)
}

func (m *manager) Path(subsys string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paths[subsys]
}

func (m *manager) GetStats() (*cgroups.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := cgroups.NewStats()
	for _, sys := range subsystems {
		path := m.paths[sys.Name()]
		if path == "" {
			continue
		}
		if err := sys.GetStats(path, stats); err != nil {
			return nil, err
		}
	}
	return stats, nil
}

func (m *manager) Set(container *configs.Config) error {
	if container.Cgroups == nil {
		return nil
	}
	if container.Cgroups.Resources != nil && container.Cgroups.Resources.Unified != nil {
		return cgroups.ErrV1NoUnified
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sys := range subsystems {
		path := m.paths[sys.Name()]
		if err := sys.Set(path, container.Cgroups); err != nil {
			if m.rootless && sys.Name() == "devices" {
				continue
			}
			if path == "" {
				return fmt.Errorf("cannot set %s limit: container could not join or create cgroup", sys.Name())
			}
			return err
		}
	}
	return nil
}

func (m *manager) Freeze(state configs.FreezerState) error {
	path := m.Path("freezer")
	if m.cgroups == nil || path == "" {
		return errors.New("cannot toggle freezer: cgroups not configured for container")
	}
	prevState := m.cgroups.Resources.Freezer
	m.cgroups.Resources.Freezer = state
	freezer := &FreezerGroup{}
	if err := freezer.Set(path, m.cgroups); err != nil {
		m.cgroups.Resources.Freezer = prevState
		return err
	}
	return nil
}

func (m *manager) GetPids() ([]int, error) {
	return cgroups.GetPids(m.Path("devices"))
}

func (m *manager) GetAllPids() ([]int, error) {
	return cgroups.GetAllPids(m.Path("devices"))
}

func getCgroupData(c *configs.Cgroup, pid int) (*cgroupData, error) {
	root, err := getCgroupRoot()
	if err != nil {
		return nil, err
	}
	if (c.Name != "" || c.Parent != "") && c.Path != "" {
		return nil, errors.New("cgroup: either Path or Name and Parent should be used")
	}

	cgPath := utils.CleanPath(c.Path)
	cgParent := utils.CleanPath(c.Parent)
	cgName := utils.CleanPath(c.Name)

	innerPath := cgPath
	if innerPath == "" {
		innerPath = filepath.Join(cgParent, cgName)
	}

	return &cgroupData{root: root, innerPath: innerPath, config: c, pid: pid}, nil
}

func (raw *cgroupData) path(subsystem string) (string, error) {
	if filepath.IsAbs(raw.innerPath) {
		mnt, err := cgroups.FindCgroupMountpoint(raw.root, subsystem)
		if err != nil {
			return "", err
		}
		return filepath.Join(raw.root, filepath.Base(mnt), raw.innerPath), nil
	}

	parentPath, err := cgroups.GetOwnCgroupPath(subsystem)
	if err != nil {
		return "", err
	}
	return filepath.Join(parentPath, raw.innerPath), nil
}

func join(path string, pid int) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return err
	}
	return cgroups.WriteCgroupProc(path, pid)
}

func (m *manager) GetPaths() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paths
}

func (m *manager) GetCgroups() (*configs.Cgroup, error) {
	return m.cgroups, nil
}

func (m *manager) GetFreezerState() (configs.FreezerState, error) {
	dir := m.Path("freezer")
	if dir == "" {
		return configs.Undefined, nil
	}
	freezer := &FreezerGroup{}
	return freezer.GetState(dir)
}

func (m *manager) Exists() bool {
	return cgroups.PathExists(m.Path("devices"))
}

func (m *manager) Type() cgroups.CgroupType {
	return cgroups.CgroupV1Fs
}
