// Package cgroups defines the cgroup Manager abstraction: one interface
// implemented by a v1 (per-controller tree), v2 (unified hierarchy), and
// systemd-delegated backend, chosen by libcontainer's newCgroupManager
// based on what the host actually mounts.
package cgroups

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/go-oci/ocirt/libcontainer/configs"
)

// CgroupType identifies which backend a Manager was constructed with,
// surfaced in container state for diagnostics and in `list`/`state`.
type CgroupType int

const (
	CgroupV1Fs CgroupType = iota
	CgroupV1Systemd
	CgroupV2Fs
	CgroupV2Systemd
)

func (t CgroupType) String() string {
	switch t {
	case CgroupV1Fs:
		return "v1-fs"
	case CgroupV1Systemd:
		return "v1-systemd"
	case CgroupV2Fs:
		return "v2-fs"
	case CgroupV2Systemd:
		return "v2-systemd"
	default:
		return "unknown"
	}
}

// HugePageSizes caches the kernel's supported hugetlb page sizes,
// resolved once at package init.
var HugePageSizes, _ = GetHugePageSize()

// ErrV1NoUnified is returned when a v1 manager is asked to apply
// Resources.Unified, which only a v2 hierarchy understands.
var ErrV1NoUnified = errors.New("cgroups: unified resources requested but running on cgroup v1")

var errNotFound = errors.New("cgroup: subsystem mount not found")

// IsNotFound reports whether err is the "no such subsystem" sentinel
// FindCgroupMountpoint/GetOwnCgroupPath return.
func IsNotFound(err error) bool {
	return errors.Is(err, errNotFound)
}

// IsCgroup2UnifiedMode reports whether /sys/fs/cgroup is itself a
// cgroup2 mount, i.e. the host runs the unified hierarchy only.
func IsCgroup2UnifiedMode() bool {
	var st unix.Statfs_t
	if err := unix.Statfs(cgroupfsDir, &st); err != nil {
		return false
	}
	return st.Type == unix.CGROUP2_SUPER_MAGIC
}

// Manager applies and queries cgroup configuration for one container.
// Exactly one concrete implementation (from the fs, fs2 or systemd
// package) backs it at a time, selected by libcontainer's
// newCgroupManager.
type Manager interface {
	// Apply creates the cgroup(s) and moves pid into them.
	Apply(pid int) error
	// GetPids returns the pids directly in the cgroup.
	GetPids() ([]int, error)
	// GetAllPids returns the pids in the cgroup and all its descendants.
	GetAllPids() ([]int, error)
	// GetStats returns usage statistics for the cgroup.
	GetStats() (*Stats, error)
	// Freeze toggles the freezer cgroup to the given state.
	Freeze(state configs.FreezerState) error
	// Destroy removes the cgroup(s).
	Destroy() error
	// Path returns the path for the given v1 subsystem name, or the
	// unified path for any argument under v2.
	Path(subsys string) string
	// Set applies resource limits from container.Cgroups.
	Set(container *configs.Config) error
	// GetPaths returns the path(s) to persist in the state file.
	GetPaths() map[string]string
	// GetCgroups returns the configuration the manager was built with.
	GetCgroups() (*configs.Cgroup, error)
	// GetFreezerState returns the freezer cgroup's current state.
	GetFreezerState() (configs.FreezerState, error)
	// Exists reports whether the cgroup path(s) still exist.
	Exists() bool
	// Type identifies which backend this manager implements.
	Type() CgroupType
}

// Stats holds the subset of controller statistics this runtime reports:
// memory, cpu usage, pids count, and block I/O, collected from whichever
// subsystems the active manager has paths for.
type Stats struct {
	CpuStats     CpuStats     `json:"cpu_stats"`
	MemoryStats  MemoryStats  `json:"memory_stats"`
	PidsStats    PidsStats    `json:"pids_stats"`
	BlkioStats   BlkioStats   `json:"blkio_stats"`
	HugetlbStats map[string]HugetlbStats `json:"hugetlb_stats,omitempty"`
}

type CpuUsage struct {
	TotalUsage        uint64    `json:"total_usage"`
	PercpuUsage       []uint64  `json:"percpu_usage,omitempty"`
	UsageInKernelmode uint64    `json:"usage_in_kernelmode"`
	UsageInUsermode   uint64    `json:"usage_in_usermode"`
}

type ThrottlingData struct {
	Periods          uint64 `json:"periods"`
	ThrottledPeriods uint64 `json:"throttled_periods"`
	ThrottledTime    uint64 `json:"throttled_time"`
}

type CpuStats struct {
	CpuUsage       CpuUsage       `json:"cpu_usage"`
	ThrottlingData ThrottlingData `json:"throttling_data"`
}

type MemoryData struct {
	Usage    uint64 `json:"usage,omitempty"`
	MaxUsage uint64 `json:"max_usage,omitempty"`
	Failcnt  uint64 `json:"failcnt"`
	Limit    uint64 `json:"limit"`
}

type MemoryStats struct {
	Usage       MemoryData        `json:"usage,omitempty"`
	SwapUsage   MemoryData        `json:"swap_usage,omitempty"`
	KernelUsage MemoryData        `json:"kernel_usage,omitempty"`
	Stats       map[string]uint64 `json:"stats,omitempty"`
}

type PidsStats struct {
	Current uint64 `json:"current,omitempty"`
	Limit   uint64 `json:"limit,omitempty"`
}

type BlkioStatEntry struct {
	Major uint64 `json:"major"`
	Minor uint64 `json:"minor"`
	Op    string `json:"op"`
	Value uint64 `json:"value"`
}

type BlkioStats struct {
	IoServiceBytesRecursive []BlkioStatEntry `json:"io_service_bytes_recursive,omitempty"`
	IoServicedRecursive     []BlkioStatEntry `json:"io_serviced_recursive,omitempty"`
}

type HugetlbStats struct {
	Usage    uint64 `json:"usage,omitempty"`
	MaxUsage uint64 `json:"max_usage,omitempty"`
	Failcnt  uint64 `json:"failcnt"`
}

func NewStats() *Stats {
	return &Stats{
		MemoryStats: MemoryStats{Stats: make(map[string]uint64)},
	}
}

// ParseCgroupFile parses /proc/<pid>/cgroup into a controller-name ->
// relative-path map, the format used for both v1 (one line per
// subsystem) and v2 (a single ":: /path" line).
func ParseCgroupFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cgroups := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		parts := strings.SplitN(line, ":", 3)
		if len(parts) < 3 {
			continue
		}
		for _, subsys := range strings.Split(parts[1], ",") {
			if subsys == "" {
				subsys = "" // v2 unified: empty controller list
			}
			cgroups[subsys] = parts[2]
		}
	}
	return cgroups, scanner.Err()
}

// FindCgroupMountpoint walks /proc/self/mountinfo looking for the v1
// cgroup mount that carries the named subsystem, returning its mount
// point (e.g. "/sys/fs/cgroup/memory").
func FindCgroupMountpoint(root, subsystem string) (string, error) {
	f, err := os.Open(filepath.Join(root, "..", "self", "mountinfo"))
	if err != nil {
		f, err = os.Open("/proc/self/mountinfo")
		if err != nil {
			return "", err
		}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		text := scanner.Text()
		idx := strings.Index(text, " - ")
		if idx < 0 {
			continue
		}
		fields := strings.Fields(text)
		post := strings.Fields(text[idx+3:])
		if len(post) < 3 || post[0] != "cgroup" {
			continue
		}
		for _, opt := range strings.Split(post[2], ",") {
			if opt == subsystem {
				return fields[4], nil
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", errors.Wrapf(errNotFound, "subsystem %s", subsystem)
}

// GetOwnCgroupPath returns the calling process's own path within the
// named v1 subsystem's hierarchy, by combining FindCgroupMountpoint with
// this process's /proc/self/cgroup entry.
func GetOwnCgroupPath(subsystem string) (string, error) {
	mnt, err := FindCgroupMountpoint("/sys/fs/cgroup", subsystem)
	if err != nil {
		return "", err
	}
	cgroups, err := ParseCgroupFile("/proc/self/cgroup")
	if err != nil {
		return "", err
	}
	rel, ok := cgroups[subsystem]
	if !ok {
		return "", errors.Wrapf(errNotFound, "subsystem %s in /proc/self/cgroup", subsystem)
	}
	return filepath.Join(mnt, rel), nil
}

// WriteCgroupProc adds pid to the cgroup at dir by writing cgroup.procs,
// retrying briefly on ESRCH: the kernel can report a just-forked pid as
// gone if the write races the parent's own bookkeeping.
func WriteCgroupProc(dir string, pid int) error {
	if dir == "" {
		return errors.New("no such directory for cgroup.procs")
	}
	file, err := OpenFile(dir, "cgroup.procs", unix.O_WRONLY)
	if err != nil {
		return fmt.Errorf("failed to write %d to cgroup.procs: %w", pid, err)
	}
	defer file.Close()

	for i := 0; i < 5; i++ {
		_, err = file.WriteString(strconv.Itoa(pid))
		if err == nil {
			return nil
		}
		if errors.Is(err, unix.ESRCH) {
			continue
		}
		return fmt.Errorf("failed to write %d to cgroup.procs: %w", pid, err)
	}
	return err
}

// EnterPid moves pid into every path in the given v1 subsystem->path map.
func EnterPid(paths map[string]string, pid int) error {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return err
		}
		if err := WriteCgroupProc(path, pid); err != nil {
			return err
		}
	}
	return nil
}

// RemovePaths removes every v1 subsystem cgroup directory, tolerating
// already-gone directories (Destroy may race an external cleanup).
func RemovePaths(paths map[string]string) error {
	var firstErr error
	for _, path := range paths {
		if err := RemovePath(path); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// RemovePath removes a single cgroup directory.
func RemovePath(path string) error {
	if path == "" {
		return nil
	}
	err := os.RemoveAll(path)
	if err == nil || os.IsNotExist(err) {
		return nil
	}
	return err
}

// PathExists reports whether a cgroup directory exists.
func PathExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// GetPids returns the pids directly in the cgroup at dir.
func GetPids(dir string) ([]int, error) {
	return readProcsFile(dir, "cgroup.procs")
}

// GetAllPids returns the pids in dir and every cgroup beneath it.
func GetAllPids(dir string) ([]int, error) {
	var pids []int
	err := filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		cpids, err := readProcsFile(p, "cgroup.procs")
		if err != nil {
			return err
		}
		pids = append(pids, cpids...)
		return nil
	})
	return pids, err
}

func readProcsFile(dir, file string) ([]int, error) {
	data, err := ReadFile(dir, file)
	if err != nil {
		return nil, err
	}
	var pids []int
	for _, line := range strings.Split(strings.TrimSpace(data), "\n") {
		if line == "" {
			continue
		}
		pid, err := strconv.Atoi(line)
		if err != nil {
			return nil, err
		}
		pids = append(pids, pid)
	}
	return pids, nil
}

// GetHugePageSize returns the kernel's supported hugetlb page sizes
// (e.g. "2MB", "1GB"), read from /sys/kernel/mm/hugepages.
func GetHugePageSize() ([]string, error) {
	entries, err := os.ReadDir("/sys/kernel/mm/hugepages")
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var sizes []string
	for _, e := range entries {
		name := strings.TrimPrefix(e.Name(), "hugepages-")
		if name == e.Name() {
			continue
		}
		sizes = append(sizes, humanizeSize(name))
	}
	return sizes, nil
}

// humanizeSize turns a kernel hugepages directory suffix like "2048kB"
// into the "2MB"/"1GB" form cgroup hugetlb files expect.
func humanizeSize(kb string) string {
	n := strings.TrimSuffix(kb, "kB")
	val, err := strconv.Atoi(n)
	if err != nil {
		return kb
	}
	switch {
	case val%(1024*1024) == 0:
		return fmt.Sprintf("%dGB", val/(1024*1024))
	case val%1024 == 0:
		return fmt.Sprintf("%dMB", val/1024)
	default:
		return fmt.Sprintf("%dKB", val)
	}
}
