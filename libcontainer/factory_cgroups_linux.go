//go:build linux
// +build linux

package libcontainer

import (
	"path/filepath"

	"github.com/go-oci/ocirt/libcontainer/cgroups"
	"github.com/go-oci/ocirt/libcontainer/cgroups/fs"
	"github.com/go-oci/ocirt/libcontainer/cgroups/fs2"
	"github.com/go-oci/ocirt/libcontainer/cgroups/systemd"
	"github.com/go-oci/ocirt/libcontainer/configs"
)

// unifiedMountpoint is where cgroup v2 is mounted when the host runs in
// unified mode. There is no split per-controller hierarchy to probe in
// that case, unlike v1.
const unifiedMountpoint = "/sys/fs/cgroup"

// newCgroupManager picks the cgroup backend for cg: the systemd-delegated
// driver when cg.Systemd is set (--systemd-cgroup), otherwise the v2
// unified driver when /sys/fs/cgroup is itself a cgroup2 mount, and the
// v1 per-subsystem driver on every other host. A hybrid host (v1
// controllers plus a separate v2 mount) is not in unified mode, so it
// gets the v1 driver for every controller, devices included.
func newCgroupManager(cg *configs.Cgroup, rootless bool) (cgroups.Manager, error) {
	unified := cgroups.IsCgroup2UnifiedMode()

	if cg.Systemd {
		if unified {
			dirPath, err := defaultUnifiedPath(cg)
			if err != nil {
				return nil, err
			}
			return systemd.NewUnifiedManager(cg, dirPath, rootless), nil
		}
		return systemd.NewLegacyManager(cg, rootless), nil
	}

	if unified {
		dirPath, err := defaultUnifiedPath(cg)
		if err != nil {
			return nil, err
		}
		return fs2.NewManager(cg, dirPath, rootless)
	}

	paths, err := v1Paths(cg)
	if err != nil {
		return nil, err
	}
	return fs.NewManager(cg, paths, rootless), nil
}

func defaultUnifiedPath(cg *configs.Cgroup) (string, error) {
	if cg.Path != "" {
		return filepath.Join(unifiedMountpoint, cg.Path), nil
	}
	return filepath.Join(unifiedMountpoint, cg.Parent, cg.Name), nil
}

// v1Paths resolves one path per controller mountpoint the host has, so
// the fs.Manager can Apply/Set/GetStats each subsystem independently.
func v1Paths(cg *configs.Cgroup) (map[string]string, error) {
	subsystems := []string{
		"devices", "memory", "cpu", "cpuacct", "cpuset",
		"blkio", "pids", "freezer", "hugetlb", "net_cls",
		"net_prio", "perf_event", "rdma",
	}

	paths := make(map[string]string)
	for _, name := range subsystems {
		mountpoint, err := cgroups.FindCgroupMountpoint("/", name)
		if err != nil {
			// Not every controller is mounted on every host; skip it
			// rather than fail the whole manager.
			continue
		}
		rel := cg.Path
		if rel == "" {
			rel = filepath.Join(cg.Parent, cg.Name)
		}
		paths[name] = filepath.Join(mountpoint, rel)
	}
	return paths, nil
}
