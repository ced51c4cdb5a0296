package fs2

import (
	"strconv"

	"github.com/go-oci/ocirt/libcontainer/cgroups"
	"github.com/go-oci/ocirt/libcontainer/cgroups/fscommon"
	"github.com/go-oci/ocirt/libcontainer/configs"
)

func setPids(dirPath string, cgroup *configs.Cgroup) error {
	if cgroup.Resources.PidsLimit == 0 {
		return nil
	}
	limit := "max"
	if cgroup.Resources.PidsLimit > 0 {
		limit = strconv.FormatInt(cgroup.Resources.PidsLimit, 10)
	}
	return fscommon.WriteFile(dirPath, "pids.max", limit)
}

func statPids(dirPath string, stats *cgroups.Stats) error {
	cur, err := fscommon.ReadFile(dirPath, "pids.current")
	if err != nil {
		return err
	}
	if v, err := fscommon.ParseUint(cur, 10, 64); err == nil {
		stats.PidsStats.Current = v
	}
	if max, err := fscommon.ReadFile(dirPath, "pids.max"); err == nil {
		if v, err := fscommon.ParseUint(max, 10, 64); err == nil {
			stats.PidsStats.Limit = v
		}
	}
	return nil
}

// statPidsWithoutController counts pids by reading cgroup.procs
// directly, the fallback a kernel without the pids controller
// delegated to this cgroup requires.
func statPidsWithoutController(dirPath string, stats *cgroups.Stats) error {
	pids, err := cgroups.GetAllPids(dirPath)
	if err != nil {
		return err
	}
	stats.PidsStats.Current = uint64(len(pids))
	return nil
}
