package fs

import (
	"os"
	"strconv"

	"github.com/go-oci/ocirt/libcontainer/cgroups"
	"github.com/go-oci/ocirt/libcontainer/cgroups/fscommon"
	"github.com/go-oci/ocirt/libcontainer/configs"
)

type PidsGroup struct{}

func (s *PidsGroup) Name() string { return "pids" }

func (s *PidsGroup) Apply(path string, d *cgroupData) error { return join(path, d.pid) }

func (s *PidsGroup) Set(path string, cgroup *configs.Cgroup) error {
	if cgroup.Resources.PidsLimit == 0 {
		return nil
	}
	limit := "max"
	if cgroup.Resources.PidsLimit > 0 {
		limit = strconv.FormatInt(cgroup.Resources.PidsLimit, 10)
	}
	return fscommon.WriteFile(path, "pids.max", limit)
}

func (s *PidsGroup) GetStats(path string, stats *cgroups.Stats) error {
	if path == "" {
		return nil
	}
	if cur, err := fscommon.ReadFile(path, "pids.current"); err == nil {
		if v, err := fscommon.ParseUint(cur, 10, 64); err == nil {
			stats.PidsStats.Current = v
		}
	}
	if max, err := fscommon.ReadFile(path, "pids.max"); err == nil {
		if v, err := fscommon.ParseUint(max, 10, 64); err == nil {
			stats.PidsStats.Limit = v
		}
	}
	return nil
}

func (s *PidsGroup) Clone(source, dest string) error {
	if err := fscommon.WriteFile(source, "cgroup.clone_children", "1"); err != nil {
		return err
	}
	return os.MkdirAll(dest, 0o755)
}
