package fs

import (
	"os"
	"strconv"

	"github.com/go-oci/ocirt/libcontainer/cgroups"
	"github.com/go-oci/ocirt/libcontainer/cgroups/fscommon"
	"github.com/go-oci/ocirt/libcontainer/configs"
)

type HugetlbGroup struct{}

func (s *HugetlbGroup) Name() string { return "hugetlb" }

func (s *HugetlbGroup) Apply(path string, d *cgroupData) error { return join(path, d.pid) }

func (s *HugetlbGroup) Set(path string, cgroup *configs.Cgroup) error {
	for pageSize, limit := range cgroup.Resources.HugetlbLimit {
		if err := fscommon.WriteFile(path, "hugetlb."+pageSize+".limit_in_bytes", strconv.FormatUint(limit, 10)); err != nil {
			return err
		}
	}
	return nil
}

func (s *HugetlbGroup) GetStats(path string, stats *cgroups.Stats) error {
	if path == "" {
		return nil
	}
	stats.HugetlbStats = make(map[string]cgroups.HugetlbStats, len(cgroups.HugePageSizes))
	for _, pageSize := range cgroups.HugePageSizes {
		var hs cgroups.HugetlbStats
		if v, err := fscommon.ReadFile(path, "hugetlb."+pageSize+".usage_in_bytes"); err == nil {
			if n, err := fscommon.ParseUint(v, 10, 64); err == nil {
				hs.Usage = n
			}
		}
		if v, err := fscommon.ReadFile(path, "hugetlb."+pageSize+".max_usage_in_bytes"); err == nil {
			if n, err := fscommon.ParseUint(v, 10, 64); err == nil {
				hs.MaxUsage = n
			}
		}
		if v, err := fscommon.ReadFile(path, "hugetlb."+pageSize+".failcnt"); err == nil {
			if n, err := fscommon.ParseUint(v, 10, 64); err == nil {
				hs.Failcnt = n
			}
		}
		stats.HugetlbStats[pageSize] = hs
	}
	return nil
}

func (s *HugetlbGroup) Clone(source, dest string) error {
	if err := fscommon.WriteFile(source, "cgroup.clone_children", "1"); err != nil {
		return err
	}
	return os.MkdirAll(dest, 0o755)
}
