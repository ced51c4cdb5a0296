package fs2

import (
	"strconv"

	"github.com/go-oci/ocirt/libcontainer/cgroups"
	"github.com/go-oci/ocirt/libcontainer/cgroups/fscommon"
	"github.com/go-oci/ocirt/libcontainer/configs"
)

func setHugeTlb(dirPath string, cgroup *configs.Cgroup) error {
	for pageSize, limit := range cgroup.Resources.HugetlbLimit {
		if err := fscommon.WriteFile(dirPath, "hugetlb."+pageSize+".max", strconv.FormatUint(limit, 10)); err != nil {
			return err
		}
	}
	return nil
}

func statHugeTlb(dirPath string, stats *cgroups.Stats) error {
	stats.HugetlbStats = make(map[string]cgroups.HugetlbStats, len(cgroups.HugePageSizes))
	for _, pageSize := range cgroups.HugePageSizes {
		var hs cgroups.HugetlbStats
		if v, err := fscommon.ReadFile(dirPath, "hugetlb."+pageSize+".current"); err == nil {
			if n, err := fscommon.ParseUint(v, 10, 64); err == nil {
				hs.Usage = n
			}
		}
		if n, err := fscommon.GetValueByKey(dirPath, "hugetlb."+pageSize+".events", "max"); err == nil {
			hs.Failcnt = n
		}
		stats.HugetlbStats[pageSize] = hs
	}
	return nil
}
