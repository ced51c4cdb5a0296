package fs2

import (
	"fmt"
	"strconv"

	"github.com/go-oci/ocirt/libcontainer/cgroups"
	"github.com/go-oci/ocirt/libcontainer/cgroups/fscommon"
	"github.com/go-oci/ocirt/libcontainer/configs"
)

func setCpu(dirPath string, cgroup *configs.Cgroup) error {
	r := cgroup.Resources

	weight := r.CpuWeight
	if weight == 0 && r.CpuShares != 0 {
		// v1's cpu.shares is [2,262144]; v2's cpu.weight is [1,10000].
		weight = (1 + ((r.CpuShares-2)*9999)/262142)
	}
	if weight != 0 {
		if err := fscommon.WriteFile(dirPath, "cpu.weight", strconv.FormatUint(weight, 10)); err != nil {
			return err
		}
	}

	if r.CpuQuota != 0 || r.CpuPeriod != 0 {
		period := r.CpuPeriod
		if period == 0 {
			period = 100000
		}
		quota := "max"
		if r.CpuQuota > 0 {
			quota = strconv.FormatInt(r.CpuQuota, 10)
		}
		if err := fscommon.WriteFile(dirPath, "cpu.max", fmt.Sprintf("%s %d", quota, period)); err != nil {
			return err
		}
	}
	return nil
}

func statCpu(dirPath string, stats *cgroups.Stats) error {
	usage, err := fscommon.GetValueByKey(dirPath, "cpu.stat", "usage_usec")
	if err == nil {
		stats.CpuStats.CpuUsage.TotalUsage = usage * 1000
	}
	if v, err := fscommon.GetValueByKey(dirPath, "cpu.stat", "user_usec"); err == nil {
		stats.CpuStats.CpuUsage.UsageInUsermode = v * 1000
	}
	if v, err := fscommon.GetValueByKey(dirPath, "cpu.stat", "system_usec"); err == nil {
		stats.CpuStats.CpuUsage.UsageInKernelmode = v * 1000
	}
	if v, err := fscommon.GetValueByKey(dirPath, "cpu.stat", "nr_periods"); err == nil {
		stats.CpuStats.ThrottlingData.Periods = v
	}
	if v, err := fscommon.GetValueByKey(dirPath, "cpu.stat", "nr_throttled"); err == nil {
		stats.CpuStats.ThrottlingData.ThrottledPeriods = v
	}
	if v, err := fscommon.GetValueByKey(dirPath, "cpu.stat", "throttled_usec"); err == nil {
		stats.CpuStats.ThrottlingData.ThrottledTime = v * 1000
	}
	return nil
}
