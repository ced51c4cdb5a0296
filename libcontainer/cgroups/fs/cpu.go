package fs

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-oci/ocirt/libcontainer/cgroups"
	"github.com/go-oci/ocirt/libcontainer/cgroups/fscommon"
	"github.com/go-oci/ocirt/libcontainer/configs"
)

type CpuGroup struct{}

func (s *CpuGroup) Name() string { return "cpu" }

func (s *CpuGroup) Apply(path string, d *cgroupData) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create cpu cgroup %s: %w", path, err)
	}
	// cpu.rt_runtime_us must be set before moving the process into the
	// group whenever the group is also claiming a realtime runtime;
	// otherwise the write below races the kernel's own bandwidth checks.
	if d.config != nil && d.config.Resources != nil && d.config.Resources.CpuRtPeriod != 0 {
		if err := fscommon.WriteFile(path, "cpu.rt_period_us", strconv.FormatUint(d.config.Resources.CpuRtPeriod, 10)); err != nil {
			return err
		}
	}
	if d.config != nil && d.config.Resources != nil && d.config.Resources.CpuRtRuntime != 0 {
		if err := fscommon.WriteFile(path, "cpu.rt_runtime_us", strconv.FormatInt(d.config.Resources.CpuRtRuntime, 10)); err != nil {
			return err
		}
	}
	return join(path, d.pid)
}

func (s *CpuGroup) Set(path string, cgroup *configs.Cgroup) error {
	r := cgroup.Resources
	if r.CpuShares != 0 {
		shares := r.CpuShares
		if err := fscommon.WriteFile(path, "cpu.shares", strconv.FormatUint(shares, 10)); err != nil {
			return err
		}
		// Read back; the kernel clamps shares to [2, 262144] and Set
		// callers rely on cpu.shares reflecting what actually took.
		if raw, err := fscommon.ReadFile(path, "cpu.shares"); err == nil {
			if val, err := fscommon.ParseUint(raw, 10, 64); err == nil && val != 0 && val != shares {
				cgroup.Resources.CpuShares = val
			}
		}
	}
	if r.CpuPeriod != 0 {
		if err := fscommon.WriteFile(path, "cpu.cfs_period_us", strconv.FormatUint(r.CpuPeriod, 10)); err != nil {
			return err
		}
	}
	if r.CpuQuota != 0 {
		if err := fscommon.WriteFile(path, "cpu.cfs_quota_us", strconv.FormatInt(r.CpuQuota, 10)); err != nil {
			return err
		}
	}
	if r.CpuRtPeriod != 0 {
		if err := fscommon.WriteFile(path, "cpu.rt_period_us", strconv.FormatUint(r.CpuRtPeriod, 10)); err != nil {
			return err
		}
	}
	if r.CpuRtRuntime != 0 {
		if err := fscommon.WriteFile(path, "cpu.rt_runtime_us", strconv.FormatInt(r.CpuRtRuntime, 10)); err != nil {
			return err
		}
	}
	return nil
}

func (s *CpuGroup) GetStats(path string, stats *cgroups.Stats) error {
	if path == "" {
		return nil
	}
	data, err := fscommon.GetValueByKey(path, "cpu.stat", "nr_periods")
	if err == nil {
		stats.CpuStats.ThrottlingData.Periods = data
	}
	if data, err = fscommon.GetValueByKey(path, "cpu.stat", "nr_throttled"); err == nil {
		stats.CpuStats.ThrottlingData.ThrottledPeriods = data
	}
	if data, err = fscommon.GetValueByKey(path, "cpu.stat", "throttled_time"); err == nil {
		stats.CpuStats.ThrottlingData.ThrottledTime = data
	}
	return nil
}

func (s *CpuGroup) Clone(source, dest string) error {
	if err := fscommon.WriteFile(source, "cgroup.clone_children", "1"); err != nil {
		return err
	}
	return os.MkdirAll(dest, 0o755)
}

// CpuacctGroup reports per-cgroup cpuacct.usage* counters; it has no
// tunables of its own, only stats.
type CpuacctGroup struct{}

func (s *CpuacctGroup) Name() string { return "cpuacct" }

func (s *CpuacctGroup) Apply(path string, d *cgroupData) error { return join(path, d.pid) }

func (s *CpuacctGroup) Set(path string, cgroup *configs.Cgroup) error { return nil }

func (s *CpuacctGroup) GetStats(path string, stats *cgroups.Stats) error {
	if path == "" {
		return nil
	}
	if total, err := fscommon.ReadFile(path, "cpuacct.usage"); err == nil {
		if v, err := fscommon.ParseUint(total, 10, 64); err == nil {
			stats.CpuStats.CpuUsage.TotalUsage = v
		}
	}
	if kernel, err := fscommon.GetValueByKey(path, "cpuacct.stat", "system"); err == nil {
		stats.CpuStats.CpuUsage.UsageInKernelmode = kernel * uint64(1e9) / 100
	}
	if user, err := fscommon.GetValueByKey(path, "cpuacct.stat", "user"); err == nil {
		stats.CpuStats.CpuUsage.UsageInUsermode = user * uint64(1e9) / 100
	}
	return nil
}

func (s *CpuacctGroup) Clone(source, dest string) error {
	if err := fscommon.WriteFile(source, "cgroup.clone_children", "1"); err != nil {
		return err
	}
	return os.MkdirAll(dest, 0o755)
}

// CpusetGroup pins the cgroup to a CPU/NUMA-node set. It is applied
// before the process joins (join() happens in Apply below) since the
// kernel requires cpuset.cpus/mems to already cover the parent's set.
type CpusetGroup struct{}

func (s *CpusetGroup) Name() string { return "cpuset" }

func (s *CpusetGroup) Apply(path string, d *cgroupData) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create cpuset cgroup %s: %w", path, err)
	}
	if err := s.ensureParent(path); err != nil {
		return err
	}
	return join(path, d.pid)
}

// ensureParent copies cpuset.cpus/mems down from the nearest configured
// ancestor, since the kernel refuses to let any process join a cpuset
// directory with empty cpus/mems.
func (s *CpusetGroup) ensureParent(path string) error {
	parent := filepath.Dir(path)
	if parent == "" || parent == "/" || parent == path {
		return nil
	}
	if err := s.ensureParent(parent); err != nil {
		return err
	}
	if !cgroups.PathExists(path) {
		return nil
	}
	for _, file := range []string{"cpuset.cpus", "cpuset.mems"} {
		if v, err := fscommon.ReadFile(path, file); err == nil && strings.TrimSpace(v) != "" {
			continue
		}
		pv, err := fscommon.ReadFile(parent, file)
		if err != nil {
			continue
		}
		fscommon.WriteFile(path, file, pv)
	}
	return nil
}

func (s *CpusetGroup) Set(path string, cgroup *configs.Cgroup) error {
	r := cgroup.Resources
	if r.CpusetCpus != "" {
		if _, err := fscommon.ParseCpuset(r.CpusetCpus); err != nil {
			return err
		}
		if err := fscommon.WriteFile(path, "cpuset.cpus", r.CpusetCpus); err != nil {
			return err
		}
	}
	if r.CpusetMems != "" {
		if _, err := fscommon.ParseCpuset(r.CpusetMems); err != nil {
			return err
		}
		if err := fscommon.WriteFile(path, "cpuset.mems", r.CpusetMems); err != nil {
			return err
		}
	}
	return nil
}

func (s *CpusetGroup) GetStats(path string, stats *cgroups.Stats) error { return nil }

func (s *CpusetGroup) Clone(source, dest string) error {
	if err := fscommon.WriteFile(source, "cgroup.clone_children", "1"); err != nil {
		return err
	}
	return os.MkdirAll(dest, 0o755)
}
