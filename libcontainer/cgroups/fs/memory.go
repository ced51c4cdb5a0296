package fs

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/go-oci/ocirt/libcontainer/cgroups"
	"github.com/go-oci/ocirt/libcontainer/cgroups/fscommon"
	"github.com/go-oci/ocirt/libcontainer/configs"
)

type MemoryGroup struct{}

func (s *MemoryGroup) Name() string { return "memory" }

func (s *MemoryGroup) Apply(path string, d *cgroupData) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create memory cgroup %s: %w", path, err)
	}
	if err := join(path, d.pid); err != nil {
		// Memory is the one subsystem where a cgroup with limits
		// configured is meaningless if we can't join it.
		if d.config.Resources.Memory != 0 {
			return err
		}
		return nil
	}
	return nil
}

func (s *MemoryGroup) Set(path string, cgroup *configs.Cgroup) error {
	r := cgroup.Resources

	// When both limits are set, setMemoryAndSwap picks the order of the
	// memory.limit_in_bytes and memory.memsw.limit_in_bytes writes so
	// the kernel never sees a memsw limit lower than the mem limit.
	if r.MemorySwap > 0 && r.Memory != 0 {
		if err := s.setMemoryAndSwap(path, r); err != nil {
			return err
		}
	} else {
		if r.Memory != 0 {
			if err := fscommon.WriteFile(path, "memory.limit_in_bytes", strconv.FormatInt(r.Memory, 10)); err != nil {
				return err
			}
		}
		if r.MemorySwap > 0 {
			if err := fscommon.WriteFile(path, "memory.memsw.limit_in_bytes", strconv.FormatInt(r.MemorySwap, 10)); err != nil {
				return err
			}
		}
	}

	if r.MemoryReservation != 0 {
		if err := fscommon.WriteFile(path, "memory.soft_limit_in_bytes", strconv.FormatInt(r.MemoryReservation, 10)); err != nil {
			return err
		}
	}
	if r.KernelMemory != 0 {
		if err := fscommon.WriteFile(path, "memory.kmem.limit_in_bytes", strconv.FormatInt(r.KernelMemory, 10)); err != nil {
			return err
		}
	}
	if r.OomKillDisable {
		if err := fscommon.WriteFile(path, "memory.oom_control", "1"); err != nil {
			return err
		}
	}
	return nil
}

// setMemoryAndSwap orders the two writes so an increase never has the
// swap limit transiently lower than the new mem limit (which the kernel
// would reject), and a decrease never has the mem limit transiently
// higher than the old swap limit.
func (s *MemoryGroup) setMemoryAndSwap(path string, r *configs.Resources) error {
	curLimit, err := fscommon.ReadFile(path, "memory.limit_in_bytes")
	if err == nil {
		cur, _ := fscommon.ParseUint(curLimit, 10, 64)
		if r.Memory > int64(cur) || r.Memory == -1 {
			if err := fscommon.WriteFile(path, "memory.memsw.limit_in_bytes", strconv.FormatInt(r.MemorySwap, 10)); err != nil {
				return err
			}
			return fscommon.WriteFile(path, "memory.limit_in_bytes", strconv.FormatInt(r.Memory, 10))
		}
	}
	if err := fscommon.WriteFile(path, "memory.limit_in_bytes", strconv.FormatInt(r.Memory, 10)); err != nil {
		return err
	}
	return fscommon.WriteFile(path, "memory.memsw.limit_in_bytes", strconv.FormatInt(r.MemorySwap, 10))
}

func (s *MemoryGroup) GetStats(path string, stats *cgroups.Stats) error {
	if path == "" {
		return nil
	}
	if raw, err := fscommon.ReadFile(path, "memory.stat"); err == nil {
		for _, line := range strings.Split(raw, "\n") {
			fields := strings.Fields(line)
			if len(fields) != 2 {
				continue
			}
			v, err := strconv.ParseUint(fields[1], 10, 64)
			if err != nil {
				continue
			}
			stats.MemoryStats.Stats[fields[0]] = v
		}
	}

	readMemoryData("", path, &stats.MemoryStats.Usage)
	readMemoryData(".memsw", path, &stats.MemoryStats.SwapUsage)
	readMemoryData(".kmem", path, &stats.MemoryStats.KernelUsage)
	return nil
}

func readMemoryData(suffix, path string, data *cgroups.MemoryData) {
	moduleName := "memory" + suffix
	usage, err := fscommon.ReadFile(path, moduleName+".usage_in_bytes")
	if err == nil {
		if v, err := fscommon.ParseUint(usage, 10, 64); err == nil {
			data.Usage = v
		}
	}
	maxUsage, err := fscommon.ReadFile(path, moduleName+".max_usage_in_bytes")
	if err == nil {
		if v, err := fscommon.ParseUint(maxUsage, 10, 64); err == nil {
			data.MaxUsage = v
		}
	}
	failcnt, err := fscommon.ReadFile(path, moduleName+".failcnt")
	if err == nil {
		if v, err := fscommon.ParseUint(failcnt, 10, 64); err == nil {
			data.Failcnt = v
		}
	}
	limit, err := fscommon.ReadFile(path, moduleName+".limit_in_bytes")
	if err == nil {
		if v, err := fscommon.ParseUint(limit, 10, 64); err == nil {
			data.Limit = v
		}
	}
}

func (s *MemoryGroup) Clone(source, dest string) error {
	if err := fscommon.WriteFile(source, "cgroup.clone_children", "1"); err != nil {
		return err
	}
	return os.MkdirAll(dest, 0o755)
}

// unlimited is the sentinel the kernel treats as "no limit" for both
// memory.limit_in_bytes (-1) and memory.memsw.limit_in_bytes.
const unlimited = math.MaxInt64
