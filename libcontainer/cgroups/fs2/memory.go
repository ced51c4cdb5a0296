package fs2

import (
	"strconv"
	"strings"

	"github.com/go-oci/ocirt/libcontainer/cgroups"
	"github.com/go-oci/ocirt/libcontainer/cgroups/fscommon"
	"github.com/go-oci/ocirt/libcontainer/configs"
)

func setMemory(dirPath string, cgroup *configs.Cgroup) error {
	r := cgroup.Resources
	if r.MemoryReservation != 0 {
		if err := fscommon.WriteFile(dirPath, "memory.low", numOrMax(r.MemoryReservation)); err != nil {
			return err
		}
	}
	if r.Memory != 0 {
		if err := fscommon.WriteFile(dirPath, "memory.max", numOrMax(r.Memory)); err != nil {
			return err
		}
	}
	if r.MemorySwap != 0 {
		// v2's memory.swap.max is swap-only, unlike v1's memsw which
		// also counts memory; the OCI swap value already includes
		// memory, so the delta is what v2 wants here.
		swapOnly := r.MemorySwap
		if r.Memory > 0 && swapOnly > 0 {
			swapOnly -= r.Memory
			if swapOnly < 0 {
				swapOnly = 0
			}
		}
		if err := fscommon.WriteFile(dirPath, "memory.swap.max", numOrMax(swapOnly)); err != nil {
			return err
		}
	}
	return nil
}

func numOrMax(v int64) string {
	if v < 0 {
		return "max"
	}
	return strconv.FormatInt(v, 10)
}

func statMemory(dirPath string, stats *cgroups.Stats) error {
	if raw, err := fscommon.ReadFile(dirPath, "memory.stat"); err == nil {
		for _, line := range strings.Split(raw, "\n") {
			fields := strings.Fields(line)
			if len(fields) != 2 {
				continue
			}
			if v, err := strconv.ParseUint(fields[1], 10, 64); err == nil {
				stats.MemoryStats.Stats[fields[0]] = v
			}
		}
	}
	if v, err := fscommon.ReadFile(dirPath, "memory.current"); err == nil {
		if n, err := fscommon.ParseUint(v, 10, 64); err == nil {
			stats.MemoryStats.Usage.Usage = n
		}
	}
	if v, err := fscommon.ReadFile(dirPath, "memory.max"); err == nil {
		if n, err := fscommon.ParseUint(v, 10, 64); err == nil {
			stats.MemoryStats.Usage.Limit = n
		}
	}
	if v, err := fscommon.ReadFile(dirPath, "memory.swap.current"); err == nil {
		if n, err := fscommon.ParseUint(v, 10, 64); err == nil {
			stats.MemoryStats.SwapUsage.Usage = n
		}
	}
	if v, err := fscommon.ReadFile(dirPath, "memory.swap.max"); err == nil {
		if n, err := fscommon.ParseUint(v, 10, 64); err == nil {
			stats.MemoryStats.SwapUsage.Limit = n
		}
	}
	return nil
}
