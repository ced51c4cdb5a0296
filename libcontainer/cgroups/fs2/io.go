package fs2

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-oci/ocirt/libcontainer/cgroups"
	"github.com/go-oci/ocirt/libcontainer/cgroups/fscommon"
	"github.com/go-oci/ocirt/libcontainer/configs"
)

// setIo translates the v1 blkio.* knobs into v2's unified "io.weight"
// and per-device "io.max" lines (rbps/wbps/riops/wiops=N).
func setIo(dirPath string, cgroup *configs.Cgroup) error {
	r := cgroup.Resources
	if r.BlkioWeight != 0 {
		// v1 weight range is [10,1000], v2's is [1,10000]; scale by 10.
		v2Weight := uint64(r.BlkioWeight) * 10
		if v2Weight == 0 {
			v2Weight = 1
		}
		if err := fscommon.WriteFile(dirPath, "io.weight", strconv.FormatUint(v2Weight, 10)); err != nil {
			return err
		}
	}

	type limit struct {
		major, minor int64
		key          string
		rate         uint64
	}
	var limits []limit
	for _, d := range r.BlkioThrottleReadBps {
		limits = append(limits, limit{d.Major, d.Minor, "rbps", d.Rate})
	}
	for _, d := range r.BlkioThrottleWriteBps {
		limits = append(limits, limit{d.Major, d.Minor, "wbps", d.Rate})
	}
	for _, d := range r.BlkioThrottleReadIOPS {
		limits = append(limits, limit{d.Major, d.Minor, "riops", d.Rate})
	}
	for _, d := range r.BlkioThrottleWriteIOPS {
		limits = append(limits, limit{d.Major, d.Minor, "wiops", d.Rate})
	}
	for _, l := range limits {
		line := fmt.Sprintf("%d:%d %s=%d", l.major, l.minor, l.key, l.rate)
		if err := fscommon.WriteFile(dirPath, "io.max", line); err != nil {
			return err
		}
	}
	return nil
}

func statIo(dirPath string, stats *cgroups.Stats) error {
	raw, err := fscommon.ReadFile(dirPath, "io.stat")
	if err != nil {
		return err
	}
	var entries []cgroups.BlkioStatEntry
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		mm := strings.SplitN(fields[0], ":", 2)
		if len(mm) != 2 {
			continue
		}
		major, err := strconv.ParseUint(mm[0], 10, 64)
		if err != nil {
			continue
		}
		minor, err := strconv.ParseUint(mm[1], 10, 64)
		if err != nil {
			continue
		}
		for _, kv := range fields[1:] {
			parts := strings.SplitN(kv, "=", 2)
			if len(parts) != 2 {
				continue
			}
			if parts[0] != "rbytes" && parts[0] != "wbytes" {
				continue
			}
			v, err := strconv.ParseUint(parts[1], 10, 64)
			if err != nil {
				continue
			}
			entries = append(entries, cgroups.BlkioStatEntry{Major: major, Minor: minor, Op: parts[0], Value: v})
		}
	}
	stats.BlkioStats.IoServiceBytesRecursive = entries
	return nil
}
