package fs

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-oci/ocirt/libcontainer/cgroups"
	"github.com/go-oci/ocirt/libcontainer/cgroups/fscommon"
	"github.com/go-oci/ocirt/libcontainer/configs"
)

type BlkioGroup struct{}

func (s *BlkioGroup) Name() string { return "blkio" }

func (s *BlkioGroup) Apply(path string, d *cgroupData) error { return join(path, d.pid) }

func (s *BlkioGroup) Set(path string, cgroup *configs.Cgroup) error {
	r := cgroup.Resources
	if r.BlkioWeight != 0 {
		if err := fscommon.WriteFile(path, "blkio.weight", strconv.FormatUint(uint64(r.BlkioWeight), 10)); err != nil {
			return err
		}
	}
	for _, wd := range r.BlkioWeightDevice {
		if err := fscommon.WriteFile(path, "blkio.weight_device", fmt.Sprintf("%d:%d %d", wd.Major, wd.Minor, wd.Weight)); err != nil {
			return err
		}
	}
	for _, td := range r.BlkioThrottleReadBps {
		if err := fscommon.WriteFile(path, "blkio.throttle.read_bps_device", fmt.Sprintf("%d:%d %d", td.Major, td.Minor, td.Rate)); err != nil {
			return err
		}
	}
	for _, td := range r.BlkioThrottleWriteBps {
		if err := fscommon.WriteFile(path, "blkio.throttle.write_bps_device", fmt.Sprintf("%d:%d %d", td.Major, td.Minor, td.Rate)); err != nil {
			return err
		}
	}
	for _, td := range r.BlkioThrottleReadIOPS {
		if err := fscommon.WriteFile(path, "blkio.throttle.read_iops_device", fmt.Sprintf("%d:%d %d", td.Major, td.Minor, td.Rate)); err != nil {
			return err
		}
	}
	for _, td := range r.BlkioThrottleWriteIOPS {
		if err := fscommon.WriteFile(path, "blkio.throttle.write_iops_device", fmt.Sprintf("%d:%d %d", td.Major, td.Minor, td.Rate)); err != nil {
			return err
		}
	}
	return nil
}

func (s *BlkioGroup) GetStats(path string, stats *cgroups.Stats) error {
	if path == "" {
		return nil
	}
	entries, err := readBlkioEntries(path, "blkio.throttle.io_service_bytes")
	if err == nil {
		stats.BlkioStats.IoServiceBytesRecursive = entries
	}
	entries, err = readBlkioEntries(path, "blkio.throttle.io_serviced")
	if err == nil {
		stats.BlkioStats.IoServicedRecursive = entries
	}
	return nil
}

// readBlkioEntries parses blkio's "major:minor op value" per-line stat
// files into BlkioStatEntry slices.
func readBlkioEntries(path, file string) ([]cgroups.BlkioStatEntry, error) {
	raw, err := fscommon.ReadFile(path, file)
	if err != nil {
		return nil, err
	}
	var entries []cgroups.BlkioStatEntry
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		fields := strings.Fields(line)
		if len(fields) != 3 {
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
		value, err := strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			continue
		}
		entries = append(entries, cgroups.BlkioStatEntry{Major: major, Minor: minor, Op: fields[1], Value: value})
	}
	return entries, nil
}

func (s *BlkioGroup) Clone(source, dest string) error {
	if err := fscommon.WriteFile(source, "cgroup.clone_children", "1"); err != nil {
		return err
	}
	return os.MkdirAll(dest, 0o755)
}
