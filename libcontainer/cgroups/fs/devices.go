package fs

import (
	"fmt"
	"os"

	"github.com/go-oci/ocirt/libcontainer/cgroups"
	"github.com/go-oci/ocirt/libcontainer/cgroups/fscommon"
	"github.com/go-oci/ocirt/libcontainer/configs"
)

// DevicesGroup applies the device allow/deny list. Its absence is
// treated as fatal by manager.Apply, unlike every other
// subsystem, which is skipped silently if the host doesn't mount it.
type DevicesGroup struct{}

func (s *DevicesGroup) Name() string { return "devices" }

func (s *DevicesGroup) Apply(path string, d *cgroupData) error {
	if path == "" {
		// Only possible when SkipDevices is set; join() is the only
		// thing we'd otherwise do and it no-ops on an empty path too.
		return nil
	}
	return join(path, d.pid)
}

func (s *DevicesGroup) Set(path string, cgroup *configs.Cgroup) error {
	if cgroup.Resources.SkipDevices {
		return nil
	}
	if err := fscommon.WriteFile(path, "devices.deny", "a"); err != nil {
		return err
	}
	for _, dev := range cgroup.Resources.Devices {
		rule := deviceRule(dev)
		file := "devices.deny"
		if dev.Allow {
			file = "devices.allow"
		}
		if err := fscommon.WriteFile(path, file, rule); err != nil {
			return fmt.Errorf("failed to write %s to devices.%s: %w", rule, map[bool]string{true: "allow", false: "deny"}[dev.Allow], err)
		}
	}
	return nil
}

// deviceRule renders a configs.Device as the "type major:minor perms"
// string devices.allow/deny expect, using "*" for a wildcard major or
// minor the way the OCI default device set expresses "all devices".
func deviceRule(dev *configs.Device) string {
	major := "*"
	if dev.Major >= 0 {
		major = fmt.Sprintf("%d", dev.Major)
	}
	minor := "*"
	if dev.Minor >= 0 {
		minor = fmt.Sprintf("%d", dev.Minor)
	}
	devType := dev.Type
	if devType == 0 {
		devType = 'a'
	}
	return fmt.Sprintf("%c %s:%s %s", devType, major, minor, dev.Permissions)
}

func (s *DevicesGroup) GetStats(path string, stats *cgroups.Stats) error { return nil }

func (s *DevicesGroup) Clone(source, dest string) error {
	if err := fscommon.WriteFile(source, "cgroup.clone_children", "1"); err != nil {
		return err
	}
	return os.MkdirAll(dest, 0o755)
}
