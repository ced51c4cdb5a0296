// Package mount wraps moby/sys/mountinfo with the small set of lookup
// helpers rootfs_linux.go needs (is this already a mountpoint, what's
// mounted there, what filesystem backs it) — .
package mount

import (
	"fmt"

	"github.com/moby/sys/mountinfo"
)

// Info is an alias for mountinfo's parsed /proc/<pid>/mountinfo row;
// kept as a local name so callers depend on this package, not
// mountinfo, directly.
type Info = mountinfo.Info

// GetMounts retrieves a list of mounts for the current running process.
func GetMounts() ([]*Info, error) {
	return mountinfo.GetMounts(nil)
}

// GetMountsPid retrieves a list of mounts for the given pid.
func GetMountsPid(pid int) ([]*Info, error) {
	return mountinfo.PidMountInfo(pid)
}

// Mounted reports whether path is itself a mountpoint.
func Mounted(path string) (bool, error) {
	return mountinfo.Mounted(path)
}

// MountedWithFs reports whether path is a mountpoint backed by fs.
func MountedWithFs(path, fs string) (bool, error) {
	mounts, err := GetMounts()
	if err != nil {
		return false, err
	}
	for _, m := range mounts {
		if m.Mountpoint == path && m.FSType == fs {
			return true, nil
		}
	}
	return false, nil
}

// GetMountAt returns mount info for the given mountpoint.
func GetMountAt(mountpoint string) (*Info, error) {
	mounts, err := GetMounts()
	if err != nil {
		return nil, err
	}
	for _, m := range mounts {
		if m.Mountpoint == mountpoint {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%s is not a mountpoint", mountpoint)
}
