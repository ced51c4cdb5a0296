package fs2

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/go-oci/ocirt/libcontainer/cgroups"
	"github.com/go-oci/ocirt/libcontainer/configs"
)

const defaultUnifiedMountpoint = "/sys/fs/cgroup"

// defaultDirPath computes the unified cgroup directory for a Cgroup
// config that didn't have dirPath given explicitly, the same
// Path-or-Name/Parent rule the v1 manager's cgroupData.path() follows.
func defaultDirPath(c *configs.Cgroup) (string, error) {
	if (c.Name != "" || c.Parent != "") && c.Path != "" {
		return "", errors.New("cgroup: either Path or Name and Parent should be used")
	}

	innerPath := c.Path
	if innerPath == "" {
		innerPath = filepath.Join(c.Parent, c.Name)
	}
	if filepath.IsAbs(innerPath) {
		return filepath.Join(defaultUnifiedMountpoint, innerPath), nil
	}
	own, err := cgroups.GetOwnCgroupPath("")
	if err != nil {
		return "", err
	}
	return filepath.Join(own, innerPath), nil
}

// CreateCgroupPath creates every directory on the way down to dirPath,
// one at a time, enabling all available controllers in
// cgroup.subtree_control at each level the way the kernel requires
// (a controller can only be delegated to a child once its parent has
// it enabled).
func CreateCgroupPath(dirPath string, c *configs.Cgroup) error {
	if !filepath.IsAbs(dirPath) {
		return fmt.Errorf("dir %s must be an absolute path", dirPath)
	}

	content, err := os.ReadFile(filepath.Join(defaultUnifiedMountpoint, "cgroup.controllers"))
	if err != nil {
		return err
	}
	var enable []string
	for _, ctrl := range strings.Fields(string(content)) {
		enable = append(enable, "+"+ctrl)
	}
	avail := strings.Join(enable, " ")

	rel, err := filepath.Rel(defaultUnifiedMountpoint, dirPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("dir %s must be under %s", dirPath, defaultUnifiedMountpoint)
	}
	current := "/"
	for _, comp := range splitPath(rel) {
		current = filepath.Join(current, comp)
		if current == "/" {
			continue
		}
		full := filepath.Join(defaultUnifiedMountpoint, current)
		if err := os.Mkdir(full, 0o755); err != nil && !os.IsExist(err) {
			return err
		}
		if full != filepath.Clean(dirPath) {
			// Don't delegate controllers into the leaf cgroup itself;
			// only intermediate directories need subtree_control so the
			// leaf's own controllers stay "domain" rather than
			// "domain threaded"/invalid.
			_ = os.WriteFile(filepath.Join(full, "cgroup.subtree_control"), []byte(avail), 0o644)
		}
	}
	return nil
}

func splitPath(p string) []string {
	p = filepath.Clean(p)
	var parts []string
	for p != "/" && p != "." && p != "" {
		parts = append([]string{filepath.Base(p)}, parts...)
		p = filepath.Dir(p)
	}
	return parts
}

// needAnyControllers reports whether the configured Resources ask for
// anything a rootless user without a delegated cgroup path could not
// satisfy, so Apply can decide whether a cgroup-creation failure is
// fatal or safely ignorable.
func needAnyControllers(c *configs.Cgroup) (bool, error) {
	if c == nil || c.Resources == nil {
		return false, nil
	}
	r := c.Resources
	return r.Memory != 0 || r.MemoryReservation != 0 || r.MemorySwap != 0 ||
		r.CpuShares != 0 || r.CpuWeight != 0 || r.CpuQuota != 0 || r.CpuPeriod != 0 ||
		r.CpusetCpus != "" || r.CpusetMems != "" ||
		r.PidsLimit != 0 ||
		r.BlkioWeight != 0 || len(r.BlkioWeightDevice) > 0 ||
		len(r.HugetlbLimit) > 0 ||
		len(r.Devices) > 0, nil
}
