//go:build linux
// +build linux

package libcontainer

import (
	"fmt"
	"os/exec"
	"strconv"
	"syscall"

	"github.com/go-oci/ocirt/libcontainer/configs"
)

// needsIDMapHelper reports whether a user namespace's mapping can only be
// established through the setuid newuidmap/newgidmap binaries, rather than
// directly via SysProcAttr at clone(2) time.
//
// An unprivileged process may write its own (i.e. its child's, immediately
// post-clone) uid_map/gid_map without help, but the kernel restricts that
// self-service write to a single line whose host id equals the writer's own
// uid/gid (user_namespaces(7)). Anything wider - the subordinate id ranges
// handed out via /etc/subuid and /etc/subgid - requires newuidmap/newgidmap,
// which are setuid-root and validate against those files instead.
func needsIDMapHelper(cfg *configs.Config) bool {
	return cfg.RootlessEUID && (len(cfg.UidMappings) > 1 || len(cfg.GidMappings) > 1)
}

// toSysProcIDMap converts the runtime's own IDMap slice to the type
// os/exec's SysProcAttr expects.
func toSysProcIDMap(mappings []configs.IDMap) []syscall.SysProcIDMap {
	if len(mappings) == 0 {
		return nil
	}
	out := make([]syscall.SysProcIDMap, len(mappings))
	for i, m := range mappings {
		out[i] = syscall.SysProcIDMap{
			ContainerID: m.ContainerID,
			HostID:      m.HostID,
			Size:        m.Size,
		}
	}
	return out
}

// applyIDMaps runs newuidmap/newgidmap against pid. It must be called after
// the child exists but before it has read anything off the init pipe, since
// that is the only point at which the child's uid_map/gid_map is guaranteed
// to still be empty and the child is guaranteed not to have touched its
// credentials yet.
func applyIDMaps(pid int, newuidmapPath string, uidMappings []configs.IDMap, newgidmapPath string, gidMappings []configs.IDMap) error {
	if len(uidMappings) > 0 {
		if err := runIDMapHelper(newuidmapPath, "newuidmap", pid, uidMappings); err != nil {
			return err
		}
	}
	if len(gidMappings) > 0 {
		if err := runIDMapHelper(newgidmapPath, "newgidmap", pid, gidMappings); err != nil {
			return err
		}
	}
	return nil
}

func runIDMapHelper(path, name string, pid int, mappings []configs.IDMap) error {
	if path == "" {
		return newGenericError(fmt.Errorf(
			"%s: no %s binary found on PATH; rootless multi-range id mapping needs the setuid "+
				"newuidmap/newgidmap helpers (shadow-utils) configured against /etc/subuid and /etc/subgid",
			name, name), PermissionDenied)
	}
	args := make([]string, 0, 1+3*len(mappings))
	args = append(args, strconv.Itoa(pid))
	for _, m := range mappings {
		args = append(args, strconv.Itoa(m.ContainerID), strconv.Itoa(m.HostID), strconv.Itoa(m.Size))
	}
	out, err := exec.Command(path, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %v: %w: %s", name, args, err, out)
	}
	return nil
}
