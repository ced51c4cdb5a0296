package configs

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Config is the full runtime configuration for a container, derived from
// the OCI bundle's config.json by the specconv package. It is the type
// threaded through every stage of the process pipeline (supervisor,
// intermediate, init) and is what gets embedded in the container record.
type Config struct {
	// NoPivotRoot disables the use of pivot_root and uses chroot+MS_MOVE
	// instead. Set via the create command's --no-pivot flag.
	NoPivotRoot bool `json:"no_pivot_root"`

	// NoNewKeyring disables the creation of a new session keyring for the
	// container. Set via --no-new-keyring.
	NoNewKeyring bool `json:"no_new_keyring"`

	// Rootfs is the absolute path to the container's root filesystem.
	Rootfs string `json:"rootfs"`

	// RootPropagation is the mount propagation applied to the container's
	// root mount after pivot_root (rprivate by default).
	RootPropagation int `json:"rootPropagation"`

	// Readonlyfs sets the entire container rootfs as readonly.
	Readonlyfs bool `json:"readonlyfs"`

	// Mounts describes the mounts to perform inside the rootfs, in order.
	Mounts []*Mount `json:"mounts"`

	// Devices is the list of device nodes created inside the rootfs.
	Devices []*Device `json:"devices"`

	// MountLabel is the SELinux label used for mounting.
	MountLabel string `json:"mount_label"`

	// Hostname is set via sethostname(2) inside the uts namespace.
	Hostname string `json:"hostname"`

	// Domainname is set via setdomainname(2) inside the uts namespace.
	Domainname string `json:"domainname"`

	// Namespaces is the set of namespaces the container wants, each
	// either created fresh or entered via an existing host path.
	Namespaces Namespaces `json:"namespaces"`

	// Capabilities specifies the capability sets applied to the init
	// process before exec.
	Capabilities *Capabilities `json:"capabilities"`

	// Networks is retained only for stats reporting on pre-existing veth
	// interfaces named by the spec; network setup itself is out of scope.
	Networks []*Network `json:"networks"`

	// Routes is unused beyond being round-tripped; kept for config parity.
	Routes []*Route `json:"routes"`

	// Cgroups holds the cgroup path and resource limits for the container.
	Cgroups *Cgroup `json:"cgroups"`

	// AppArmorProfile is applied via the out-of-scope "apply this profile"
	// primitive; the runtime only forwards the name.
	AppArmorProfile string `json:"apparmor_profile"`

	// ProcessLabel is the SELinux label applied to the init process.
	ProcessLabel string `json:"process_label"`

	// Rlimits are applied to the init process before exec.
	Rlimits []Rlimit `json:"rlimits"`

	// OomScoreAdj is carried in the config only: specconv does not fill
	// it and nothing writes /proc/self/oom_score_adj.
	OomScoreAdj *int `json:"oom_score_adj,omitempty"`

	// UidMappings and GidMappings configure the user namespace, when one
	// is requested. At least one entry is required for a user namespace.
	UidMappings []IDMap `json:"uid_mappings"`
	GidMappings []IDMap `json:"gid_mappings"`

	// MaskPaths are bind-mounted over with /dev/null (files) or an empty
	// tmpfs (directories) after pivot_root.
	MaskPaths []string `json:"mask_paths"`

	// ReadonlyPaths are remounted MS_BIND|MS_RDONLY after pivot_root.
	ReadonlyPaths []string `json:"readonly_paths"`

	// Sysctl key/value pairs are written via /proc/sys after the mount
	// namespace is set up.
	Sysctl map[string]string `json:"sysctl"`

	// Seccomp is the OCI seccomp configuration; compiling it into a BPF
	// program is out of scope, the runtime only installs it.
	Seccomp *Seccomp `json:"seccomp"`

	// NoNewPrivileges sets PR_SET_NO_NEW_PRIVS for the init process.
	NoNewPrivileges bool `json:"no_new_privileges"`

	// Hooks are invoked at the lifecycle points named in HookName.
	Hooks Hooks `json:"hooks"`

	// Version is the OCI version the bundle declared.
	Version string `json:"version"`

	// Labels are the OCI annotations round-tripped into the state.json.
	Labels []string `json:"labels"`

	// ParentDeathSignal is set as the init command's SysProcAttr.Pdeathsig.
	ParentDeathSignal int `json:"parent_death_signal"`

	// RootlessEUID is true when the runtime itself is running unprivileged.
	RootlessEUID bool `json:"rootless_euid,omitempty"`

	// RootlessCgroups indicates that cgroup write failures should be
	// tolerated because the rootless user lacks delegation.
	RootlessCgroups bool `json:"rootless_cgroups,omitempty"`

	// Config has no Intel RDT fields; Intel RDT management is not
	// implemented (no Resctrl component is named in the spec).
}

// HostRootUID returns the UID on the host that maps to UID 0 in the
// container's user namespace, or the current UID if there is no user ns.
func (c Config) HostRootUID() (int, error) {
	if c.Namespaces.Contains(NEWUSER) {
		return hostIDFromMapping(0, c.UidMappings)
	}
	return os.Getuid(), nil
}

// HostRootGID returns the GID on the host that maps to GID 0 in the
// container's user namespace, or the current GID if there is no user ns.
func (c Config) HostRootGID() (int, error) {
	if c.Namespaces.Contains(NEWUSER) {
		return hostIDFromMapping(0, c.GidMappings)
	}
	return os.Getgid(), nil
}

func hostIDFromMapping(containerID int, mappings []IDMap) (int, error) {
	for _, m := range mappings {
		if containerID >= m.ContainerID && containerID < m.ContainerID+m.Size {
			return m.HostID + (containerID - m.ContainerID), nil
		}
	}
	return -1, errNoMappingFound
}

var errNoMappingFound = &mappingError{"no mapping found"}

type mappingError struct{ s string }

func (e *mappingError) Error() string { return e.s }

// IDMap is a single uid/gid mapping range, mirroring specs.LinuxIDMapping.
type IDMap struct {
	ContainerID int `json:"container_id"`
	HostID      int `json:"host_id"`
	Size        int `json:"size"`
}

// Device describes a device node created inside the container rootfs.
type Device struct {
	Path        string      `json:"path"`
	Type        rune        `json:"type"`
	Major       int64       `json:"major"`
	Minor       int64       `json:"minor"`
	Permissions string      `json:"permissions"`
	FileMode    os.FileMode `json:"file_mode"`
	Uid         uint32      `json:"uid"`
	Gid         uint32      `json:"gid"`
	// Allow is false for device cgroup deny-list entries with no path
	// (wildcard controller rules that don't create a node).
	Allow bool `json:"allow"`
}

// Mkdev packs Major/Minor into the dev_t value mknod(2) expects.
func (d *Device) Mkdev() int {
	return int(unix.Mkdev(uint32(d.Major), uint32(d.Minor)))
}

// Network retains only the fields stats collection needs.
type Network struct {
	Type              string `json:"type"`
	Name              string `json:"name"`
	HostInterfaceName string `json:"host_interface_name"`
}

// Route is accepted from the spec but never interpreted (networking setup
// is out of scope); kept so config round-trips byte-identically.
type Route struct {
	Destination string `json:"destination"`
	Source      string `json:"source"`
	Gateway     string `json:"gateway"`
	InterfaceName string `json:"interface_name"`
}

// Rlimit mirrors a single POSIX rlimit entry.
type Rlimit struct {
	Type int    `json:"type"`
	Hard uint64 `json:"hard"`
	Soft uint64 `json:"soft"`
}

// Seccomp is the runtime's view of the OCI seccomp config: enough to hand
// to the seccomp installer primitive, without re-implementing BPF
// compilation.
type Seccomp struct {
	DefaultAction string
	Architectures []string
	Syscalls      []SeccompSyscall
}

type SeccompSyscall struct {
	Names  []string
	Action string
	Args   []SeccompArg
}

type SeccompArg struct {
	Index    uint
	Value    uint64
	ValueTwo uint64
	Op       string
}

// Capabilities holds the five capability sets by name (e.g. "CAP_SYS_ADMIN").
type Capabilities struct {
	Bounding    []string
	Effective   []string
	Inheritable []string
	Permitted   []string
	Ambient     []string
}

// CreatedTime is a small helper so container records can format timestamps
// the same way everywhere.
func CreatedTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
