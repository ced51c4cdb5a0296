package configs

// Mount describes a single mount to perform while preparing the rootfs,
// step 2.
type Mount struct {
	// Source is the mount source: a host path for bind mounts, or the
	// filesystem type's pseudo-source ("tmpfs", "proc", ...) otherwise.
	Source string `json:"source"`

	// Destination is relative to the container rootfs.
	Destination string `json:"destination"`

	// Device is the filesystem type passed to mount(2) (or "bind").
	Device string `json:"device"`

	// Flags are mount(2) MS_* flags.
	Flags int `json:"flags"`

	// PropagationFlags holds MS_{PRIVATE,SLAVE,SHARED,UNBINDABLE}[|MS_REC],
	// applied in a second mount(2) call after the main one (propagation
	// flags cannot be combined with most other flags in one call).
	PropagationFlags []int `json:"propagation_flags"`

	// Data is the filesystem-specific mount(2) data string (e.g. tmpfs
	// size=, proc's empty string, and so on).
	Data string `json:"data"`

	// Relabel requests an SELinux relabel of Source to MountLabel.
	Relabel string `json:"relabel"`

	// Extensions holds the EXT_* bits below (EXT_COPYUP for tmpfs
	// copy-up).
	Extensions int `json:"-"`
}

// IsBind reports whether this is (or implies) a bind mount.
func (m *Mount) IsBind() bool {
	return m.Device == "bind"
}

// Command describes an external mount helper invocation, for mount types
// that can't be performed via mount(2) directly.
type Command struct {
	Path string
	Args []string
	Env  []string
	Dir  string
}

// Extensions bits, orthogonal to the mount(2) Flags/PropagationFlags.
const (
	// EXT_COPYUP marks a tmpfs-over-existing-directory mount whose
	// pre-existing rootfs contents should be copied up into the tmpfs
	// before anything else is bind-mounted over it.
	EXT_COPYUP = 1 << iota
)
