// Package specconv converts an OCI runtime-spec config.json into the
// configs.Config the process pipeline consumes as the first step of
// container creation.
package specconv

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/semver"
	"github.com/docker/go-units"
	"github.com/go-oci/ocirt/libcontainer/configs"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"golang.org/x/sys/unix"
)

// CreateOpts bundles the config.json plus the command-line decisions that
// shape the resulting configs.Config.
type CreateOpts struct {
	CgroupName       string
	UseSystemdCgroup bool
	NoPivotRoot      bool
	NoNewKeyring     bool
	Spec             *specs.Spec
	Rootless         bool
}

// mountPropagationMapping and mountFlagMapping mirror mount(2)'s option
// strings, the same MS_* constants rootfs_linux.go mounts with.
var mountPropagationMapping = map[string]int{
	"private":     unix.MS_PRIVATE,
	"rprivate":    unix.MS_PRIVATE | unix.MS_REC,
	"shared":      unix.MS_SHARED,
	"rshared":     unix.MS_SHARED | unix.MS_REC,
	"slave":       unix.MS_SLAVE,
	"rslave":      unix.MS_SLAVE | unix.MS_REC,
	"unbindable":  unix.MS_UNBINDABLE,
	"runbindable": unix.MS_UNBINDABLE | unix.MS_REC,
}

var mountFlagMapping = map[string]struct {
	clear bool
	flag  int
}{
	"acl":           {false, 0},
	"async":         {true, unix.MS_SYNCHRONOUS},
	"atime":         {true, unix.MS_NOATIME},
	"bind":          {false, unix.MS_BIND},
	"defaults":      {false, 0},
	"dev":           {true, unix.MS_NODEV},
	"diratime":      {true, unix.MS_NODIRATIME},
	"dirsync":       {false, unix.MS_DIRSYNC},
	"exec":          {true, unix.MS_NOEXEC},
	"mand":          {false, unix.MS_MANDLOCK},
	"noacl":         {false, 0},
	"noatime":       {false, unix.MS_NOATIME},
	"nodev":         {false, unix.MS_NODEV},
	"nodiratime":    {false, unix.MS_NODIRATIME},
	"noexec":        {false, unix.MS_NOEXEC},
	"nomand":        {true, unix.MS_MANDLOCK},
	"norelatime":    {true, unix.MS_RELATIME},
	"nostrictatime": {true, unix.MS_STRICTATIME},
	"nosuid":        {false, unix.MS_NOSUID},
	"rbind":         {false, unix.MS_BIND | unix.MS_REC},
	"relatime":      {false, unix.MS_RELATIME},
	"remount":       {false, unix.MS_REMOUNT},
	"ro":            {false, unix.MS_RDONLY},
	"rw":            {true, unix.MS_RDONLY},
	"strictatime":   {false, unix.MS_STRICTATIME},
	"suid":          {true, unix.MS_NOSUID},
	"sync":          {false, unix.MS_SYNCHRONOUS},
}

// parseMountOptions splits an OCI mount's Options into mount(2) flags,
// propagation flags applied in a second call, and a leftover comma-joined
// data string for filesystem-specific options (tmpfs size=, and so on).
func parseMountOptions(options []string) (flags int, pflags []int, data []string) {
	for _, o := range options {
		if f, ok := mountPropagationMapping[o]; ok {
			pflags = append(pflags, f)
			continue
		}
		if m, ok := mountFlagMapping[o]; ok {
			if m.clear {
				flags &= ^m.flag
			} else {
				flags |= m.flag
			}
			continue
		}
		data = append(data, o)
	}
	return flags, pflags, data
}

// supportedOCIVersions is the range of config.json "ociVersion" strings
// this runtime understands; anything outside it is rejected up front
// rather than failing confusingly partway through conversion.
var supportedOCIVersions = func() *semver.Constraints {
	c, err := semver.NewConstraint(">= 1.0.0, < 2.0.0")
	if err != nil {
		panic(err)
	}
	return c
}()

func checkOCIVersion(v string) error {
	if v == "" {
		return nil
	}
	ver, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("specconv: invalid ociVersion %q: %w", v, err)
	}
	// Constraint checks reject every pre-release version, so a pre-release
	// such as "1.0.2-dev" is checked by its release part.
	if ver.Prerelease() != "" {
		ver, err = semver.NewVersion(fmt.Sprintf("%d.%d.%d", ver.Major(), ver.Minor(), ver.Patch()))
		if err != nil {
			return fmt.Errorf("specconv: invalid ociVersion %q: %w", v, err)
		}
	}
	if !supportedOCIVersions.Check(ver) {
		return fmt.Errorf("specconv: ociVersion %q is not supported by this runtime", v)
	}
	return nil
}

// CreateLibcontainerConfig builds a configs.Config from opts.Spec, the
// entrypoint called from the "create"/"run" commands.
func CreateLibcontainerConfig(opts *CreateOpts) (*configs.Config, error) {
	spec := opts.Spec
	if err := checkOCIVersion(spec.Version); err != nil {
		return nil, err
	}
	if spec.Root == nil {
		return nil, fmt.Errorf("specconv: config.json has no root")
	}
	rootfs := spec.Root.Path
	if !filepath.IsAbs(rootfs) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		rootfs = filepath.Join(cwd, rootfs)
	}

	config := &configs.Config{
		Rootfs:          rootfs,
		Readonlyfs:      spec.Root.Readonly,
		NoPivotRoot:     opts.NoPivotRoot,
		NoNewKeyring:    opts.NoNewKeyring,
		RootPropagation: unix.MS_REC | unix.MS_PRIVATE,
		Version:         specs.Version,
		RootlessEUID:    opts.Rootless,
		RootlessCgroups: opts.Rootless,
	}

	if spec.Hostname != "" {
		config.Hostname = spec.Hostname
	}
	if spec.Domainname != "" {
		config.Domainname = spec.Domainname
	}

	if spec.Annotations != nil {
		for k, v := range spec.Annotations {
			config.Labels = append(config.Labels, fmt.Sprintf("%s=%s", k, v))
		}
	}
	config.Labels = append(config.Labels, "bundle="+cwdOrEmpty())

	if err := setupNamespaces(config, spec); err != nil {
		return nil, err
	}
	if err := setupMounts(config, spec); err != nil {
		return nil, err
	}
	if err := setupDevices(config, spec); err != nil {
		return nil, err
	}
	if spec.Process != nil {
		if err := setupProcess(config, spec.Process); err != nil {
			return nil, err
		}
	}
	setupUserNamespaceMappings(config, spec)

	if spec.Linux != nil {
		config.MaskPaths = spec.Linux.MaskedPaths
		config.ReadonlyPaths = spec.Linux.ReadonlyPaths
		config.Sysctl = spec.Linux.Sysctl
		if spec.Linux.RootfsPropagation != "" {
			if f, ok := mountPropagationMapping[spec.Linux.RootfsPropagation]; ok {
				config.RootPropagation = f
			}
		}
		if err := setupCgroups(config, opts, spec.Linux, spec.Annotations); err != nil {
			return nil, err
		}
		if spec.Linux.Seccomp != nil {
			config.Seccomp = setupSeccomp(spec.Linux.Seccomp)
		}
	} else {
		config.Cgroups = &configs.Cgroup{Name: opts.CgroupName, Parent: "ocirt"}
	}

	setupHooks(config, spec.Hooks)

	return config, nil
}

func secondsToDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}

func cwdOrEmpty() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return cwd
}

func setupNamespaces(config *configs.Config, spec *specs.Spec) error {
	if spec.Linux == nil {
		return nil
	}
	for _, ns := range spec.Linux.Namespaces {
		t := configs.NamespaceType(ns.Type)
		if configs.NsName(t) == "" {
			return fmt.Errorf("specconv: unknown namespace type %q", ns.Type)
		}
		config.Namespaces = append(config.Namespaces, configs.Namespace{Type: t, Path: ns.Path})
	}
	return nil
}

func setupMounts(config *configs.Config, spec *specs.Spec) error {
	for _, m := range spec.Mounts {
		flags, pflags, data := parseMountOptions(m.Options)
		device := m.Type
		if flags&unix.MS_BIND != 0 {
			device = "bind"
		}
		config.Mounts = append(config.Mounts, &configs.Mount{
			Source:           m.Source,
			Destination:      m.Destination,
			Device:           device,
			Flags:            flags,
			PropagationFlags: pflags,
			Data:             strings.Join(data, ","),
		})
	}
	return nil
}

// defaultDevices are the device nodes every OCI-compliant container gets
// regardless of what config.json's linux.devices lists explicitly.
var defaultDevices = []*configs.Device{
	{Path: "/dev/null", Type: 'c', Major: 1, Minor: 3, Permissions: "rwm", FileMode: 0o666},
	{Path: "/dev/zero", Type: 'c', Major: 1, Minor: 5, Permissions: "rwm", FileMode: 0o666},
	{Path: "/dev/full", Type: 'c', Major: 1, Minor: 7, Permissions: "rwm", FileMode: 0o666},
	{Path: "/dev/tty", Type: 'c', Major: 5, Minor: 0, Permissions: "rwm", FileMode: 0o666},
	{Path: "/dev/random", Type: 'c', Major: 1, Minor: 8, Permissions: "rwm", FileMode: 0o666},
	{Path: "/dev/urandom", Type: 'c', Major: 1, Minor: 9, Permissions: "rwm", FileMode: 0o666},
}

func setupDevices(config *configs.Config, spec *specs.Spec) error {
	for _, d := range defaultDevices {
		dev := *d
		dev.Allow = true
		config.Devices = append(config.Devices, &dev)
	}
	if spec.Linux == nil {
		return nil
	}
	for _, sd := range spec.Linux.Devices {
		uid := uint32(0)
		gid := uint32(0)
		if sd.UID != nil {
			uid = *sd.UID
		}
		if sd.GID != nil {
			gid = *sd.GID
		}
		mode := os.FileMode(0o666)
		if sd.FileMode != nil {
			mode = os.FileMode(*sd.FileMode)
		}
		config.Devices = append(config.Devices, &configs.Device{
			Path:     sd.Path,
			Type:     rune(sd.Type[0]),
			Major:    sd.Major,
			Minor:    sd.Minor,
			FileMode: mode,
			Uid:      uid,
			Gid:      gid,
			Allow:    true,
		})
	}
	return nil
}

func setupProcess(config *configs.Config, p *specs.Process) error {
	config.ProcessLabel = p.SelinuxLabel
	config.NoNewPrivileges = p.NoNewPrivileges

	if p.Capabilities != nil {
		config.Capabilities = &configs.Capabilities{
			Bounding:    p.Capabilities.Bounding,
			Effective:   p.Capabilities.Effective,
			Inheritable: p.Capabilities.Inheritable,
			Permitted:   p.Capabilities.Permitted,
			Ambient:     p.Capabilities.Ambient,
		}
	}

	for _, rl := range p.Rlimits {
		t, err := configs.RlimitTypeFromOCI(rl.Type)
		if err != nil {
			return err
		}
		config.Rlimits = append(config.Rlimits, configs.Rlimit{Type: t, Hard: rl.Hard, Soft: rl.Soft})
	}
	return nil
}

func setupUserNamespaceMappings(config *configs.Config, spec *specs.Spec) {
	if spec.Linux == nil {
		return
	}
	for _, m := range spec.Linux.UIDMappings {
		config.UidMappings = append(config.UidMappings, configs.IDMap{
			ContainerID: int(m.ContainerID),
			HostID:      int(m.HostID),
			Size:        int(m.Size),
		})
	}
	for _, m := range spec.Linux.GIDMappings {
		config.GidMappings = append(config.GidMappings, configs.IDMap{
			ContainerID: int(m.ContainerID),
			HostID:      int(m.HostID),
			Size:        int(m.Size),
		})
	}
}

// memoryLimitAnnotation is a human-readable fallback for memory.limit
// ("512m", "1g") honored when the structured resources.memory.limit
// field is absent, for bundles that would rather not compute the exact
// byte count by hand.
const memoryLimitAnnotation = "org.oci-rt.memory-limit"

func setupCgroups(config *configs.Config, opts *CreateOpts, linux *specs.Linux, annotations map[string]string) error {
	cg := &configs.Cgroup{
		Name:   opts.CgroupName,
		Parent: "ocirt",
	}
	if linux.CgroupsPath != "" {
		cg.Path = linux.CgroupsPath
	}
	cg.Systemd = opts.UseSystemdCgroup

	cg.Resources = &configs.Resources{}
	for _, d := range config.Devices {
		cg.Resources.Devices = append(cg.Resources.Devices, &configs.Device{
			Type:        d.Type,
			Major:       d.Major,
			Minor:       d.Minor,
			Permissions: d.Permissions,
			Allow:       d.Allow,
		})
	}

	if linux.Resources != nil {
		r := linux.Resources
		res := cg.Resources
		if r.Memory != nil {
			if r.Memory.Limit != nil {
				res.Memory = *r.Memory.Limit
			}
			if r.Memory.Reservation != nil {
				res.MemoryReservation = *r.Memory.Reservation
			}
			if r.Memory.Swap != nil {
				res.MemorySwap = *r.Memory.Swap
			}
			if r.Memory.Kernel != nil {
				res.KernelMemory = *r.Memory.Kernel
			}
			if r.Memory.DisableOOMKiller != nil {
				res.OomKillDisable = *r.Memory.DisableOOMKiller
			}
		}
		if r.CPU != nil {
			if r.CPU.Shares != nil {
				res.CpuShares = *r.CPU.Shares
			}
			if r.CPU.Quota != nil {
				res.CpuQuota = *r.CPU.Quota
			}
			if r.CPU.Period != nil {
				res.CpuPeriod = *r.CPU.Period
			}
			if r.CPU.RealtimeRuntime != nil {
				res.CpuRtRuntime = *r.CPU.RealtimeRuntime
			}
			if r.CPU.RealtimePeriod != nil {
				res.CpuRtPeriod = *r.CPU.RealtimePeriod
			}
			if r.CPU.Cpus != "" {
				res.CpusetCpus = r.CPU.Cpus
			}
			if r.CPU.Mems != "" {
				res.CpusetMems = r.CPU.Mems
			}
		}
		if r.Pids != nil {
			res.PidsLimit = r.Pids.Limit
		}
		if r.BlockIO != nil && r.BlockIO.Weight != nil {
			res.BlkioWeight = *r.BlockIO.Weight
		}
		for k, v := range r.Unified {
			if res.Unified == nil {
				res.Unified = map[string]string{}
			}
			res.Unified[k] = v
		}
	}

	if cg.Resources.Memory == 0 {
		if v, ok := annotations[memoryLimitAnnotation]; ok {
			limit, err := units.RAMInBytes(v)
			if err != nil {
				return fmt.Errorf("specconv: invalid %s annotation %q: %w", memoryLimitAnnotation, v, err)
			}
			cg.Resources.Memory = limit
		}
	}

	config.Cgroups = cg
	return nil
}

func setupSeccomp(s *specs.LinuxSeccomp) *configs.Seccomp {
	cfg := &configs.Seccomp{
		DefaultAction: string(s.DefaultAction),
	}
	for _, a := range s.Architectures {
		cfg.Architectures = append(cfg.Architectures, string(a))
	}
	for _, sc := range s.Syscalls {
		rule := configs.SeccompSyscall{
			Names:  sc.Names,
			Action: string(sc.Action),
		}
		for _, a := range sc.Args {
			rule.Args = append(rule.Args, configs.SeccompArg{
				Index:    uint(a.Index),
				Value:    a.Value,
				ValueTwo: a.ValueTwo,
				Op:       string(a.Op),
			})
		}
		cfg.Syscalls = append(cfg.Syscalls, rule)
	}
	return cfg
}

func setupHooks(config *configs.Config, h *specs.Hooks) {
	if h == nil {
		return
	}
	config.Hooks = configs.Hooks{}
	convert := func(hooks []specs.Hook) configs.HookList {
		list := make(configs.HookList, 0, len(hooks))
		for _, sh := range hooks {
			var timeout int
			if sh.Timeout != nil {
				timeout = *sh.Timeout
			}
			list = append(list, configs.Hook{
				Path:    sh.Path,
				Args:    sh.Args,
				Env:     sh.Env,
				Timeout: secondsToDuration(timeout),
			})
		}
		return list
	}
	if len(h.Prestart) > 0 {
		config.Hooks[configs.Prestart] = convert(h.Prestart)
	}
	if len(h.CreateRuntime) > 0 {
		config.Hooks[configs.CreateRuntime] = convert(h.CreateRuntime)
	}
	if len(h.CreateContainer) > 0 {
		config.Hooks[configs.CreateContainer] = convert(h.CreateContainer)
	}
	if len(h.StartContainer) > 0 {
		config.Hooks[configs.StartContainer] = convert(h.StartContainer)
	}
	if len(h.Poststart) > 0 {
		config.Hooks[configs.Poststart] = convert(h.Poststart)
	}
	if len(h.Poststop) > 0 {
		config.Hooks[configs.Poststop] = convert(h.Poststop)
	}
}
