//go:build linux
// +build linux

package libcontainer

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	console "github.com/containerd/console"
	capability "github.com/moby/sys/capability"
	"github.com/go-oci/ocirt/libcontainer/configs"
	"github.com/go-oci/ocirt/libcontainer/nsctrl"
	"github.com/go-oci/ocirt/libcontainer/syncpipe"
	"github.com/go-oci/ocirt/libcontainer/syscallfacade"
	"github.com/go-oci/ocirt/libcontainer/utils"
	"github.com/opencontainers/runtime-spec/specs-go"
	"golang.org/x/sys/unix"
)

// initType selects which of the two init flavors the re-exec'd process
// runs, carried down via the _LIBCONTAINER_INITTYPE env var.
type initType string

const (
	initStandard initType = "standard"
	initSetns    initType = "setns"
)

// initConfig is everything the init-reexec process needs to bring a
// process up inside the container, threaded down through the init pipe
// as JSON by the parent.
type initConfig struct {
	Config           *configs.Config `json:"config"`
	Args             []string        `json:"args"`
	Env              []string        `json:"env"`
	User             string          `json:"user"`
	AdditionalGroups []string        `json:"additional_groups"`
	Cwd              string          `json:"cwd"`
	Capabilities     *Capabilities   `json:"capabilities"`
	PassedFilesCount int             `json:"passed_files_count"`
	ContainerId      string          `json:"container_id"`
	NoNewPrivileges  bool            `json:"no_new_privileges"`
	RootlessEUID     bool            `json:"rootless_euid"`
	RootlessCgroups  bool            `json:"rootless_cgroups"`
	AppArmorProfile  string          `json:"apparmor_profile"`
	ProcessLabel     string          `json:"process_label"`
	Rlimits          []Rlimit        `json:"rlimits"`
	CreateConsole    bool            `json:"create_console"`
	ConsoleWidth     uint16          `json:"console_width"`
	ConsoleHeight    uint16          `json:"console_height"`
	SpecState        *specs.State    `json:"spec_state"`
	NotifySocketPath string          `json:"notify_socket_path"`
}

// initer is implemented by the two init flavors: linuxStandardInit runs
// full namespace/rootfs/cgroup bring-up for a container's first process;
// linuxSetnsInit only joins an already-running container, for exec.
type initer interface {
	Init() error
}

func newContainerInit(t initType, pipe *syncpipe.Pipe, consoleSocket *os.File, config *initConfig) (initer, error) {
	if err := populateProcessEnvironment(config.Env); err != nil {
		return nil, err
	}
	switch t {
	case initSetns:
		return &linuxSetnsInit{
			pipe:          pipe,
			consoleSocket: consoleSocket,
			config:        config,
		}, nil
	case initStandard:
		return &linuxStandardInit{
			pipe:          pipe,
			consoleSocket: consoleSocket,
			parentPid:     unix.Getppid(),
			config:        config,
		}, nil
	default:
		return nil, fmt.Errorf("unknown init type %q", t)
	}
}

// populateProcessEnvironment replaces this process's environment with
// the one requested for the contained process, before any namespace
// work that might consult it (e.g. $HOME-sensitive libraries).
func populateProcessEnvironment(env []string) error {
	os.Clearenv()
	for _, pair := range env {
		if i := strings.IndexByte(pair, '='); i >= 0 {
			if err := os.Setenv(pair[:i], pair[i+1:]); err != nil {
				return err
			}
		}
	}
	return nil
}

// syncParentHooks tells the parent the pre-pivot mount work is done so it
// can run the CreateRuntime/CreateContainer hooks while the old root is
// still reachable, then blocks for the parent's go-ahead.
func syncParentHooks(pipe *syncpipe.Pipe) error {
	if err := pipe.Send(syncpipe.Message{Kind: syncpipe.ProcReady}); err != nil {
		return newSystemErrorWithCause(err, "sending pre-pivot ready")
	}
	if _, err := pipe.RecvExpect(syncpipe.ProcReady); err != nil {
		return newGenericError(fmt.Errorf("waiting for hooks go-ahead: %w", err), Protocol)
	}
	return nil
}

// syncParentReady tells the parent init has finished everything except
// the final exec, so the parent can run poststart bookkeeping and the
// caller can mark the container Running.
func syncParentReady(pipe *syncpipe.Pipe) error {
	return pipe.Send(syncpipe.Message{Kind: syncpipe.InitReady})
}

// applyNamespaces enters/creates every namespace the cloneflags given
// to exec.Cmd didn't already establish: namespaces with an explicit
// Path are always joined here rather than at clone time (nsctrl.Apply),
// since exec.Cmd's Cloneflags only ever create fresh namespaces. For a
// setns process every namespace arrives with a Path (there is no
// cloneflags step at all), so skip is empty and every type is entered.
func applyNamespaces(config *initConfig, skipClone bool) error {
	ns := config.Config.Namespaces
	skip := map[configs.NamespaceType]bool{}
	if skipClone {
		for _, n := range ns {
			if n.Path == "" {
				skip[n.Type] = true
			}
		}
	}
	ctrl := nsctrl.New(syscallfacade.Linux{})
	return ctrl.Apply(ns, skip)
}

// finalizeNamespace drops to the requested user/group, applies rlimits,
// and closes fds the contained process shouldn't inherit, per this runtime
// §4.H steps 6-7, then applies the capability sets itself as its last
// step.
func finalizeNamespace(config *initConfig) error {
	if err := utils.CloseExecFrom(config.PassedFilesCount + stdioFdCount); err != nil {
		return newSystemErrorWithCause(err, "closing exec fds")
	}
	if err := setupRlimits(config.Rlimits); err != nil {
		return newSystemErrorWithCause(err, "setting rlimits for process")
	}
	if err := setupUser(config); err != nil {
		return newSystemErrorWithCause(err, "setting up user")
	}
	if config.Cwd != "" {
		if err := unix.Chdir(config.Cwd); err != nil {
			return newSystemErrorWithCausef(err, "chdir to cwd %q", config.Cwd)
		}
	}
	if err := setupCapabilities(config.Capabilities); err != nil {
		return newSystemErrorWithCause(err, "setting capabilities")
	}
	return nil
}

func setupRlimits(limits []Rlimit) error {
	for _, rl := range limits {
		if err := unix.Setrlimit(rl.Type, &unix.Rlimit{Cur: rl.Soft, Max: rl.Hard}); err != nil {
			return fmt.Errorf("error setting rlimit type %v: %w", rl.Type, err)
		}
	}
	return nil
}

// setupUser resolves config.User ("uid[:gid]") and applies it along
// with any additional groups. Username/groupname lookup against the
// container's /etc/passwd is intentionally not implemented: the OCI
// spec.Process.User the runtime receives is already numeric by the
// time it reaches the init process.
func setupUser(config *initConfig) error {
	uid, gid, err := parseUser(config.User)
	if err != nil {
		return err
	}

	groups := make([]int, 0, len(config.AdditionalGroups))
	for _, g := range config.AdditionalGroups {
		gv, err := strconv.Atoi(g)
		if err != nil {
			return fmt.Errorf("invalid additional group %q: %w", g, err)
		}
		groups = append(groups, gv)
	}

	sys := syscallfacade.Linux{}
	if err := sys.Setgroups(groups); err != nil {
		return fmt.Errorf("setgroups: %w", err)
	}
	if err := sys.SetresGID(gid, gid, gid); err != nil {
		return fmt.Errorf("setresgid: %w", err)
	}
	if err := sys.SetresUID(uid, uid, uid); err != nil {
		return fmt.Errorf("setresuid: %w", err)
	}
	return nil
}

func parseUser(s string) (int, int, error) {
	if s == "" {
		return 0, 0, nil
	}
	parts := strings.SplitN(s, ":", 2)
	uid, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid uid %q: %w", parts[0], err)
	}
	gid := uid
	if len(parts) == 2 {
		gid, err = strconv.Atoi(parts[1])
		if err != nil {
			return 0, 0, fmt.Errorf("invalid gid %q: %w", parts[1], err)
		}
	}
	return uid, gid, nil
}

// setupCapabilities applies the five capability sets via moby/sys/
// capability rather than hand-rolling the capset(2) bitmask logic.
func setupCapabilities(caps *Capabilities) error {
	if caps == nil {
		return nil
	}
	pid, err := capability.NewPid2(0)
	if err != nil {
		return err
	}
	if err := pid.Load(); err != nil {
		return err
	}

	apply := func(kind capability.CapType, names []string) error {
		cs, err := capsFromNames(names)
		if err != nil {
			return err
		}
		pid.Clear(kind)
		pid.Set(kind, cs...)
		return nil
	}

	if err := apply(capability.BOUNDING, caps.Bounding); err != nil {
		return err
	}
	if err := apply(capability.EFFECTIVE, caps.Effective); err != nil {
		return err
	}
	if err := apply(capability.INHERITABLE, caps.Inheritable); err != nil {
		return err
	}
	if err := apply(capability.PERMITTED, caps.Permitted); err != nil {
		return err
	}
	if err := apply(capability.AMBIENT, caps.Ambient); err != nil {
		return err
	}
	return pid.Apply(capability.CAPS | capability.BOUNDS | capability.AMBS)
}

func capsFromNames(names []string) ([]capability.Cap, error) {
	out := make([]capability.Cap, 0, len(names))
	for _, n := range names {
		c, ok := capabilityByName[strings.ToUpper(n)]
		if !ok {
			return nil, fmt.Errorf("unknown capability %q", n)
		}
		out = append(out, c)
	}
	return out, nil
}

var capabilityByName = map[string]capability.Cap{
	"CAP_CHOWN":            capability.CAP_CHOWN,
	"CAP_DAC_OVERRIDE":     capability.CAP_DAC_OVERRIDE,
	"CAP_DAC_READ_SEARCH":  capability.CAP_DAC_READ_SEARCH,
	"CAP_FOWNER":           capability.CAP_FOWNER,
	"CAP_FSETID":           capability.CAP_FSETID,
	"CAP_KILL":             capability.CAP_KILL,
	"CAP_SETGID":           capability.CAP_SETGID,
	"CAP_SETUID":           capability.CAP_SETUID,
	"CAP_SETPCAP":          capability.CAP_SETPCAP,
	"CAP_LINUX_IMMUTABLE":  capability.CAP_LINUX_IMMUTABLE,
	"CAP_NET_BIND_SERVICE": capability.CAP_NET_BIND_SERVICE,
	"CAP_NET_BROADCAST":    capability.CAP_NET_BROADCAST,
	"CAP_NET_ADMIN":        capability.CAP_NET_ADMIN,
	"CAP_NET_RAW":          capability.CAP_NET_RAW,
	"CAP_IPC_LOCK":         capability.CAP_IPC_LOCK,
	"CAP_IPC_OWNER":        capability.CAP_IPC_OWNER,
	"CAP_SYS_MODULE":       capability.CAP_SYS_MODULE,
	"CAP_SYS_RAWIO":        capability.CAP_SYS_RAWIO,
	"CAP_SYS_CHROOT":       capability.CAP_SYS_CHROOT,
	"CAP_SYS_PTRACE":       capability.CAP_SYS_PTRACE,
	"CAP_SYS_PACCT":        capability.CAP_SYS_PACCT,
	"CAP_SYS_ADMIN":        capability.CAP_SYS_ADMIN,
	"CAP_SYS_BOOT":         capability.CAP_SYS_BOOT,
	"CAP_SYS_NICE":         capability.CAP_SYS_NICE,
	"CAP_SYS_RESOURCE":     capability.CAP_SYS_RESOURCE,
	"CAP_SYS_TIME":         capability.CAP_SYS_TIME,
	"CAP_SYS_TTY_CONFIG":   capability.CAP_SYS_TTY_CONFIG,
	"CAP_MKNOD":            capability.CAP_MKNOD,
	"CAP_LEASE":            capability.CAP_LEASE,
	"CAP_AUDIT_WRITE":      capability.CAP_AUDIT_WRITE,
	"CAP_AUDIT_CONTROL":    capability.CAP_AUDIT_CONTROL,
	"CAP_SETFCAP":          capability.CAP_SETFCAP,
	"CAP_MAC_OVERRIDE":     capability.CAP_MAC_OVERRIDE,
	"CAP_MAC_ADMIN":        capability.CAP_MAC_ADMIN,
	"CAP_SYSLOG":           capability.CAP_SYSLOG,
	"CAP_WAKE_ALARM":       capability.CAP_WAKE_ALARM,
	"CAP_BLOCK_SUSPEND":    capability.CAP_BLOCK_SUSPEND,
	"CAP_AUDIT_READ":       capability.CAP_AUDIT_READ,
	"CAP_PERFMON":          capability.CAP_PERFMON,
	"CAP_BPF":              capability.CAP_BPF,
	"CAP_CHECKPOINT_RESTORE": capability.CAP_CHECKPOINT_RESTORE,
}

// setupConsole creates the container's pty, hands the master end back
// to the parent over socket, and wires the slave end up as this process's stdio.
func setupConsole(socket *os.File, config *initConfig, initProcess bool) error {
	if socket == nil {
		return nil
	}
	defer socket.Close()

	pty, slavePath, err := console.NewPty()
	if err != nil {
		return newSystemErrorWithCause(err, "creating pty")
	}
	if config.ConsoleWidth > 0 && config.ConsoleHeight > 0 {
		_ = pty.Resize(console.WinSize{Width: config.ConsoleWidth, Height: config.ConsoleHeight})
	}
	if err := utils.SendFd(socket, "console", pty.Fd()); err != nil {
		return newSystemErrorWithCause(err, "sending console fd to parent")
	}

	slave, err := os.OpenFile(slavePath, os.O_RDWR, 0)
	if err != nil {
		return newSystemErrorWithCausef(err, "opening pty slave %s", slavePath)
	}
	defer slave.Close()

	if err := unix.Dup2(int(slave.Fd()), 0); err != nil {
		return err
	}
	if err := unix.Dup2(int(slave.Fd()), 1); err != nil {
		return err
	}
	if err := unix.Dup2(int(slave.Fd()), 2); err != nil {
		return err
	}
	return nil
}
