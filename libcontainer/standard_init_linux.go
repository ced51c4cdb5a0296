package libcontainer

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/go-oci/ocirt/libcontainer/configs"
	"github.com/go-oci/ocirt/libcontainer/notifysocket"
	"github.com/go-oci/ocirt/libcontainer/seccomp"
	"github.com/go-oci/ocirt/libcontainer/syncpipe"
	"github.com/go-oci/ocirt/libcontainer/system"
	"github.com/opencontainers/runtime-spec/specs-go"
	"golang.org/x/sys/unix"
)

// linuxStandardInit runs the first process of a freshly created
// container: the full rootfs/namespace/cgroup bring-up of ,
// ending in the blocking notify-socket wait and the final execve.
type linuxStandardInit struct {
	pipe          *syncpipe.Pipe
	consoleSocket *os.File
	parentPid     int
	config        *initConfig
}

func (l *linuxStandardInit) Init() error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := validateCwd(l.config.Config.Rootfs); err != nil {
		return newSystemErrorWithCause(err, "validating cwd")
	}

	if err := applyNamespaces(l.config, true); err != nil {
		return newGenericError(fmt.Errorf("applying namespaces: %w", err), Syscall)
	}

	if !l.config.Config.NoNewKeyring {
		// Give the container its own session keyring instead of the caller's.
		if _, err := unix.KeyctlJoinSessionKeyring("_ses." + l.config.ContainerId); err != nil && err != unix.ENOSYS {
			return newSystemErrorWithCause(err, "joining session keyring")
		}
	}

	if err := prepareRootfs(l.pipe, l.config); err != nil {
		return err
	}

	// Set up the console before finalizing the rootfs so the slave pty
	// is still reachable by path, but after the mounts the user asked
	// for have all been made.
	if l.config.CreateConsole {
		if err := setupConsole(l.consoleSocket, l.config, true); err != nil {
			return err
		}
		if err := system.Setctty(); err != nil {
			return newSystemErrorWithCause(err, "setctty")
		}
	}

	if l.config.Config.Namespaces.Contains(configs.NEWNS) {
		if err := finalizeRootfs(l.config.Config); err != nil {
			return err
		}
	}

	if hostname := l.config.Config.Hostname; hostname != "" {
		if err := unix.Sethostname([]byte(hostname)); err != nil {
			return newSystemErrorWithCause(err, "sethostname")
		}
	}
	if domain := l.config.Config.Domainname; domain != "" {
		if err := unix.Setdomainname([]byte(domain)); err != nil {
			return newSystemErrorWithCause(err, "setdomainname")
		}
	}

	if len(l.config.Config.ReadonlyPaths) > 0 {
		for _, path := range l.config.Config.ReadonlyPaths {
			if err := readonlyPath(path); err != nil {
				return newSystemErrorWithCausef(err, "readonly path %s", path)
			}
		}
	}
	for _, path := range l.config.Config.MaskPaths {
		if err := maskPath(path, l.config.Config.MountLabel); err != nil {
			return newSystemErrorWithCausef(err, "mask path %s", path)
		}
	}

	// Tell the parent the mount namespace is settled so it can run
	// createContainer/any remaining hook stages while the old root is
	// still the one it sees.
	if err := syncParentHooks(l.pipe); err != nil {
		return newSystemErrorWithCause(err, "syncing hook stage with parent")
	}

	for key, value := range l.config.Config.Sysctl {
		if err := writeSystemProperty(key, value); err != nil {
			return newSystemErrorWithCausef(err, "write sysctl key %s", key)
		}
	}

	pdeathSig, err := system.GetParentDeathSignal()
	if err != nil {
		return newSystemErrorWithCause(err, "get pdeath signal")
	}
	if l.config.NoNewPrivileges {
		if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
			return newSystemErrorWithCause(err, "set no_new_privs")
		}
	}

	// Tell the parent we're ready to exec. Must happen before seccomp is
	// loaded, since loading seccomp may itself need syscalls the filter
	// would then block.
	if err := syncParentReady(l.pipe); err != nil {
		return newSystemErrorWithCause(err, "sync ready")
	}

	if err := finalizeNamespace(l.config); err != nil {
		return err
	}

	// finalizeNamespace's setresuid/setresgid clears the parent-death
	// signal (it's cleared on any credential change), so restore it.
	if err := system.ParentDeathSignal(pdeathSig); err != nil {
		return newSystemErrorWithCause(err, "restore pdeath signal")
	}

	// If our parent changed, it died and we were reparented; don't run
	// an orphaned container process.
	if unix.Getppid() != l.parentPid {
		return unix.Kill(unix.Getpid(), unix.SIGKILL)
	}

	name, err := exec.LookPath(l.config.Args[0])
	if err != nil {
		return err
	}

	l.pipe.Close()

	// Bind & listen on the notify channel and block until
	// the "start" command delivers its single START datagram. Listening
	// this late, right before the irreversible seccomp install and exec,
	// means the socket file's presence under the state directory is
	// exactly the Created/Running discriminant currentStatus() consults.
	listener, err := notifysocket.Listen(l.config.NotifySocketPath)
	if err != nil {
		return newSystemErrorWithCause(err, "listening on notify socket")
	}
	if err := listener.Wait(); err != nil {
		return newSystemErrorWithCause(err, "waiting for start notification")
	}
	listener.Close()

	if l.config.Config.Seccomp != nil {
		if err := seccomp.Install(l.config.Config.Seccomp); err != nil {
			return newSystemErrorWithCause(err, "loading seccomp filter")
		}
	}

	s := l.config.SpecState
	if s != nil {
		s.Pid = unix.Getpid()
		s.Status = specs.StateCreated
		if err := l.config.Config.Hooks[configs.StartContainer].RunHooks(configs.StartContainer, s); err != nil {
			return newGenericError(err, HookFailed)
		}
	}

	if err := unix.Exec(name, l.config.Args[0:], os.Environ()); err != nil {
		return newSystemErrorWithCausef(err, "exec user process: name=%v args=%v", name, l.config.Args)
	}
	return nil
}
