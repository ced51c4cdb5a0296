//go:build linux
// +build linux

package libcontainer

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/go-oci/ocirt/libcontainer/cgroups"
	"github.com/go-oci/ocirt/libcontainer/configs"
	"github.com/go-oci/ocirt/libcontainer/logs"
	"github.com/go-oci/ocirt/libcontainer/syncpipe"
	"github.com/go-oci/ocirt/libcontainer/system"
	"github.com/go-oci/ocirt/libcontainer/utils"
	"github.com/opencontainers/runtime-spec/specs-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// initProcess is the parentProcess half of this runtime's cascade for a
// freshly created container: it owns the re-exec'd cmd that becomes the
// container's first process, and drives it through the handshake defined
// by init_linux.go's syncParentHooks/syncParentReady pair.
type initProcess struct {
	cmd             *exec.Cmd
	messageSockPair filePair
	logFilePair     filePair
	pipe            *syncpipe.Pipe
	config          *initConfig
	manager         cgroups.Manager
	container       *linuxContainer
	fds             []string
	process         *Process
	sharePidns      bool
}

func (p *initProcess) pid() int {
	return p.cmd.Process.Pid
}

func (p *initProcess) externalDescriptors() []string {
	return p.fds
}

func (p *initProcess) setExternalDescriptors(newFds []string) {
	p.fds = newFds
}

func (p *initProcess) forwardChildLogs() chan error {
	return logs.ForwardLogs(p.logFilePair.parent)
}

func (p *initProcess) signal(sig os.Signal) error {
	s, ok := sig.(unix.Signal)
	if !ok {
		return errors.New("unsupported signal type")
	}
	return unix.Kill(p.pid(), s)
}

func (p *initProcess) startTime() (uint64, error) {
	stat, err := system.GetStat(p.pid())
	return stat.StartTime, err
}

func (p *initProcess) wait() (*os.ProcessState, error) {
	err := p.cmd.Wait()
	if p.sharePidns {
		_ = signalAllProcesses(p.manager, unix.SIGKILL)
	}
	return p.cmd.ProcessState, err
}

func (p *initProcess) terminate() error {
	if p.cmd.Process == nil {
		return nil
	}
	err := p.cmd.Process.Kill()
	if _, werr := p.wait(); err == nil {
		err = werr
	}
	return err
}

// start runs the init process through to the point where it is parked
// waiting on the notify socket. It does not wait
// for the user command to actually run; that happens later, when the
// CLI's start/run command signals the notify socket.
func (p *initProcess) start() (retErr error) {
	defer p.messageSockPair.parent.Close()

	if err := p.cmd.Start(); err != nil {
		return fmt.Errorf("unable to start init: %w", err)
	}
	p.process.ops = p
	p.messageSockPair.child.Close()
	p.logFilePair.child.Close()

	defer func() {
		if retErr != nil {
			_ = ignoreTerminateErrors(p.terminate())
			_ = p.manager.Destroy()
		}
	}()

	if needsIDMapHelper(p.config.Config) {
		if err := applyIDMaps(p.pid(), p.container.newuidmapPath, p.config.Config.UidMappings,
			p.container.newgidmapPath, p.config.Config.GidMappings); err != nil {
			// Preserve a PermissionDenied classification from
			// runIDMapHelper rather than collapsing it to SystemError.
			code := SystemError
			if e, ok := err.(Error); ok {
				code = e.Code()
			}
			return newGenericError(fmt.Errorf("error applying id mappings: %w", err), code)
		}
	}

	if err := p.manager.Apply(p.pid()); err != nil {
		return fmt.Errorf("unable to apply cgroup configuration: %w", err)
	}

	if err := utils.WriteJSON(p.pipe.File(), p.config); err != nil {
		return fmt.Errorf("error sending config to init: %w", err)
	}

	if _, err := p.pipe.RecvExpect(syncpipe.ProcReady); err != nil {
		return newGenericError(fmt.Errorf("error syncing hook stage with init: %w", err), Protocol)
	}

	if !p.config.Config.Namespaces.Contains(configs.NEWNS) {
		if err := p.manager.Set(p.config.Config); err != nil {
			return fmt.Errorf("error setting cgroup config: %w", err)
		}
	}

	if len(p.config.Config.Hooks) != 0 {
		s, err := p.container.currentOCIState()
		if err != nil {
			return err
		}
		s.Pid = p.pid()
		s.Status = specs.StateCreating
		hooks := p.config.Config.Hooks
		if err := hooks[configs.Prestart].RunHooks(configs.Prestart, s); err != nil {
			return newGenericError(err, HookFailed)
		}
		if err := hooks[configs.CreateRuntime].RunHooks(configs.CreateRuntime, s); err != nil {
			return newGenericError(err, HookFailed)
		}
		if err := hooks[configs.CreateContainer].RunHooks(configs.CreateContainer, s); err != nil {
			return newGenericError(err, HookFailed)
		}
	}

	if p.config.Config.Namespaces.Contains(configs.NEWNS) {
		if err := p.manager.Set(p.config.Config); err != nil {
			return fmt.Errorf("error setting cgroup config: %w", err)
		}
	}

	if err := p.pipe.Send(syncpipe.Message{Kind: syncpipe.ProcReady}); err != nil {
		return fmt.Errorf("error acking hook stage to init: %w", err)
	}

	if _, err := p.pipe.RecvExpect(syncpipe.InitReady); err != nil {
		return newGenericError(fmt.Errorf("error waiting for init ready: %w", err), Protocol)
	}

	p.container.created = time.Now().UTC()
	p.container.state = &createdState{c: p.container}
	state, err := p.container.updateState(p)
	if err != nil {
		return fmt.Errorf("unable to store init state: %w", err)
	}
	p.container.initProcessStartTime = state.InitProcessStartTime

	return nil
}

// setnsProcess is the parentProcess half of this runtime's exec
// operation: it joins a running container's namespaces by path and
// execs the requested process there.
type setnsProcess struct {
	cmd             *exec.Cmd
	messageSockPair filePair
	logFilePair     filePair
	pipe            *syncpipe.Pipe
	cgroupPaths     map[string]string
	rootlessCgroups bool
	manager         cgroups.Manager
	config          *initConfig
	fds             []string
	process         *Process
	initProcessPid  int
}

func (p *setnsProcess) pid() int {
	return p.cmd.Process.Pid
}

func (p *setnsProcess) externalDescriptors() []string {
	return p.fds
}

func (p *setnsProcess) setExternalDescriptors(newFds []string) {
	p.fds = newFds
}

func (p *setnsProcess) forwardChildLogs() chan error {
	return logs.ForwardLogs(p.logFilePair.parent)
}

func (p *setnsProcess) signal(sig os.Signal) error {
	s, ok := sig.(unix.Signal)
	if !ok {
		return errors.New("unsupported signal type")
	}
	return unix.Kill(p.pid(), s)
}

func (p *setnsProcess) startTime() (uint64, error) {
	stat, err := system.GetStat(p.pid())
	return stat.StartTime, err
}

func (p *setnsProcess) wait() (*os.ProcessState, error) {
	err := p.cmd.Wait()
	return p.cmd.ProcessState, err
}

func (p *setnsProcess) terminate() error {
	if p.cmd.Process == nil {
		return nil
	}
	err := p.cmd.Process.Kill()
	if _, werr := p.wait(); err == nil {
		err = werr
	}
	return err
}

func (p *setnsProcess) start() (retErr error) {
	defer p.messageSockPair.parent.Close()

	if err := p.cmd.Start(); err != nil {
		return fmt.Errorf("error starting setns process: %w", err)
	}
	p.process.ops = p
	p.messageSockPair.child.Close()
	p.logFilePair.child.Close()

	defer func() {
		if retErr != nil {
			_ = ignoreTerminateErrors(p.terminate())
		}
	}()

	if err := utils.WriteJSON(p.pipe.File(), p.config); err != nil {
		return fmt.Errorf("error sending config to setns process: %w", err)
	}

	if _, err := p.pipe.RecvExpect(syncpipe.InitReady); err != nil {
		return newGenericError(fmt.Errorf("error waiting for setns process ready: %w", err), Protocol)
	}

	for _, path := range p.cgroupPaths {
		if err := cgroups.WriteCgroupProc(path, p.pid()); err != nil && !p.rootlessCgroups {
			return fmt.Errorf("error adding pid %d to cgroups: %w", p.pid(), err)
		}
	}

	return nil
}

func ignoreTerminateErrors(err error) error {
	if err == nil || errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	if err.Error() == "os: process already finished" {
		return nil
	}
	return err
}

// signalAllProcesses freezes the cgroup before enumerating its tasks so a
// process forking while the signal sweep is in flight can't dodge it by
// landing outside the pid list taken before the freeze.
func signalAllProcesses(m cgroups.Manager, s os.Signal) error {
	sig, ok := s.(unix.Signal)
	if !ok {
		return errors.New("unsupported signal type")
	}
	if err := m.Freeze(configs.Frozen); err != nil {
		logrus.Warn(err)
	}
	pids, err := m.GetAllPids()
	if err != nil {
		_ = m.Freeze(configs.Thawed)
		return err
	}
	for _, pid := range pids {
		_ = unix.Kill(pid, sig)
	}
	if err := m.Freeze(configs.Thawed); err != nil {
		logrus.Warn(err)
	}
	return nil
}
