//go:build linux
// +build linux

package libcontainer

import (
	"os"
	"path/filepath"

	"github.com/go-oci/ocirt/libcontainer/configs"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// containerState models the lifecycle transitions:
// created -> running -> stopped, with paused reachable from running and
// returning to running on resume.
type containerState interface {
	transition(containerState) error
	destroy() error
	status() Status
}

func destroy(c *linuxContainer) error {
	if !c.config.Namespaces.Contains(configs.NEWPID) || c.config.Namespaces.PathOf(configs.NEWPID) != "" {
		if err := killContainerProcesses(c); err != nil {
			return err
		}
	}

	if len(c.config.Hooks) != 0 {
		if s, err := c.currentOCIState(); err == nil {
			if err := c.config.Hooks[configs.Poststop].RunHooks(configs.Poststop, s); err != nil {
				logrus.Warnf("running poststop hook: %v", err)
			}
		}
	}

	if err := c.cgroupManager.Destroy(); err != nil {
		return newSystemErrorWithCause(err, "destroying cgroups")
	}

	if err := os.RemoveAll(c.root); err != nil {
		return newSystemErrorWithCause(err, "removing container root")
	}
	// Best effort: the lock file lives outside c.root precisely so
	// Create can flock it before the directory exists, so its removal
	// isn't covered by the RemoveAll above.
	_ = os.Remove(lockPath(filepath.Dir(c.root), c.id))

	c.initProcess = nil
	c.state = &stoppedState{c: c}
	return nil
}

func killContainerProcesses(c *linuxContainer) error {
	pids, err := c.cgroupManager.GetAllPids()
	if err != nil {
		return nil
	}
	for _, pid := range pids {
		_ = unix.Kill(pid, unix.SIGKILL)
	}
	return nil
}

// loadedState is the placeholder state a Factory.Load'ed container
// starts in before its first refreshState call replaces it with
// whatever the kernel actually reports; it accepts any transition.
type loadedState struct {
	c *linuxContainer
	s Status
}

func (s *loadedState) status() Status { return s.s }

func (s *loadedState) transition(t containerState) error {
	s.c.state = t
	return nil
}

func (s *loadedState) destroy() error {
	return destroy(s.c)
}

type stoppedState struct {
	c *linuxContainer
}

func (s *stoppedState) status() Status { return Stopped }

func (s *stoppedState) transition(t containerState) error {
	switch t.(type) {
	case *runningState:
		s.c.state = t
		return nil
	case *createdState:
		s.c.state = t
		return nil
	case *stoppedState:
		return nil
	}
	return newStateTransitionError(s, t)
}

func (s *stoppedState) destroy() error {
	return destroy(s.c)
}

type createdState struct {
	c *linuxContainer
}

func (s *createdState) status() Status { return Created }

func (s *createdState) transition(t containerState) error {
	switch t.(type) {
	case *runningState, *pausedState, *stoppedState:
		s.c.state = t
		return nil
	case *createdState:
		return nil
	}
	return newStateTransitionError(s, t)
}

func (s *createdState) destroy() error {
	if err := s.c.initProcess.terminate(); err != nil {
		return err
	}
	return destroy(s.c)
}

type runningState struct {
	c *linuxContainer
}

func (s *runningState) status() Status { return Running }

func (s *runningState) transition(t containerState) error {
	switch t.(type) {
	case *stoppedState:
		running, err := isProcessRunning(s.c)
		if err != nil {
			return err
		}
		if running {
			return newGenericError(errStillRunning, ContainerNotStopped)
		}
		s.c.state = t
		return nil
	case *pausedState:
		s.c.state = t
		return nil
	case *runningState:
		return nil
	}
	return newStateTransitionError(s, t)
}

func (s *runningState) destroy() error {
	running, err := isProcessRunning(s.c)
	if err != nil {
		return err
	}
	if running {
		return newGenericError(errStillRunning, ContainerNotStopped)
	}
	return destroy(s.c)
}

type pausedState struct {
	c *linuxContainer
}

func (s *pausedState) status() Status { return Paused }

func (s *pausedState) transition(t containerState) error {
	switch t.(type) {
	case *runningState, *stoppedState:
		s.c.state = t
		return nil
	case *pausedState:
		return nil
	}
	return newStateTransitionError(s, t)
}

func (s *pausedState) destroy() error {
	isRunning, err := isProcessRunning(s.c)
	if err != nil {
		return err
	}
	if isRunning {
		return newGenericError(errStillRunning, ContainerNotStopped)
	}
	return destroy(s.c)
}

func isProcessRunning(c *linuxContainer) (bool, error) {
	if c.initProcess == nil {
		return false, nil
	}
	pid := c.initProcess.pid()
	return unix.Kill(pid, 0) == nil, nil
}

var errStillRunning = newStateError("container still has running tasks")

func newStateError(msg string) error {
	return &runtimeError{code: ContainerNotStopped, message: msg}
}

func newStateTransitionError(from, to containerState) error {
	return newGenericError(errTransitionUnsupported(from, to), ConfigInvalid)
}

func errTransitionUnsupported(from, to containerState) error {
	return &runtimeError{
		code:    ConfigInvalid,
		message: "invalid container state transition attempted: " + from.status().String() + " -> " + to.status().String(),
	}
}
