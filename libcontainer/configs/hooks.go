package configs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/opencontainers/runtime-spec/specs-go"
	"github.com/pkg/errors"
)

// HookName identifies one of the six lifecycle points a hook can be
// registered at
type HookName string

const (
	Prestart        HookName = "prestart"
	CreateRuntime    HookName = "createRuntime"
	CreateContainer HookName = "createContainer"
	StartContainer  HookName = "startContainer"
	Poststart       HookName = "poststart"
	Poststop        HookName = "poststop"
)

// fatalClasses are the hook points whose failure aborts create/start;
// the rest are only logged.
var fatalClasses = map[HookName]bool{
	Prestart:        true,
	CreateRuntime:   true,
	CreateContainer: true,
}

// IsFatal reports whether a failing hook of this class should abort the
// operation that invoked it.
func (n HookName) IsFatal() bool {
	return fatalClasses[n]
}

// Hook is a single hook invocation: a command, its args/env, and a
// timeout after which it is sent SIGKILL.
type Hook struct {
	Path    string        `json:"path"`
	Args    []string      `json:"args"`
	Env     []string      `json:"env"`
	Timeout time.Duration `json:"timeout"`
}

// HookList is the ordered set of hooks registered at one lifecycle point.
type HookList []Hook

// Hooks maps each lifecycle point to its ordered hook list.
type Hooks map[HookName]HookList

// RunHooks runs every hook in the list in order, feeding each the
// container's current OCI state JSON on stdin. A
// nil receiver (no hooks registered at this point) is a no-op. name is
// only used to decide fatal-vs-logged severity and for error context.
func (list HookList) RunHooks(name HookName, s *specs.State) error {
	for _, h := range list {
		if err := h.run(s); err != nil {
			if name.IsFatal() {
				return errors.Wrapf(err, "error running %s hook %q", name, h.Path)
			}
			return &nonFatalHookError{name: name, path: h.Path, err: err}
		}
	}
	return nil
}

type nonFatalHookError struct {
	name HookName
	path string
	err  error
}

func (e *nonFatalHookError) Error() string {
	return fmt.Sprintf("%s hook %q failed (ignored): %v", e.name, e.path, e.err)
}

// IsNonFatal reports whether err was returned for a non-fatal hook class
// (poststart/poststop), which callers should log and continue past.
func IsNonFatal(err error) bool {
	_, ok := err.(*nonFatalHookError)
	return ok
}

func (h Hook) run(s *specs.State) error {
	state, err := json.Marshal(s)
	if err != nil {
		return err
	}

	cmd := exec.Cmd{
		Path: h.Path,
		Args: h.Args,
		Env:  h.Env,
		Stdin: bytes.NewReader(state),
	}
	if len(cmd.Args) == 0 {
		cmd.Args = []string{h.Path}
	}

	if h.Timeout <= 0 {
		return cmd.Run()
	}

	errC := make(chan error, 1)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { errC <- cmd.Wait() }()

	select {
	case err := <-errC:
		return err
	case <-time.After(h.Timeout):
		_ = cmd.Process.Kill()
		<-errC
		return fmt.Errorf("hook %q timed out after %s", h.Path, h.Timeout)
	}
}
