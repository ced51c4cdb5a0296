//go:build linux
// +build linux

package libcontainer

import (
	"io"
	"os"

	"github.com/go-oci/ocirt/libcontainer/configs"
	"github.com/opencontainers/runtime-spec/specs-go"
)

// Process holds everything needed to exec one process inside a
// container, either the init process (Start on a fresh container) or a
// joined process (Start on a running one).
type Process struct {
	Args             []string
	Env              []string
	User             string
	AdditionalGroups []string
	Cwd              string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// ExtraFiles are additional inherited file descriptors, starting at
	// fd 3 inside the container.
	ExtraFiles []*os.File

	// Init marks this as the container's first process: it drives
	// namespace/rootfs/cgroup setup rather than just joining an
	// existing container via setns.
	Init bool

	Capabilities    *Capabilities
	AppArmorProfile string
	Label           string
	NoNewPrivileges *bool
	Rlimits         []Rlimit
	ConsoleSocket   *os.File
	ConsoleWidth    uint16
	ConsoleHeight   uint16
	LogLevel        string

	ops parentProcess
}

type Capabilities struct {
	Bounding    []string
	Effective   []string
	Inheritable []string
	Permitted   []string
	Ambient     []string
}

type Rlimit struct {
	Type int
	Hard uint64
	Soft uint64
}

// Pid returns the process ID once the process has started.
func (p *Process) Pid() (int, error) {
	if p.ops == nil {
		return -1, newGenericError(errProcessNotStarted, NoProcessOps)
	}
	return p.ops.pid(), nil
}

// Wait waits for the process to exit and returns its state.
func (p *Process) Wait() (*os.ProcessState, error) {
	if p.ops == nil {
		return nil, newGenericError(errProcessNotStarted, NoProcessOps)
	}
	return p.ops.wait()
}

// Signal sends a signal to the process.
func (p *Process) Signal(sig os.Signal) error {
	if p.ops == nil {
		return newGenericError(errProcessNotStarted, NoProcessOps)
	}
	return p.ops.signal(sig)
}

var errProcessNotStarted = &runtimeError{code: NoProcessOps, message: "invalid process"}

// Status is a container's lifecycle state state
// table: Created -> Running -> Stopped, with Pausing/Paused reachable
// from Running.
type Status int

const (
	Created Status = iota
	Running
	Pausing
	Paused
	Stopped
)

func (s Status) String() string {
	switch s {
	case Created:
		return "created"
	case Running:
		return "running"
	case Pausing:
		return "pausing"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// PressureLevel identifies a memory.pressure_level notification tier.
type PressureLevel uint

const (
	LowPressure PressureLevel = iota
	MediumPressure
	CriticalPressure
)

// parentProcess is the supervisor-side handle onto one running process
// (init or setns), however it was created
type parentProcess interface {
	pid() int
	start() error
	terminate() error
	wait() (*os.ProcessState, error)
	startTime() (uint64, error)
	signal(os.Signal) error
	externalDescriptors() []string
	setExternalDescriptors(fds []string)
	forwardChildLogs() chan error
}

// filePair holds the parent and child ends of one cascade channel: the
// sync socketpair or the log pipe.
type filePair struct {
	parent *os.File
	child  *os.File
}

// BaseContainer exposes the platform-independent half of the Container
// interface, kept separate so the CLI layer can depend on just this.
type BaseContainer interface {
	ID() string
	Status() (Status, error)
	State() (*State, error)
	OCIState() (*specs.State, error)
	Config() configs.Config
	Processes() ([]int, error)
	Stats() (*Stats, error)
	Set(config configs.Config) error
	Start(process *Process) error
	Run(process *Process) error
	Destroy() error
	Signal(s os.Signal, all bool) error
	Exec() error
}

