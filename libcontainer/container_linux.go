//go:build linux
// +build linux

package libcontainer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/go-oci/ocirt/libcontainer/cgroups"
	"github.com/go-oci/ocirt/libcontainer/configs"
	"github.com/go-oci/ocirt/libcontainer/notifysocket"
	"github.com/go-oci/ocirt/libcontainer/syncpipe"
	"github.com/go-oci/ocirt/libcontainer/system"
	"github.com/go-oci/ocirt/libcontainer/utils"
	"github.com/opencontainers/runtime-spec/specs-go"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

const (
	stdioFdCount  = 3
	stateFilename = "state.json"
)

// linuxContainer is the BaseContainer/Container implementation backing
// every container a Factory creates or loads
type linuxContainer struct {
	id                   string
	root                 string
	config               *configs.Config
	cgroupManager        cgroups.Manager
	initPath             string
	initArgs             []string
	initProcess          parentProcess
	initProcessStartTime uint64
	newuidmapPath        string
	newgidmapPath        string
	m                    sync.Mutex
	state                containerState
	created              time.Time
}

// State represents a container's persisted, on-disk state (state.json).
type State struct {
	ID                   string          `json:"id"`
	Config               configs.Config  `json:"config"`
	InitProcessPid       int             `json:"init_process_pid"`
	InitProcessStartTime uint64          `json:"init_process_start"`
	Created              time.Time       `json:"created"`

	// Rootless is true when the config has both RootlessEUID and
	// RootlessCgroups set.
	Rootless bool `json:"rootless"`

	// CgroupPaths are the paths to persist for state/stats lookups after
	// the runtime process that created them has exited.
	CgroupPaths map[string]string `json:"cgroup_paths"`

	// NamespacePaths are /proc/<pid>/ns/<name> paths, one per namespace
	// type the container actually has, keyed by namespace type.
	NamespacePaths map[configs.NamespaceType]string `json:"namespace_paths"`

	// ExternalDescriptors records the container's original std{in,out,err}
	// descriptor identifiers, round-tripped for diagnostics.
	ExternalDescriptors []string `json:"external_descriptors,omitempty"`
}

// Container is the platform-specific superset of BaseContainer this runtime
// §4.I's lifecycle operations need. CRIU-based checkpoint/restore and
// OOM/pressure notification channels are out of scope; only Pause/Resume extend BaseContainer here.
type Container interface {
	BaseContainer

	// Pause freezes the container's processes (Running/Created -> Paused).
	Pause() error

	// Resume thaws a paused container's processes (Paused -> Running).
	Resume() error
}

func (c *linuxContainer) ID() string {
	return c.id
}

func (c *linuxContainer) Config() configs.Config {
	return *c.config
}

func (c *linuxContainer) Status() (Status, error) {
	c.m.Lock()
	defer c.m.Unlock()
	lock, err := c.lockContainer(false)
	if err != nil {
		return -1, err
	}
	defer lock.unlock()
	return c.currentStatus()
}

func (c *linuxContainer) State() (*State, error) {
	c.m.Lock()
	defer c.m.Unlock()
	lock, err := c.lockContainer(false)
	if err != nil {
		return nil, err
	}
	defer lock.unlock()
	return c.currentState()
}

func (c *linuxContainer) OCIState() (*specs.State, error) {
	c.m.Lock()
	defer c.m.Unlock()
	lock, err := c.lockContainer(false)
	if err != nil {
		return nil, err
	}
	defer lock.unlock()
	return c.currentOCIState()
}

func (c *linuxContainer) Processes() ([]int, error) {
	status, err := c.currentStatus()
	if err != nil {
		return nil, err
	}
	if status == Stopped && !c.cgroupManager.Exists() {
		return nil, nil
	}
	pids, err := c.cgroupManager.GetAllPids()
	if err != nil {
		return nil, newSystemErrorWithCause(err, "getting all container pids from cgroups")
	}
	return pids, nil
}

func (c *linuxContainer) Stats() (*Stats, error) {
	stats := &Stats{}
	cstats, err := c.cgroupManager.GetStats()
	if err != nil {
		return stats, newSystemErrorWithCause(err, "getting container stats from cgroups")
	}
	stats.CgroupStats = cstats

	for _, iface := range c.config.Networks {
		if iface.Type != "veth" {
			continue
		}
		istats, err := getNetworkInterfaceStats(iface.HostInterfaceName)
		if err != nil {
			return stats, newSystemErrorWithCausef(err, "getting network stats for interface %q", iface.HostInterfaceName)
		}
		stats.Interfaces = append(stats.Interfaces, istats)
	}
	return stats, nil
}

func (c *linuxContainer) Set(config configs.Config) error {
	c.m.Lock()
	defer c.m.Unlock()
	lock, err := c.lockContainer(true)
	if err != nil {
		return err
	}
	defer lock.unlock()
	status, err := c.currentStatus()
	if err != nil {
		return err
	}
	if status == Stopped {
		return newGenericError(errors.New("container not running"), ContainerNotRunning)
	}
	if err := c.cgroupManager.Set(&config); err != nil {
		logrus.Warnf("setting cgroup configs failed: %v", err)
		if err2 := c.cgroupManager.Set(c.config); err2 != nil {
			logrus.Warnf("reverting cgroup configs also failed: %v; state.json and actual configs may be inconsistent", err2)
		}
		return err
	}
	c.config = &config
	_, err = c.updateState(nil)
	return err
}

// Start begins the process pipeline for process
// "create"/"start": process.Init distinguishes the container's first
// process (which goes through the full namespace/rootfs cascade and
// parks on the notify socket) from a later `exec` join.
func (c *linuxContainer) Start(process *Process) error {
	c.m.Lock()
	defer c.m.Unlock()
	lock, err := c.lockContainer(true)
	if err != nil {
		return err
	}
	defer lock.unlock()
	return c.start(process)
}

// Run is Start followed by signaling the notify socket immediately,
// collapsing create+start into one call for the `run` command.
func (c *linuxContainer) Run(process *Process) error {
	if err := c.Start(process); err != nil {
		return err
	}
	if process.Init {
		return c.exec()
	}
	return nil
}

func (c *linuxContainer) Exec() error {
	c.m.Lock()
	defer c.m.Unlock()
	lock, err := c.lockContainer(true)
	if err != nil {
		return err
	}
	defer lock.unlock()
	return c.exec()
}

// exec delivers the notify-socket START datagram init's Listener.Wait is
// parked on, retrying briefly since a
// freshly created container's init may not have bound its listener yet,
// and bailing out once the init process itself has died so a dead
// container doesn't hang a caller forever.
func (c *linuxContainer) exec() error {
	path := filepath.Join(c.root, notifysocket.FileName)
	pid := c.initProcess.pid()
	for {
		if err := notifysocket.Notify(path); err == nil {
			return nil
		}
		stat, err := system.GetStat(pid)
		if err != nil || stat.State == system.Zombie {
			return errors.New("container process is already dead")
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// start drives one parentProcess through to the point where the
// container's first process is parked on the notify socket (for
// process.Init) or has fully joined and exec'd (for a setns process)
func (c *linuxContainer) start(process *Process) error {
	parent, err := c.newParentProcess(process)
	if err != nil {
		return newSystemErrorWithCause(err, "creating new parent process")
	}
	parent.forwardChildLogs()
	if err := parent.start(); err != nil {
		return newSystemErrorWithCause(err, "starting container process")
	}

	if !process.Init {
		return nil
	}

	if c.config.Hooks != nil {
		s, err := c.currentOCIState()
		if err != nil {
			return err
		}
		if err := c.config.Hooks[configs.Poststart].RunHooks(configs.Poststart, s); err != nil {
			logrus.Warnf("running poststart hook: %v", err)
		}
	}
	return nil
}

func (c *linuxContainer) Signal(s os.Signal, all bool) error {
	c.m.Lock()
	defer c.m.Unlock()
	lock, err := c.lockContainer(true)
	if err != nil {
		return err
	}
	defer lock.unlock()
	status, err := c.currentStatus()
	if err != nil {
		return err
	}
	if all {
		if status == Stopped && !c.cgroupManager.Exists() {
			return nil
		}
		return signalAllProcesses(c.cgroupManager, s)
	}
	if status == Running || status == Created || status == Paused {
		if err := c.initProcess.signal(s); err != nil {
			return newSystemErrorWithCause(err, "signaling init process")
		}
		return nil
	}
	return newGenericError(errors.New("container not running"), ContainerNotRunning)
}

func (c *linuxContainer) newParentProcess(p *Process) (parentProcess, error) {
	parentPipe, childPipe, err := syncpipe.NewPair("init")
	if err != nil {
		return nil, newSystemErrorWithCause(err, "creating new init pipe")
	}
	messageSockPair := filePair{parentPipe.File(), childPipe.File()}

	parentLogPipe, childLogPipe, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("unable to create the log pipe: %w", err)
	}
	logFilePair := filePair{parentLogPipe, childLogPipe}

	cmd := c.commandTemplate(p, childPipe.File(), childLogPipe)
	if !p.Init {
		return c.newSetnsProcess(p, cmd, parentPipe, messageSockPair, logFilePair)
	}

	return c.newInitProcess(p, cmd, parentPipe, messageSockPair, logFilePair)
}

func (c *linuxContainer) commandTemplate(p *Process, childInitPipe, childLogPipe *os.File) *exec.Cmd {
	cmd := exec.Command(c.initPath, c.initArgs[1:]...)
	cmd.Args[0] = c.initArgs[0]
	cmd.Stdin = p.Stdin
	cmd.Stdout = p.Stdout
	cmd.Stderr = p.Stderr
	cmd.Dir = c.config.Rootfs
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &unix.SysProcAttr{}
	}
	cmd.Env = append(cmd.Env, "GOMAXPROCS="+os.Getenv("GOMAXPROCS"))
	cmd.ExtraFiles = append(cmd.ExtraFiles, p.ExtraFiles...)
	if p.ConsoleSocket != nil {
		cmd.ExtraFiles = append(cmd.ExtraFiles, p.ConsoleSocket)
		cmd.Env = append(cmd.Env, "_LIBCONTAINER_CONSOLE="+strconv.Itoa(stdioFdCount+len(cmd.ExtraFiles)-1))
	}
	cmd.ExtraFiles = append(cmd.ExtraFiles, childInitPipe)
	cmd.Env = append(cmd.Env,
		"_LIBCONTAINER_INITPIPE="+strconv.Itoa(stdioFdCount+len(cmd.ExtraFiles)-1),
		"_LIBCONTAINER_STATEDIR="+c.root,
	)
	cmd.ExtraFiles = append(cmd.ExtraFiles, childLogPipe)
	cmd.Env = append(cmd.Env,
		"_LIBCONTAINER_LOGPIPE="+strconv.Itoa(stdioFdCount+len(cmd.ExtraFiles)-1),
		"_LIBCONTAINER_LOGLEVEL="+p.LogLevel,
	)

	// A parent pdeathsig can still fire on a PID-1 host even while we're
	// alive; restored explicitly by init once credentials settle.
	if c.config.ParentDeathSignal > 0 {
		cmd.SysProcAttr.Pdeathsig = unix.Signal(c.config.ParentDeathSignal)
	}
	return cmd
}

// newInitProcess builds the parentProcess for the container's first
// process. cmd.SysProcAttr.Cloneflags is set here, not in
// commandTemplate, since only the init path actually forks fresh
// namespaces at clone(2) time; a setns process joins
// every namespace by path, post-fork.
func (c *linuxContainer) newInitProcess(p *Process, cmd *exec.Cmd, pipe *syncpipe.Pipe, messageSockPair, logFilePair filePair) (*initProcess, error) {
	cmd.Env = append(cmd.Env, "_LIBCONTAINER_INITTYPE="+string(initStandard))
	cmd.SysProcAttr.Cloneflags = c.config.Namespaces.CloneFlags()

	// A single-line, self-uid mapping (the common rootless case) can be
	// written by the kernel at clone(2) time via SysProcAttr directly.
	// Multi-range mappings need newuidmap/newgidmap, run by initProcess.start
	// once the child's pid exists but before it reads its config off the
	// pipe (see needsIDMapHelper).
	if c.config.Namespaces.Contains(configs.NEWUSER) && !needsIDMapHelper(c.config) {
		cmd.SysProcAttr.UidMappings = toSysProcIDMap(c.config.UidMappings)
		cmd.SysProcAttr.GidMappings = toSysProcIDMap(c.config.GidMappings)
	}

	sharePidns := c.config.Namespaces.PathOf(configs.NEWPID) != ""
	init := &initProcess{
		cmd:             cmd,
		messageSockPair: messageSockPair,
		logFilePair:     logFilePair,
		pipe:            pipe,
		manager:         c.cgroupManager,
		config:          c.newInitConfig(p),
		container:       c,
		process:         p,
		sharePidns:      sharePidns,
	}
	c.initProcess = init
	return init, nil
}

func (c *linuxContainer) newSetnsProcess(p *Process, cmd *exec.Cmd, pipe *syncpipe.Pipe, messageSockPair, logFilePair filePair) (*setnsProcess, error) {
	cmd.Env = append(cmd.Env, "_LIBCONTAINER_INITTYPE="+string(initSetns))
	state, err := c.currentState()
	if err != nil {
		return nil, newSystemErrorWithCause(err, "getting container's current state")
	}
	// Give every namespace the init process created its /proc path, so
	// the setns init joins the container's namespaces instead of
	// unsharing fresh ones.
	cfg := c.newInitConfig(p)
	joinConfig := *c.config
	joinConfig.Namespaces = make(configs.Namespaces, len(c.config.Namespaces))
	for i, ns := range c.config.Namespaces {
		if ns.Path == "" {
			ns.Path = state.NamespacePaths[ns.Type]
		}
		joinConfig.Namespaces[i] = ns
	}
	cfg.Config = &joinConfig
	return &setnsProcess{
		cmd:             cmd,
		messageSockPair: messageSockPair,
		logFilePair:     logFilePair,
		pipe:            pipe,
		cgroupPaths:     c.cgroupManager.GetPaths(),
		rootlessCgroups: c.config.RootlessCgroups,
		manager:         c.cgroupManager,
		config:          cfg,
		process:         p,
		initProcessPid:  state.InitProcessPid,
	}, nil
}

func (c *linuxContainer) newInitConfig(process *Process) *initConfig {
	cfg := &initConfig{
		Config:           c.config,
		Args:             process.Args,
		Env:              process.Env,
		User:             process.User,
		AdditionalGroups: process.AdditionalGroups,
		Cwd:              process.Cwd,
		Capabilities:     process.Capabilities,
		PassedFilesCount: len(process.ExtraFiles),
		ContainerId:      c.ID(),
		NoNewPrivileges:  c.config.NoNewPrivileges,
		RootlessEUID:     c.config.RootlessEUID,
		RootlessCgroups:  c.config.RootlessCgroups,
		AppArmorProfile:  c.config.AppArmorProfile,
		ProcessLabel:     c.config.ProcessLabel,
		Rlimits:          c.config.Rlimits,
		NotifySocketPath: filepath.Join(c.root, notifysocket.FileName),
	}
	if process.NoNewPrivileges != nil {
		cfg.NoNewPrivileges = *process.NoNewPrivileges
	}
	if process.AppArmorProfile != "" {
		cfg.AppArmorProfile = process.AppArmorProfile
	}
	if process.Label != "" {
		cfg.ProcessLabel = process.Label
	}
	if len(process.Rlimits) > 0 {
		cfg.Rlimits = process.Rlimits
	}
	cfg.CreateConsole = process.ConsoleSocket != nil
	cfg.ConsoleWidth = process.ConsoleWidth
	cfg.ConsoleHeight = process.ConsoleHeight
	if process.Init {
		bundle, annotations := utils.Annotations(c.config.Labels)
		cfg.SpecState = &specs.State{
			Version:     specs.Version,
			ID:          c.ID(),
			Bundle:      bundle,
			Annotations: annotations,
		}
	}
	return cfg
}

func (c *linuxContainer) Destroy() error {
	c.m.Lock()
	defer c.m.Unlock()
	lock, err := c.lockContainer(true)
	if err != nil {
		return err
	}
	defer lock.unlock()
	return c.state.destroy()
}

func (c *linuxContainer) Pause() error {
	c.m.Lock()
	defer c.m.Unlock()
	lock, err := c.lockContainer(true)
	if err != nil {
		return err
	}
	defer lock.unlock()
	status, err := c.currentStatus()
	if err != nil {
		return err
	}
	switch status {
	case Running, Created:
		if err := c.cgroupManager.Freeze(configs.Frozen); err != nil {
			return err
		}
		return c.state.transition(&pausedState{c: c})
	}
	return newGenericError(fmt.Errorf("container not running or created: %s", status), ContainerNotRunning)
}

func (c *linuxContainer) Resume() error {
	c.m.Lock()
	defer c.m.Unlock()
	lock, err := c.lockContainer(true)
	if err != nil {
		return err
	}
	defer lock.unlock()
	status, err := c.currentStatus()
	if err != nil {
		return err
	}
	if status != Paused {
		return newGenericError(errors.New("container not paused"), ContainerNotPaused)
	}
	if err := c.cgroupManager.Freeze(configs.Thawed); err != nil {
		return err
	}
	return c.state.transition(&runningState{c: c})
}

func (c *linuxContainer) updateState(process parentProcess) (*State, error) {
	if process != nil {
		c.initProcess = process
	}
	state, err := c.currentState()
	if err != nil {
		return nil, err
	}
	if err := c.saveState(state); err != nil {
		return nil, err
	}
	return state, nil
}

func (c *linuxContainer) saveState(s *State) (retErr error) {
	tmpFile, err := os.CreateTemp(c.root, "state-")
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			tmpFile.Close()
			os.Remove(tmpFile.Name())
		}
	}()

	if err := utils.WriteJSON(tmpFile, s); err != nil {
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	return os.Rename(tmpFile.Name(), filepath.Join(c.root, stateFilename))
}

func (c *linuxContainer) currentStatus() (Status, error) {
	if err := c.refreshState(); err != nil {
		return -1, err
	}
	return c.state.status(), nil
}

// refreshState re-derives the in-process state from what the kernel
// actually reports, since a container's processes can die or be paused
// by something other than this process.
func (c *linuxContainer) refreshState() error {
	paused, err := c.isPaused()
	if err != nil {
		return err
	}
	if paused {
		return c.state.transition(&pausedState{c: c})
	}
	switch c.runType() {
	case Created:
		return c.state.transition(&createdState{c: c})
	case Running:
		return c.state.transition(&runningState{c: c})
	}
	return c.state.transition(&stoppedState{c: c})
}

func (c *linuxContainer) runType() Status {
	if c.initProcess == nil {
		return Stopped
	}
	pid := c.initProcess.pid()
	stat, err := system.GetStat(pid)
	if err != nil {
		return Stopped
	}
	if stat.StartTime != c.initProcessStartTime || stat.State == system.Zombie || stat.State == system.Dead {
		return Stopped
	}
	if _, err := os.Stat(filepath.Join(c.root, notifysocket.FileName)); err == nil {
		return Created
	}
	return Running
}

func (c *linuxContainer) isPaused() (bool, error) {
	state, err := c.cgroupManager.GetFreezerState()
	if err != nil {
		return false, err
	}
	return state == configs.Frozen, nil
}

// currentState builds the record persisted to state.json, walking
// /proc/<pid>/ns/<name> by hand for each requested namespace type.
func (c *linuxContainer) currentState() (*State, error) {
	var (
		startTime           uint64
		externalDescriptors []string
		pid                 = -1
	)
	if c.initProcess != nil {
		pid = c.initProcess.pid()
		startTime, _ = c.initProcess.startTime()
		externalDescriptors = c.initProcess.externalDescriptors()
	}

	state := &State{
		ID:                   c.ID(),
		Config:               *c.config,
		InitProcessPid:       pid,
		InitProcessStartTime: startTime,
		Created:              c.created,
		Rootless:             c.config.RootlessEUID && c.config.RootlessCgroups,
		CgroupPaths:          c.cgroupManager.GetPaths(),
		NamespacePaths:       make(map[configs.NamespaceType]string),
		ExternalDescriptors:  externalDescriptors,
	}

	if pid > 0 {
		for _, ns := range c.config.Namespaces {
			name := configs.NsName(ns.Type)
			if name == "" {
				continue
			}
			state.NamespacePaths[ns.Type] = fmt.Sprintf("/proc/%d/ns/%s", pid, name)
		}
	}
	return state, nil
}

func (c *linuxContainer) currentOCIState() (*specs.State, error) {
	bundle, annotations := utils.Annotations(c.config.Labels)
	state := &specs.State{
		Version:     specs.Version,
		ID:          c.ID(),
		Bundle:      bundle,
		Annotations: annotations,
	}
	status, err := c.currentStatus()
	if err != nil {
		return nil, err
	}
	state.Status = specs.ContainerState(status.String())
	if status != Stopped && c.initProcess != nil {
		state.Pid = c.initProcess.pid()
	}
	return state, nil
}
