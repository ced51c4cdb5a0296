//go:build linux
// +build linux

package libcontainer

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/go-oci/ocirt/libcontainer/configs"
	"github.com/go-oci/ocirt/libcontainer/configs/validate"
	"github.com/go-oci/ocirt/libcontainer/logs"
	"github.com/go-oci/ocirt/libcontainer/syncpipe"
	"github.com/sirupsen/logrus"
)

var idRegex = regexp.MustCompile(`^[-\w+.]+$`)

// maxIDLength is the longest container id this runtime accepts; ids
// are used as directory names under the state root and must stay well
// under filesystem path-component limits.
const maxIDLength = 255

// Factory creates and loads containers rooted under a single state
// directory. It is also the re-exec entrypoint: the same binary, invoked
// as "init", calls StartInitialization instead of the CLI.
type Factory struct {
	Root          string
	InitPath      string
	InitArgs      []string
	NewuidmapPath string
	NewgidmapPath string
	Validator     validate.Validator
}

// New builds a Factory rooted at root, creating it if necessary. If the
// newuidmap/newgidmap setuid helpers are on PATH, their paths are
// recorded for later rootless multi-range id mapping; their absence
// isn't an error here, only when a container that actually needs them
// is created.
func New(root string) (*Factory, error) {
	if root != "" {
		if err := os.MkdirAll(root, 0o700); err != nil {
			return nil, newSystemErrorWithCause(err, "creating root directory")
		}
	}
	f := &Factory{
		Root:      root,
		InitPath:  "/proc/self/exe",
		InitArgs:  []string{"/proc/self/exe", "init"},
		Validator: validate.New(),
	}
	if path, err := exec.LookPath("newuidmap"); err == nil {
		f.NewuidmapPath = path
	}
	if path, err := exec.LookPath("newgidmap"); err == nil {
		f.NewgidmapPath = path
	}
	return f, nil
}

func (f *Factory) validateID(id string) error {
	if id == "" {
		return newConfigError("container id cannot be empty")
	}
	if len(id) > maxIDLength {
		return newConfigError(fmt.Sprintf("container id %q is longer than %d bytes", id, maxIDLength))
	}
	if !idRegex.MatchString(id) || id == "." || id == ".." {
		return newConfigError(fmt.Sprintf("invalid container id %q", id))
	}
	return nil
}

// Create validates config and builds a fresh, not-yet-started container
// rooted at <Root>/<id>. The whole operation runs under an exclusive,
// blocking flock on id: a losing concurrent Create waits for the
// winner to finish rather than racing its directory check, so the
// Mkdir below deterministically tells the loser AlreadyExists instead
// of both callers succeeding.
func (f *Factory) Create(id string, config *configs.Config) (Container, error) {
	if err := f.validateID(id); err != nil {
		return nil, err
	}
	if err := f.Validator.Validate(config); err != nil {
		return nil, newGenericError(err, ConfigInvalid)
	}

	lock, err := acquireLock(f.Root, id, true, false)
	if err != nil {
		return nil, err
	}
	defer lock.unlock()

	containerRoot := filepath.Join(f.Root, id)
	mode := os.FileMode(0o711)
	if config.RootlessEUID {
		mode = 0o700
	}
	if err := os.Mkdir(containerRoot, mode); err != nil {
		if os.IsExist(err) {
			return nil, newGenericError(fmt.Errorf("container with id %s already exists", id), ContainerAlreadyExists)
		}
		return nil, newSystemErrorWithCause(err, "creating container root")
	}

	cm, err := newCgroupManager(config.Cgroups, config.RootlessCgroups)
	if err != nil {
		return nil, newGenericError(err, CgroupUnsupported)
	}

	c := &linuxContainer{
		id:            id,
		root:          containerRoot,
		config:        config,
		cgroupManager: cm,
		initPath:      f.InitPath,
		initArgs:      f.InitArgs,
		newuidmapPath: f.NewuidmapPath,
		newgidmapPath: f.NewgidmapPath,
	}
	c.state = &stoppedState{c: c}
	return c, nil
}

// Load reconstructs the Container handle for an existing container by
// reading its persisted state.json, under a shared, nonblocking flock
// on id so a Load racing a Create/Destroy fails fast with StateBusy
// instead of reading a half-written state file.
func (f *Factory) Load(id string) (Container, error) {
	if err := f.validateID(id); err != nil {
		return nil, err
	}

	lock, err := acquireLock(f.Root, id, false, true)
	if err != nil {
		return nil, err
	}
	defer lock.unlock()

	containerRoot := filepath.Join(f.Root, id)
	state, err := f.loadState(containerRoot)
	if err != nil {
		return nil, err
	}

	cm, err := newCgroupManager(state.Config.Cgroups, state.Config.RootlessCgroups)
	if err != nil {
		return nil, newGenericError(err, CgroupUnsupported)
	}

	c := &linuxContainer{
		id:                   id,
		root:                 containerRoot,
		config:               &state.Config,
		cgroupManager:        cm,
		initPath:             f.InitPath,
		initArgs:             f.InitArgs,
		newuidmapPath:        f.NewuidmapPath,
		newgidmapPath:        f.NewgidmapPath,
		initProcessStartTime: state.InitProcessStartTime,
		created:              state.Created,
	}
	c.state = &loadedState{c: c}
	if err := c.refreshState(); err != nil {
		return nil, err
	}
	return c, nil
}

func (f *Factory) loadState(containerRoot string) (*State, error) {
	data, err := os.ReadFile(filepath.Join(containerRoot, stateFilename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, newGenericError(fmt.Errorf("container does not exist: %s", containerRoot), ContainerNotExists)
		}
		return nil, newSystemErrorWithCause(err, "reading state file")
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, newSystemErrorWithCause(err, "unmarshalling state file")
	}
	return &state, nil
}

// StartInitialization is the re-exec entrypoint: the
// init/setns flavor of the cascade reads its env-plumbed pipe fds,
// decodes the initConfig the parent sent, and runs to completion or
// exec. It is called from main's "init" re-exec guard, never from a
// normal CLI command.
func (f *Factory) StartInitialization() (err error) {
	pipeFdStr := os.Getenv("_LIBCONTAINER_INITPIPE")
	pipeFd, err := strconv.Atoi(pipeFdStr)
	if err != nil {
		return fmt.Errorf("unable to convert _LIBCONTAINER_INITPIPE: %w", err)
	}
	pipe := syncpipe.New(os.NewFile(uintptr(pipeFd), "init-pipe"))
	defer pipe.Close()

	defer func() {
		if err != nil {
			_ = pipe.SendError("system", err.Error())
		}
	}()

	if logPipeFdStr := os.Getenv("_LIBCONTAINER_LOGPIPE"); logPipeFdStr != "" {
		lvl, err := logrus.ParseLevel(os.Getenv("_LIBCONTAINER_LOGLEVEL"))
		if err != nil {
			lvl = logrus.InfoLevel
		}
		_ = logs.ConfigureLogging(logs.Config{
			LogPipeFd: logPipeFdStr,
			LogLevel:  lvl,
		})
	}

	var consoleSocket *os.File
	if consoleFdStr := os.Getenv("_LIBCONTAINER_CONSOLE"); consoleFdStr != "" {
		consoleFd, perr := strconv.Atoi(consoleFdStr)
		if perr != nil {
			return fmt.Errorf("unable to convert _LIBCONTAINER_CONSOLE: %w", perr)
		}
		consoleSocket = os.NewFile(uintptr(consoleFd), "console-socket")
	}

	var config initConfig
	if err := json.NewDecoder(pipe.File()).Decode(&config); err != nil {
		return fmt.Errorf("unable to receive init config from pipe: %w", err)
	}

	it := initType(os.Getenv("_LIBCONTAINER_INITTYPE"))

	init, err := newContainerInit(it, pipe, consoleSocket, &config)
	if err != nil {
		return err
	}

	return init.Init()
}
