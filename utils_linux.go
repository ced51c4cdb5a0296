// +build linux

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-oci/ocirt/libcontainer"
	"github.com/go-oci/ocirt/libcontainer/configs"
	"github.com/go-oci/ocirt/specconv"
	"github.com/opencontainers/runtime-spec/specs-go"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

var errEmptyID = errors.New("container id cannot be empty")

// loadFactory builds the Factory a command will drive the container
// through, rooted wherever --root points.
func loadFactory(context *cli.Context) (*libcontainer.Factory, error) {
	root := context.GlobalString("root")
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return libcontainer.New(abs)
}

// getContainer loads the container named by the command's first
// argument using the default factory.
func getContainer(context *cli.Context) (libcontainer.Container, error) {
	id := context.Args().First()
	if id == "" {
		return nil, errEmptyID
	}
	factory, err := loadFactory(context)
	if err != nil {
		return nil, err
	}
	return factory.Load(id)
}

func fatal(err error) {
	if logrusToStderr() {
		logrus.Error(err)
	} else {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(1)
}

func fatalf(t string, v ...interface{}) {
	fatal(fmt.Errorf(t, v...))
}

func logrusToStderr() bool {
	return os.Getenv("_LIBCONTAINER_LOGPIPE") == ""
}

// shouldHonorXDGRuntimeDir is false when running as root: the sticky,
// per-user XDG_RUNTIME_DIR convention only makes sense for a rootless
// runtime instance.
func shouldHonorXDGRuntimeDir() bool {
	if os.Geteuid() != 0 {
		return true
	}
	// euid 0 in a user namespace is still "rootless" from the host's
	// point of view, but there's no portable, allocation-free way to
	// tell from here; fall back to the real uid.
	return os.Getuid() != 0
}

func reviseRootDir(context *cli.Context) error {
	if context.GlobalIsSet("root") {
		root, err := filepath.Abs(context.GlobalString("root"))
		if err != nil {
			return err
		}
		return context.GlobalSet("root", root)
	}
	return nil
}

func revisePidFile(context *cli.Context) error {
	pidFile := context.String("pid-file")
	if pidFile == "" {
		return nil
	}
	pidFile, err := filepath.Abs(pidFile)
	if err != nil {
		return err
	}
	return context.Set("pid-file", pidFile)
}

type argFunc func(context *cli.Context, exact int) error

func exactArgs(context *cli.Context, exact int) error {
	if len(context.Args()) != exact {
		return fmt.Errorf("%s: %q requires exactly %d argument(s)", os.Args[0], context.Command.Name, exact)
	}
	return nil
}

func minArgs(context *cli.Context, min int) error {
	if len(context.Args()) < min {
		return fmt.Errorf("%s: %q requires at least %d argument(s)", os.Args[0], context.Command.Name, min)
	}
	return nil
}

func checkArgs(context *cli.Context, expected int, checker argFunc) error {
	return checker(context, expected)
}

// isRootless reports whether this process itself is running unprivileged;
// it drives the Rootless bit CreateLibcontainerConfig stamps on the
// resulting config.
func isRootless() bool {
	return os.Geteuid() != 0
}

// loadSpec reads and decodes the bundle's config.json.
func loadSpec(cPath string) (*specs.Spec, error) {
	cf, err := os.Open(cPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("JSON specification file %s not found", cPath)
		}
		return nil, err
	}
	defer cf.Close()

	var spec specs.Spec
	if err := json.NewDecoder(cf).Decode(&spec); err != nil {
		return nil, err
	}
	if spec.Process == nil {
		return nil, fmt.Errorf("config.json has no process section")
	}
	return &spec, validateProcessSpec(spec.Process)
}

func validateProcessSpec(p *specs.Process) error {
	if p.Cwd == "" {
		return fmt.Errorf("Cwd property must not be empty")
	}
	if !filepath.IsAbs(p.Cwd) {
		return fmt.Errorf("Cwd must be an absolute path")
	}
	if len(p.Args) == 0 {
		return fmt.Errorf("args must not be empty")
	}
	return nil
}

func createLibContainerRlimit(rlimit specs.POSIXRlimit) (configs.Rlimit, error) {
	t, err := configs.RlimitTypeFromOCI(rlimit.Type)
	if err != nil {
		return configs.Rlimit{}, err
	}
	return configs.Rlimit{Type: t, Hard: rlimit.Hard, Soft: rlimit.Soft}, nil
}

// newProcess builds a *libcontainer.Process for p, inheriting nothing
// about stdio: the caller wires that up separately via setupIO.
func newProcess(p specs.Process) (*libcontainer.Process, error) {
	lp := &libcontainer.Process{
		Args:            p.Args,
		Env:             p.Env,
		User:            fmt.Sprintf("%d:%d", p.User.UID, p.User.GID),
		Cwd:             p.Cwd,
		Label:           p.SelinuxLabel,
		NoNewPrivileges: &p.NoNewPrivileges,
		AppArmorProfile: p.ApparmorProfile,
	}
	if p.ConsoleSize != nil {
		lp.ConsoleWidth = uint16(p.ConsoleSize.Width)
		lp.ConsoleHeight = uint16(p.ConsoleSize.Height)
	}
	if p.Capabilities != nil {
		lp.Capabilities = &libcontainer.Capabilities{
			Bounding:    p.Capabilities.Bounding,
			Effective:   p.Capabilities.Effective,
			Inheritable: p.Capabilities.Inheritable,
			Permitted:   p.Capabilities.Permitted,
			Ambient:     p.Capabilities.Ambient,
		}
	}
	for _, gid := range p.User.AdditionalGids {
		lp.AdditionalGroups = append(lp.AdditionalGroups, fmt.Sprintf("%d", gid))
	}
	for _, rlimit := range p.Rlimits {
		rl, err := createLibContainerRlimit(rlimit)
		if err != nil {
			return nil, err
		}
		lp.Rlimits = append(lp.Rlimits, rl)
	}
	return lp, nil
}

// createContainer converts spec into a configs.Config and has the
// factory build a fresh, stopped container record for id from it.
func createContainer(context *cli.Context, id string, spec *specs.Spec) (libcontainer.Container, error) {
	config, err := specconv.CreateLibcontainerConfig(&specconv.CreateOpts{
		CgroupName:       id,
		UseSystemdCgroup: context.GlobalBool("systemd-cgroup"),
		NoPivotRoot:      context.Bool("no-pivot"),
		NoNewKeyring:     context.Bool("no-new-keyring"),
		Spec:             spec,
		Rootless:         isRootless(),
	})
	if err != nil {
		return nil, err
	}

	factory, err := loadFactory(context)
	if err != nil {
		return nil, err
	}
	return factory.Create(id, config)
}

func destroyContainer(container libcontainer.Container) {
	if err := container.Destroy(); err != nil {
		logrus.Error(err)
	}
}

// createPidFile atomically writes process's pid to path.
func createPidFile(path string, process *libcontainer.Process) error {
	pid, err := process.Pid()
	if err != nil {
		return err
	}
	tmpName := filepath.Join(filepath.Dir(path), fmt.Sprintf(".%s", filepath.Base(path)))
	f, err := os.OpenFile(tmpName, os.O_RDWR|os.O_CREATE|os.O_EXCL|os.O_SYNC, 0o666)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(f, "%d", pid)
	f.Close()
	if err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
