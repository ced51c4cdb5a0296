// +build linux

package main

import (
	"fmt"
	"os"

	"github.com/go-oci/ocirt/libcontainer"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/urfave/cli"
	"golang.org/x/sys/unix"
)

// CtAct is the lifecycle action startContainer drives the freshly
// created container through: CtActCreate parks it after the namespace
// cascade, CtActRun collapses create+start
// into one call for the run command's convenience.
type CtAct uint8

const (
	CtActCreate CtAct = iota + 1
	CtActRun
)

type runner struct {
	shouldDestroy bool
	detach        bool
	pidFile       string
	consoleSocket string
	container     libcontainer.Container
	action        CtAct
}

func (r *runner) run(config *specs.Process) (int, error) {
	if err := r.checkTerminal(config); err != nil {
		r.destroy()
		return -1, err
	}
	process, err := newProcess(*config)
	if err != nil {
		r.destroy()
		return -1, err
	}

	detach := r.detach || r.action == CtActCreate
	t, err := setupIO(process, config.Terminal, detach, r.consoleSocket)
	if err != nil {
		r.destroy()
		return -1, err
	}
	defer t.Close()

	switch r.action {
	case CtActCreate:
		err = r.container.Start(process)
	case CtActRun:
		err = r.container.Run(process)
	default:
		panic("unknown action")
	}
	if err != nil {
		r.destroy()
		return -1, err
	}
	if err := t.waitConsole(); err != nil {
		r.terminate(process)
		r.destroy()
		return -1, err
	}
	if err := t.ClosePostStart(); err != nil {
		r.terminate(process)
		r.destroy()
		return -1, err
	}
	if r.pidFile != "" {
		if err := createPidFile(r.pidFile, process); err != nil {
			r.terminate(process)
			r.destroy()
			return -1, err
		}
	}
	if detach {
		return 0, nil
	}
	status, err := process.Wait()
	if err != nil {
		r.terminate(process)
	}
	r.destroy()
	if status == nil {
		return -1, err
	}
	return status.ExitCode(), err
}

func (r *runner) destroy() {
	if r.shouldDestroy {
		destroyContainer(r.container)
	}
}

func (r *runner) terminate(p *libcontainer.Process) {
	_ = p.Signal(unix.SIGKILL)
	_, _ = p.Wait()
}

func (r *runner) checkTerminal(config *specs.Process) error {
	detach := r.detach || r.action == CtActCreate
	if detach && config.Terminal && r.consoleSocket == "" {
		return fmt.Errorf("cannot allocate tty if container will detach without setting console socket")
	}
	if (!detach || !config.Terminal) && r.consoleSocket != "" {
		return fmt.Errorf("cannot use console socket if container will not detach or allocate tty")
	}
	return nil
}

func startContainer(context *cli.Context, spec *specs.Spec, action CtAct) (int, error) {
	id := context.Args().First()
	if id == "" {
		return -1, errEmptyID
	}

	container, err := createContainer(context, id, spec)
	if err != nil {
		return -1, err
	}

	r := &runner{
		shouldDestroy: true,
		container:     container,
		consoleSocket: context.String("console-socket"),
		detach:        context.Bool("detach"),
		pidFile:       context.String("pid-file"),
		action:        action,
	}
	return r.run(spec.Process)
}

// default action is to create and run a container
var runCommand = cli.Command{
	Name:  "run",
	Usage: "create and run a container",
	ArgsUsage: `<container-id>

Where "<container-id>" is your name for the instance of the container that
you are starting. The name you provide for the container instance must be
unique on your host.`,
	Description: `The run command creates an instance of a container for a bundle. The bundle
is a directory with a specification file named "` + specConfig + `" and a root
filesystem.`,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "bundle, b",
			Value: "",
			Usage: "path to the root of the bundle directory, defaults to the current directory",
		},
		cli.StringFlag{
			Name:  "console-socket",
			Value: "",
			Usage: "path to an AF_UNIX socket which will receive a file descriptor referencing the master end of the console's pseudoterminal",
		},
		cli.BoolFlag{
			Name:  "detach, d",
			Usage: "detach from the container's process",
		},
		cli.StringFlag{
			Name:  "pid-file",
			Value: "",
			Usage: "specify the file to write the process id to",
		},
		cli.BoolFlag{
			Name:  "no-pivot",
			Usage: "do not use pivot root to jail process inside rootfs. This should be used whenever the rootfs is on top of a ramdisk",
		},
		cli.BoolFlag{
			Name:  "no-new-keyring",
			Usage: "do not create a new session keyring for the container; this will cause the container to inherit the calling process's session key",
		},
	},
	Action: func(context *cli.Context) error {
		profiler, err := runProfiler(context)
		if err != nil {
			return err
		}
		defer func() {
			if profiler != nil {
				profiler.Stop()
			}
		}()

		if err := checkArgs(context, 1, exactArgs); err != nil {
			return err
		}
		if err := revisePidFile(context); err != nil {
			return err
		}

		bundle := context.String("bundle")
		if bundle != "" {
			if err := os.Chdir(bundle); err != nil {
				return err
			}
		}
		spec, err := loadSpec(specConfig)
		if err != nil {
			return err
		}

		status, err := startContainer(context, spec, CtActRun)
		if err == nil {
			if profiler != nil {
				profiler.Stop()
			}
			os.Exit(status)
		}
		return err
	},
}
