// +build linux

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/opencontainers/runtime-spec/specs-go"
	"github.com/urfave/cli"
)

var execCommand = cli.Command{
	Name:  "exec",
	Usage: "execute a new process inside an existing container",
	ArgsUsage: `<container-id> <command> [command options]  || -p process.json <container-id>

Where "<container-id>" is the name for the instance of the container and
"<command>" is the command to be executed in the container. "<command>" can't
be empty unless a "-p" flag provided.`,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "console-socket",
			Value: "",
			Usage: "path to an AF_UNIX socket which will receive a file descriptor referencing the master end of the console's pseudoterminal",
		},
		cli.StringFlag{
			Name:  "cwd",
			Value: "",
			Usage: "current working directory in the container",
		},
		cli.StringSliceFlag{
			Name:  "env, e",
			Usage: "set environment variables",
		},
		cli.BoolFlag{
			Name:  "tty, t",
			Usage: "allocate a pseudo-TTY",
		},
		cli.StringFlag{
			Name:  "user, u",
			Value: "0:0",
			Usage: "UID (format: <uid>[:<gid>])",
		},
		cli.StringSliceFlag{
			Name:  "cap, c",
			Usage: "add a capability to the bounding set for the process",
		},
		cli.BoolFlag{
			Name:  "no-new-privs",
			Usage: "set the no new privileges value for the process",
		},
		cli.StringFlag{
			Name:  "process, p",
			Usage: "path to the process.json",
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
	},
	Action: func(context *cli.Context) error {
		if err := checkArgs(context, 1, minArgs); err != nil {
			return err
		}
		if err := revisePidFile(context); err != nil {
			return err
		}

		container, err := getContainer(context)
		if err != nil {
			return err
		}

		var spec *specs.Process
		if path := context.String("process"); path != "" {
			spec, err = loadProcessSpec(path)
			if err != nil {
				return err
			}
		} else {
			spec, err = buildProcessSpec(context)
			if err != nil {
				return err
			}
		}

		process, err := newProcess(*spec)
		if err != nil {
			return err
		}
		process.Env = append(os.Environ(), process.Env...)

		detach := context.Bool("detach")
		t, err := setupIO(process, spec.Terminal, detach, context.String("console-socket"))
		if err != nil {
			return err
		}
		defer t.Close()

		if err := container.Start(process); err != nil {
			return err
		}
		if err := t.waitConsole(); err != nil {
			return err
		}
		if err := t.ClosePostStart(); err != nil {
			return err
		}
		if pidFile := context.String("pid-file"); pidFile != "" {
			if err := createPidFile(pidFile, process); err != nil {
				return err
			}
		}
		if detach {
			return nil
		}

		status, err := process.Wait()
		if err != nil {
			return err
		}
		os.Exit(statusCode(status))
		return nil
	},
}

func statusCode(status *os.ProcessState) int {
	if status == nil {
		return -1
	}
	return status.ExitCode()
}

func loadProcessSpec(path string) (*specs.Process, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var p specs.Process
	if err := json.NewDecoder(f).Decode(&p); err != nil {
		return nil, err
	}
	return &p, validateProcessSpec(&p)
}

func buildProcessSpec(context *cli.Context) (*specs.Process, error) {
	args := context.Args().Tail()
	if len(args) == 0 {
		return nil, fmt.Errorf("exec: no command given, see --process")
	}
	cwd := context.String("cwd")
	if cwd == "" {
		cwd = "/"
	}

	var uid, gid uint32
	if u := context.String("user"); u != "" {
		parts := strings.SplitN(u, ":", 2)
		v, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid uid %q", parts[0])
		}
		uid = uint32(v)
		if len(parts) == 2 {
			v, err := strconv.ParseUint(parts[1], 10, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid gid %q", parts[1])
			}
			gid = uint32(v)
		}
	}

	p := &specs.Process{
		Terminal: context.Bool("tty"),
		Cwd:      cwd,
		Args:     args,
		Env:      context.StringSlice("env"),
		User:     specs.User{UID: uid, GID: gid},
	}
	if caps := context.StringSlice("cap"); len(caps) > 0 {
		p.Capabilities = &specs.LinuxCapabilities{
			Bounding:    caps,
			Effective:   caps,
			Inheritable: caps,
			Permitted:   caps,
		}
	}
	p.NoNewPrivileges = context.Bool("no-new-privs")
	return p, nil
}
