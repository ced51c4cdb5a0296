// +build linux

package main

import (
	"fmt"
	"time"

	"github.com/go-oci/ocirt/libcontainer"
	"github.com/urfave/cli"
	"golang.org/x/sys/unix"
)

var deleteCommand = cli.Command{
	Name:  "delete",
	Usage: "delete any resources held by the container often used with detached container",
	ArgsUsage: `<container-id>

Where "<container-id>" is the name for the instance of the container.`,
	Description: `The delete command deletes any resources held by the container often
used with detached containers.`,
	Flags: []cli.Flag{
		cli.BoolFlag{
			Name:  "force, f",
			Usage: "forcibly deletes the container if it is still running (uses SIGKILL)",
		},
	},
	Action: func(context *cli.Context) error {
		if err := checkArgs(context, 1, exactArgs); err != nil {
			return err
		}
		id := context.Args().First()
		factory, err := loadFactory(context)
		if err != nil {
			return err
		}
		container, err := factory.Load(id)
		if err != nil {
			if context.Bool("force") {
				return nil
			}
			return err
		}
		status, err := container.Status()
		if err != nil {
			return err
		}
		switch status {
		case libcontainer.Stopped:
			return container.Destroy()
		case libcontainer.Created:
			return killContainer(container)
		default:
			if context.Bool("force") {
				return killContainer(container)
			}
			return fmt.Errorf("cannot delete container %s that is not stopped: state %s", id, status)
		}
	},
}

func killContainer(container libcontainer.Container) error {
	_ = container.Signal(unix.SIGKILL, false)
	for i := 0; i < 100; i++ {
		status, err := container.Status()
		if err != nil {
			return container.Destroy()
		}
		if status == libcontainer.Stopped {
			return container.Destroy()
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("container %s did not stop after SIGKILL", container.ID())
}
