// +build linux

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli"
)

var psCommand = cli.Command{
	Name:      "ps",
	Usage:     "ps displays the processes running inside a container",
	ArgsUsage: `<container-id> [ps options]`,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "format, f",
			Value: "table",
			Usage: "select one of: table or json",
		},
	},
	Action: func(context *cli.Context) error {
		if err := checkArgs(context, 1, minArgs); err != nil {
			return err
		}
		container, err := getContainer(context)
		if err != nil {
			return err
		}
		pids, err := container.Processes()
		if err != nil {
			return err
		}
		switch context.String("format") {
		case "json":
			return json.NewEncoder(os.Stdout).Encode(pids)
		case "table":
			fmt.Println("PID")
			for _, pid := range pids {
				fmt.Println(pid)
			}
			return nil
		default:
			return fmt.Errorf("invalid format option %q", context.String("format"))
		}
	},
}
