// +build linux

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli"
)

type containerState struct {
	ID      string    `json:"id"`
	Pid     int       `json:"pid"`
	Status  string    `json:"status"`
	Bundle  string    `json:"bundle"`
	Created time.Time `json:"created"`
}

var listCommand = cli.Command{
	Name:  "list",
	Usage: "lists containers started by the runtime",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "format, f",
			Value: "table",
			Usage: "select one of: table or json",
		},
		cli.BoolFlag{
			Name:  "quiet, q",
			Usage: "display only container IDs",
		},
	},
	Action: func(context *cli.Context) error {
		factory, err := loadFactory(context)
		if err != nil {
			return err
		}
		entries, err := os.ReadDir(factory.Root)
		if err != nil {
			if os.IsNotExist(err) {
				entries = nil
			} else {
				return err
			}
		}

		var states []containerState
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			container, err := factory.Load(e.Name())
			if err != nil {
				continue
			}
			st, err := container.State()
			if err != nil {
				continue
			}
			oci, err := container.OCIState()
			if err != nil {
				continue
			}
			states = append(states, containerState{
				ID:      container.ID(),
				Pid:     st.InitProcessPid,
				Status:  string(oci.Status),
				Bundle:  oci.Bundle,
				Created: st.Created,
			})
		}

		if context.Bool("quiet") {
			for _, s := range states {
				fmt.Println(s.ID)
			}
			return nil
		}

		switch context.String("format") {
		case "json":
			enc := json.NewEncoder(os.Stdout)
			return enc.Encode(states)
		case "table":
			w := tabwriter.NewWriter(os.Stdout, 12, 1, 3, ' ', 0)
			fmt.Fprint(w, "ID\tPID\tSTATUS\tBUNDLE\tCREATED\n")
			for _, s := range states {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", s.ID, s.Pid, s.Status, s.Bundle, s.Created.Format(time.RFC3339Nano))
			}
			return w.Flush()
		default:
			return fmt.Errorf("invalid format option %q", context.String("format"))
		}
	},
}
