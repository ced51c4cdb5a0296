// +build linux

package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

// event mirrors the shape every events line is encoded as, so a stream
// consumer only needs to dispatch on Type.
type event struct {
	Type string      `json:"type"`
	ID   string      `json:"id"`
	Data interface{} `json:"data,omitempty"`
}

var eventsCommand = cli.Command{
	Name:  "events",
	Usage: "displays container events such as cpu, memory, and I/O statistics",
	ArgsUsage: `<container-id>

Where "<container-id>" is the name for the instance of the container.`,
	Flags: []cli.Flag{
		cli.DurationFlag{
			Name:  "interval",
			Value: 5 * time.Second,
			Usage: "set the stats collection interval",
		},
		cli.BoolFlag{
			Name:  "stats",
			Usage: "display the container's statistics then exit",
		},
	},
	Action: func(context *cli.Context) error {
		if err := checkArgs(context, 1, exactArgs); err != nil {
			return err
		}
		container, err := getContainer(context)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)

		emit := func() error {
			s, err := container.Stats()
			if err != nil {
				return err
			}
			return enc.Encode(&event{Type: "stats", ID: container.ID(), Data: s})
		}

		if context.Bool("stats") {
			return emit()
		}

		for range time.Tick(context.Duration("interval")) {
			if err := emit(); err != nil {
				logrus.Error(err)
			}
		}
		return nil
	},
}
