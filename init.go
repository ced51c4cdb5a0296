// +build linux

package main

import (
	"os"
	"runtime"

	"github.com/go-oci/ocirt/libcontainer"
	"github.com/urfave/cli"
)

func init() {
	if len(os.Args) > 1 && os.Args[1] == "init" {
		runtime.GOMAXPROCS(1)
		runtime.LockOSThread()
	}
}

var initCommand = cli.Command{
	Name:  "init",
	Usage: `initialize the namespaces and launch the process (do not call it outside of this runtime)`,
	Action: func(context *cli.Context) error {
		factory, _ := libcontainer.New("")
		if err := factory.StartInitialization(); err != nil {
			// the error has already been sent back to the parent over the
			// sync pipe; the parent is responsible for surfacing it.
			os.Exit(1)
		}
		panic("libcontainer: container init failed to exec")
	},
}
