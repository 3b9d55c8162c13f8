package main

import (
	"os"

	"github.com/golang/glog"

	"dualcore-go/cmd/dualcore/commands"
)

var version = "dev"

func main() {
	commands.SetVersion(version)
	err := commands.Execute()
	glog.Flush()
	if err != nil {
		os.Exit(1)
	}
}
