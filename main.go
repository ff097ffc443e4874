package main

import (
	"context"
	"os"

	"github.com/autopark-gthost/odocheck/cmd"
	"github.com/charmbracelet/fang"
)

const version = "0.1.0"

func main() {
	// fang adds --version, completions and styled errors on top of the cobra tree.
	if err := fang.Execute(
		context.Background(),
		cmd.NewRootCmd(),
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt, os.Kill),
	); err != nil {
		os.Exit(1)
	}
}
