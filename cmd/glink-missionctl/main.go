package main

import (
	"fmt"
	"os"

	"github.com/groundlink-io/groundlink/cmd/glink-missionctl/app"
)

func main() {
	if err := app.NewMissionctlCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
