package main

import (
	"os"

	"github.com/Himanshuwagh/OutPilot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
