package main

import (
	"os"

	"github.com/convrelay/convrelay/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
