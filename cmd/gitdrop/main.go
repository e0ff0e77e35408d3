package main

import (
	"os"

	"github.com/ocuroot/gitdrop/client/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
