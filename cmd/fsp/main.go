package main

import (
	"os"

	"github.com/Pablu23/fsp/cmd/fsp/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		commands.PrintErr("Error: %v", err)
		os.Exit(1)
	}
}
