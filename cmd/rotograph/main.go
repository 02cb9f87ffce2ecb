package main

import (
	"os"

	"github.com/seclens/rotograph/cmd/rotograph/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
