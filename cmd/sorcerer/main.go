package main

import (
	"os"

	"sorcerer/internal/ui/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
