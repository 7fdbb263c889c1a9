package main

import (
	"os"

	"pyscope/internal/ui/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
