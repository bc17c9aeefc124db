package main

import (
	"os"

	"github.com/hearthdev/hearth/internal/cli"
)

var version = "dev"

func main() {
	os.Exit(cli.Run(os.Args, version))
}
