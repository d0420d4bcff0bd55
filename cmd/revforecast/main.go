package main

import (
	"os"

	"github.com/okian/revforecast/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Stdin, os.Stdout, os.Stderr, os.Args[1:]))
}
