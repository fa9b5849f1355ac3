// Package main is the entry point for the querychat CLI binary.
package main

import (
	"os"

	"querychat/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
