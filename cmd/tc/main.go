// Package main provides the entry point for the tc CLI.
package main

import (
	"os"

	"github.com/randalmurphal/tc/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
