// Package main is the dayplan command-line entrypoint.
package main

import "dayplan/internal/cli"

// version is set at build time via -ldflags.
var version = ""

func main() {
	cli.Execute(version)
}
