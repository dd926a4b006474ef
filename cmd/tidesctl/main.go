package main

import "tides/internal/cli"

// Version is set at build time via -ldflags "-X main.Version=X.Y.Z"
var Version = "0.0.0-dev"

func main() {
	cli.Execute(Version)
}
