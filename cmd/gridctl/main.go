package main

import (
	"github.com/gridforge/jobcore/internal/cli"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	cli.SetVersion(Version, BuildTime)
	cli.Execute()
}
