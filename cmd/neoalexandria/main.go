// Command neoalexandria is the CLI entry point, mirroring the teacher's
// cmd/briefly/main.go: initialize the logger, then hand off to cobra.
package main

import (
	"neoalexandria/cmd/cmd"
	"neoalexandria/internal/logger"
)

func main() {
	logger.Init()
	cmd.Execute()
}
