package main

import (
	"fmt"
	"os"

	"example.com/attendance/internal/cli"
	"example.com/attendance/internal/config"
)

func main() {
	_ = config.LoadDotEnv(".env")

	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
