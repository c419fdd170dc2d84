package main

import (
	"fmt"
	"os"
)

const usage = `usage: autoflow <command> [flags]

commands:
  serve     run the scheduler, plus the MCP server and operator API when enabled
  install   write ~/.autoflow/settings.json and reload a running server
  backup    write a one-off database snapshot
  version   print the version
`

func main() {
	cmd := "serve"
	args := os.Args[1:]
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		os.Exit(runServe())
	case "install":
		os.Exit(runInstall(args))
	case "backup":
		os.Exit(runBackup(args))
	case "version", "-v", "--version":
		printVersion()
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
}
