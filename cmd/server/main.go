package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
)

var CLI struct {
	Version kong.VersionFlag
	EnvFile string `name:"env-file" help:"Optional .env file loaded before the environment." default:".env"`

	Serve  ServeCmd  `cmd:"" help:"Run the device loop and the HTTP command surface." default:"1"`
	Fetch  FetchCmd  `cmd:"" help:"Resolve today's schedule, or cache the look-ahead window with --days."`
	Sync   SyncCmd   `cmd:"" help:"Force a network time sync."`
	Status StatusCmd `cmd:"" help:"Print device status as JSON."`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("muezzin"),
		kong.Description("Offline-first prayer schedule cache and alert daemon"),
		kong.UsageOnError(),
		kong.Vars{"version": "v0.1.0"},
	)

	cfg, closer, err := LoadEnvironment(CLI.EnvFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	if err := ctx.Run(&App{Config: cfg}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		closer.Close()
		os.Exit(1)
	}
}
