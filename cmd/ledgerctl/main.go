// Command ledgerctl inspects and administers the ledger store directly,
// without going through the HTTP server.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

var configPath = flag.String("config", envOr("CONFIG_PATH", "configs/config.yaml"), "Path to the YAML config file.")

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	commander.Register(&accountsCmd{}, "inspect")
	commander.Register(&logCmd{}, "inspect")
	commander.Register(&marketCmd{}, "inspect")
	commander.Register(&resetCmd{}, "admin")
	commander.Register(&clearLogCmd{}, "admin")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
