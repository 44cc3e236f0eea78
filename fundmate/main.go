// Command fundmate keeps broker portfolio snapshots up to date from trade
// confirmations.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/etnz/fundmate/cmd"
	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")
	cmd.Register(commander)

	cmd.Complete("fundmate", flag.CommandLine, commander)

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
