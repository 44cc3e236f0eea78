package cmd

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"
)

type parseCmd struct{}

func (*parseCmd) Name() string     { return "parse" }
func (*parseCmd) Synopsis() string { return "show how instrument descriptions are recognized" }
func (*parseCmd) Usage() string {
	return `fundmate parse [<description>...]

  Parses each description, or each line of stdin when none is given, and
  prints its identity key and the notation that recognized it.
`
}

func (c *parseCmd) SetFlags(f *flag.FlagSet) {}

func (c *parseCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp()
	if err != nil {
		return failf("Error: %v", err)
	}
	defer a.Close()

	texts := f.Args()
	if len(texts) == 0 {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			if line := strings.TrimSpace(sc.Text()); line != "" {
				texts = append(texts, line)
			}
		}
		if err := sc.Err(); err != nil {
			return failf("Error reading stdin: %v", err)
		}
	}

	var b strings.Builder
	b.WriteString("| Description | Key | Notation | Multiplier |\n|---|---|---|---:|\n")
	status := subcommands.ExitSuccess
	for _, text := range texts {
		in, err := a.registry.Parse(text)
		if err != nil {
			fmt.Fprintf(&b, "| %s | *%v* | | |\n", cell(text), cell(err.Error()))
			status = subcommands.ExitFailure
			continue
		}
		multiplier := ""
		if in.Option != nil {
			multiplier = in.Option.Multiplier.String()
		}
		fmt.Fprintf(&b, "| %s | `%s` | %s | %s |\n", cell(text), in.Key(), in.Parser, multiplier)
	}
	fmt.Fprintf(&b, "\nNotations, by priority: %s.\n", strings.Join(a.registry.Names(), ", "))
	printMarkdown(b.String())
	return status
}

func cell(s string) string { return strings.ReplaceAll(s, "|", `\|`) }
