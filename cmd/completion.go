package cmd

import (
	"flag"

	"github.com/etnz/fundmate/docs"
	"github.com/google/subcommands"
	"github.com/posener/complete/v2"
	"github.com/posener/complete/v2/predict"
)

// argPredictors tell what the positional arguments of a subcommand are.
var argPredictors = map[string]complete.Predictor{
	"reconcile": predict.Or(predict.Files("*.csv"), predict.Files("*.xlsx")),
	"extract":   predict.Or(predict.Files("*.pdf"), predict.Files("*.png"), predict.Files("*.jpg")),
	"show":      predict.Set{"latest"},
	"help":      predict.Set{"reconcile", "parse", "show", "holders", "extract", "serve", "topic"},
}

// flagPredictors refine the completion of some flag values.
var flagPredictors = map[string]complete.Predictor{
	"tc":        predict.Dirs("*"),
	"data-dir":  predict.Dirs("*"),
	"store":     predict.Set{"file", "sqlite"},
	"unmatched": predict.Set{"abort", "skip"},
	"csv":       predict.Set{"positions", "cash"},
}

// Complete answers the shell when the program runs as its completion
// function, in which case it exits. The completion is derived from the
// flags of the registered subcommands. Install it with
// "COMP_INSTALL=1 fundmate".
func Complete(name string, top *flag.FlagSet, cdr *subcommands.Commander) {
	if topics, err := docs.GetAllTopics(); err == nil {
		argPredictors["topic"] = predict.Set(append(topics, "*"))
	}
	root := &complete.Command{Flags: flagsOf(top), Sub: map[string]*complete.Command{}}
	cdr.VisitCommands(func(_ *subcommands.CommandGroup, c subcommands.Command) {
		fs := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
		c.SetFlags(fs)
		root.Sub[c.Name()] = &complete.Command{Flags: flagsOf(fs), Args: argPredictors[c.Name()]}
	})
	root.Complete(name)
}

func flagsOf(fs *flag.FlagSet) map[string]complete.Predictor {
	flags := make(map[string]complete.Predictor)
	fs.VisitAll(func(f *flag.Flag) {
		if p, ok := flagPredictors[f.Name]; ok {
			flags[f.Name] = p
			return
		}
		if b, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && b.IsBoolFlag() {
			flags[f.Name] = predict.Nothing
			return
		}
		flags[f.Name] = predict.Something
	})
	return flags
}
