package main

import (
	"flag"

	"github.com/posener/complete/v2"
	"github.com/posener/complete/v2/predict"
)

// flagPredictors narrows completion for flags with a fixed set of values.
var flagPredictors = map[string]complete.Predictor{
	"k": predict.Set{"expense", "income"},
	"f": predict.Set{"csv", "report"},
	"o": predict.Files("*"),
}

// completion builds the shell completion tree from the global flags and the
// flags each command registers. Install it with COMP_INSTALL=1 ledgerctl.
func completion(global *flag.FlagSet, groups []group) *complete.Command {
	root := &complete.Command{
		Sub:   map[string]*complete.Command{"help": {}, "flags": {}, "commands": {}},
		Flags: predictors(global),
	}
	for _, g := range groups {
		for _, c := range g.commands {
			fs := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
			c.SetFlags(fs)
			root.Sub[c.Name()] = &complete.Command{Flags: predictors(fs)}
		}
	}
	return root
}

func predictors(fs *flag.FlagSet) map[string]complete.Predictor {
	out := make(map[string]complete.Predictor)
	fs.VisitAll(func(f *flag.Flag) {
		if p, ok := flagPredictors[f.Name]; ok {
			out[f.Name] = p
			return
		}
		if b, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && b.IsBoolFlag() {
			out[f.Name] = predict.Nothing
			return
		}
		out[f.Name] = predict.Something
	})
	return out
}
