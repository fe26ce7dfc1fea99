package cmdutil

import "github.com/spf13/pflag"

// ModelFlags defines the flags overriding the model and data sections of the config file
func ModelFlags(flags *pflag.FlagSet) {
	flags.Float64("decay", 0, "kernel decay, overrides model.decay")
	flags.Int("threads", 0, "number of evaluation threads, overrides model.numThreads")
	flags.String("data", "", "dataset file, overrides data.path")
}
