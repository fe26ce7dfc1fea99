package cmd

import (
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/c9s/hawkes/pkg/dataset"
	"github.com/c9s/hawkes/pkg/simulation"
)

func init() {
	simulateCmd.Flags().String("output", "", "dataset output file, defaults to stdout")
	simulateCmd.Flags().Uint64("seed", 0, "random seed, overrides simulation.seed")
	RootCmd.AddCommand(simulateCmd)
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "simulate realizations of the process described by the simulation section",

	// SilenceUsage is an option to silence usage when an error occurs.
	SilenceUsage: true,

	RunE: func(cmd *cobra.Command, args []string) error {
		output, err := cmd.Flags().GetString("output")
		if err != nil {
			return err
		}

		seed, err := cmd.Flags().GetUint64("seed")
		if err != nil {
			return err
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		sim := cfg.Simulation
		if sim == nil {
			return errors.New("the config file has no simulation section")
		}

		if seed == 0 {
			seed = sim.Seed
		}

		simulator, err := simulation.NewSimulator(cfg.Model.Decay, sim.Baselines, sim.Adjacency, seed)
		if err != nil {
			return err
		}

		realizations, err := simulator.SimulateMany(sim.Realizations, sim.EndTime)
		if err != nil {
			return err
		}

		ds := &dataset.Dataset{Realizations: realizations}
		for range realizations {
			ds.EndTimes = append(ds.EndTimes, sim.EndTime)
		}

		log.Infof("simulated %d realizations with %d jumps", len(realizations), ds.NumJumps())

		if output == "" {
			return ds.Write(os.Stdout)
		}
		return ds.Save(output)
	},
}
