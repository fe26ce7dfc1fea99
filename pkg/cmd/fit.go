package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/c9s/hawkes/pkg/cmd/cmdutil"
	"github.com/c9s/hawkes/pkg/report"
	"github.com/c9s/hawkes/pkg/solver"
)

func init() {
	cmdutil.ModelFlags(fitCmd.Flags())
	fitCmd.Flags().Int("max-iterations", 0, "maximum number of L-BFGS iterations, overrides fit.maxIterations")
	fitCmd.Flags().Bool("progress", false, "show a progress bar")
	RootCmd.AddCommand(fitCmd)
}

var fitCmd = &cobra.Command{
	Use:   "fit",
	Short: "fit baselines and kernel weights by maximum likelihood",

	// SilenceUsage is an option to silence usage when an error occurs.
	SilenceUsage: true,

	RunE: func(cmd *cobra.Command, args []string) error {
		maxIterations, err := cmd.Flags().GetInt("max-iterations")
		if err != nil {
			return err
		}

		showProgress, err := cmd.Flags().GetBool("progress")
		if err != nil {
			return err
		}

		cfg, model, err := loadModel(cmd)
		if err != nil {
			return err
		}

		options := cfg.Fit.Options
		options.ShowProgress = showProgress
		if maxIterations > 0 {
			options.MaxIterations = maxIterations
		}

		initial := cfg.Fit.Coeffs
		if len(initial) == 0 {
			totalTime := 0.0
			for _, endTime := range model.EndTimes() {
				totalTime += endTime
			}

			initial = solver.InitialCoeffs(model.NumNodes(), model.NodeJumps(), totalTime, cfg.Fit.InitialWeight)
		}

		log.Infof("fitting %d coefficients with decay %f on %d threads",
			len(initial), model.Decays(), model.NumThreads())

		result, err := solver.Fit(model, initial, options)
		if err != nil {
			return err
		}

		report.PrintFitResult(os.Stdout, model.NumNodes(), result, viper.GetBool("color"))
		return nil
	},
}
