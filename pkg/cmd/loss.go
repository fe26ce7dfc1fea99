package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/c9s/hawkes/pkg/cmd/cmdutil"
	"github.com/c9s/hawkes/pkg/hawkes"
	"github.com/c9s/hawkes/pkg/report"
)

func init() {
	cmdutil.ModelFlags(lossCmd.Flags())
	lossCmd.Flags().Float64Slice("coeffs", nil, "coefficients to evaluate: baselines followed by the row-major weights")
	RootCmd.AddCommand(lossCmd)
}

var lossCmd = &cobra.Command{
	Use:   "loss",
	Short: "evaluate the negative log-likelihood and its gradient",

	// SilenceUsage is an option to silence usage when an error occurs.
	SilenceUsage: true,

	RunE: func(cmd *cobra.Command, args []string) error {
		coeffs, err := cmd.Flags().GetFloat64Slice("coeffs")
		if err != nil {
			return err
		}

		cfg, model, err := loadModel(cmd)
		if err != nil {
			return err
		}

		if len(coeffs) == 0 && cfg.Fit != nil {
			coeffs = cfg.Fit.Coeffs
		}

		numCoeffs, err := model.NumCoeffs()
		if err != nil {
			return err
		}

		if len(coeffs) != numCoeffs {
			return &hawkes.ParameterLengthError{Name: "--coeffs", Got: len(coeffs), Want: numCoeffs}
		}

		grad := make([]float64, numCoeffs)
		loss, err := model.LossAndGrad(coeffs, grad)
		if err != nil {
			return err
		}

		report.PrintEvaluation(os.Stdout, model.NumNodes(), loss, grad, viper.GetBool("color"))
		return nil
	},
}
