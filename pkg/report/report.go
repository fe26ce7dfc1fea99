package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/c9s/hawkes/pkg/hawkes"
	"github.com/c9s/hawkes/pkg/solver"
)

func NewTableStyle() *table.Style {
	style := table.Style{
		Name:    "StyleRounded",
		Box:     table.StyleBoxRounded,
		Format:  table.FormatOptionsDefault,
		HTML:    table.DefaultHTMLOptions,
		Options: table.OptionsDefault,
		Title:   table.TitleOptionsDefault,
		Color:   table.ColorOptionsDefault,
	}
	style.Format.Header = text.FormatDefault
	style.Title.Format = text.FormatDefault
	return &style
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 8, 64)
}

// PrintCoeffs renders the baselines and the weight matrix stored in coeffs.
// Row i, column j of the matrix is the influence of node i on node j.
func PrintCoeffs(w io.Writer, title string, numNodes int, coeffs []float64) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(*NewTableStyle())
	t.SetTitle(title)

	header := table.Row{"node", "baseline"}
	for j := 0; j < numNodes; j++ {
		header = append(header, fmt.Sprintf("-> %d", j))
	}
	t.AppendHeader(header)

	baselines := hawkes.Baselines(coeffs, numNodes)
	adjacency := hawkes.Adjacency(coeffs, numNodes)

	var rows []table.Row
	for i := 0; i < numNodes; i++ {
		row := table.Row{i, formatFloat(baselines[i])}
		for j := 0; j < numNodes; j++ {
			row = append(row, formatFloat(adjacency.At(i, j)))
		}
		rows = append(rows, row)
	}
	t.AppendRows(rows)
	t.Render()
}

func PrintEvaluation(w io.Writer, numNodes int, loss float64, grad []float64, withColor bool) {
	write := fmt.Fprintf
	if withColor {
		write = color.New(color.FgHiYellow).Fprintf
	}

	_, _ = write(w, "loss: %s\n", formatFloat(loss))
	PrintCoeffs(w, "gradient", numNodes, grad)
}

func PrintFitResult(w io.Writer, numNodes int, result *solver.Result, withColor bool) {
	write := fmt.Fprintf
	if withColor {
		write = color.New(color.FgHiGreen).Fprintf
	}

	_, _ = write(w, "status: %s, loss: %s, iterations: %d, evaluations: %d, rejected steps: %d, took %s\n",
		result.Status, formatFloat(result.Loss), result.Iterations, result.FuncEvaluations,
		result.RejectedSteps, result.Duration)
	PrintCoeffs(w, "fitted coefficients", numNodes, result.Coeffs)
}
