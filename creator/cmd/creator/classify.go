package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/qtcstream/qtcstream/creator/internal/config"
	"github.com/qtcstream/qtcstream/creator/internal/qtc"
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify a recorded trajectory pair",
	Long: `Reads a CSV file with the header x1,y1,x2,y2 (observer, entity), one
row per time step, and prints the QTC sequence as JSON.`,
	Example: "  creator classify --input walk.csv --qtc qtcc --no-collapse",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runClassify(cmd)
	},
}

func init() {
	d := config.DefaultParams()
	f := classifyCmd.Flags()
	f.StringP("input", "i", "-", "CSV file, - for stdin")
	f.String("qtc", string(d.QTCType), "variant: qtcb, qtcc, qtcbc or 0, 1, 2")
	f.Float64("quantisation", d.QuantisationFactor, "movement below this many metres counts as 0")
	f.Float64("threshold", d.DistanceThreshold, "qtcbc distance threshold in metres")
	f.Bool("no-validate", false, "do not insert intermediate states")
	f.Bool("no-collapse", false, "keep repeated states")
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(cmd *cobra.Command) error {
	f := cmd.Flags()
	input, _ := f.GetString("input")
	variant, _ := f.GetString("qtc")
	quant, _ := f.GetFloat64("quantisation")
	threshold, _ := f.GetFloat64("threshold")
	noValidate, _ := f.GetBool("no-validate")
	noCollapse, _ := f.GetBool("no-collapse")

	v, err := qtc.ParseVariant(variant)
	if err != nil {
		return err
	}

	var r io.Reader = cmd.InOrStdin()
	if input != "-" {
		file, err := os.Open(input)
		if err != nil {
			return fmt.Errorf("classify: %w", err)
		}
		defer file.Close()
		r = file
	}

	history, err := qtc.ReadCSV(r)
	if err != nil {
		return err
	}
	states, err := qtc.Classify(history, qtc.Options{
		Variant:            v,
		QuantisationFactor: quant,
		DistanceThreshold:  threshold,
		Validate:           !noValidate,
		Collapse:           !noCollapse,
	})
	if err != nil {
		return err
	}
	out, err := qtc.Serialise(states)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}
