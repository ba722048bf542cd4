package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qtcstream/qtcstream/creator/internal/config"
)

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate the config file and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s: ok\n", path)
		fmt.Fprintf(out, "  target_frame     %s\n", cfg.TargetFrame)
		fmt.Fprintf(out, "  processing_rate  %g Hz\n", cfg.ProcessingRate)
		fmt.Fprintf(out, "  decay_time       %s\n", cfg.DecayTime)
		fmt.Fprintf(out, "  qtc_type         %s\n", cfg.Params.QTCType)
		fmt.Fprintf(out, "  smoothing_rate   %s\n", cfg.Params.SmoothingRate)
		fmt.Fprintf(out, "  frames           %d\n", len(cfg.Frames))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkConfigCmd)
}
