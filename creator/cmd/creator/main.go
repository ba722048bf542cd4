package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "creator",
	Short: "Online QTC creator",
	Long: `creator turns an observer pose stream and a tracked-entity stream into
per-entity Qualitative Trajectory Calculus sequences in real time.`,
	SilenceUsage: true,
}

// logLevel is shared by every command so a config reload can change it.
var logLevel = new(slog.LevelVar)

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "config.yaml", "path to config file")
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file loaded before the config; missing is fine")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, _ []string) {
		envFile, _ := cmd.Flags().GetString("env-file")
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			slog.Warn("creator: could not load env file", "path", envFile, "err", err)
		}
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
