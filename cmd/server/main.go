package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/simp-lee/practiceadmin/internal/app"
	"github.com/simp-lee/practiceadmin/internal/config"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// rootCmd builds the practiceadmin command tree. Without a subcommand it
// serves the console.
func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "practiceadmin",
		Short:         "Staff console for the practice API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.PersistentFlags().String("config", defaultConfigPath, "path to configuration file")

	root.AddCommand(
		serveCmd(),
		staffCmd(),
	)
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the admin console over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}
	return a.Run()
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
