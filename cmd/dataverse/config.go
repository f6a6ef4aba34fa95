package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vango-dev/dataverse/internal/config"
	"github.com/vango-dev/dataverse/internal/errors"
)

func configCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or inspect the configuration file",
	}
	cmd.AddCommand(configInitCmd(), configShowCmd(g))
	return cmd
}

func configInitCmd() *cobra.Command {
	var (
		asJSON bool
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a configuration file with default values",
		Long: `Write dataverse.yaml (or dataverse.json with --json) with default values
into dir, the working directory by default.

Examples:
  dataverse config init
  dataverse config init --json ./deploy`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			name := config.ConfigFileName
			if asJSON {
				name = config.JSONConfigFileName
			}
			path := filepath.Join(dir, name)

			if _, err := os.Stat(path); err == nil && !force {
				return errors.New("DV202").
					WithDetail(path + " already exists").
					WithSuggestion("Pass --force to overwrite it")
			}
			if err := config.New().SaveTo(path); err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "Wrote %s", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Write JSON instead of YAML")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")

	return cmd
}

func configShowCmd(g *globals) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			data, err := cfg.Marshal(!asJSON)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if cfg.Path() != "" {
				info(w, "# %s", cfg.Path())
			} else {
				info(w, "# defaults")
			}
			_, err = w.Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of YAML")

	return cmd
}
