package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/kvpbridge/internal/config"
)

// NewValidateCommand loads and validates a config without connecting.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate a config file without connecting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config ok: %d joints, %s -> %s at %s, %.1f Hz\n",
				len(cfg.Joints), cfg.GetReadVariable(), cfg.GetWriteVariable(),
				cfg.Robot.Address, cfg.GetRateHz())
			return nil
		},
	}
}

func loadConfig(opts *RootOptions) (*config.Config, error) {
	switch {
	case opts.ConfigPath != "":
		return config.Load(opts.ConfigPath)
	case opts.Dev:
		cfg := config.Dev()
		return cfg, cfg.Validate()
	default:
		return nil, errors.New("--config is required (or pass --dev)")
	}
}
