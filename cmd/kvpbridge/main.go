// Command kvpbridge runs a fixed-rate control loop against a remote robot
// controller through the lock-step hardware interface.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/banshee-data/kvpbridge/internal/version"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Dev        bool
}

// NewRootCommand creates the kvpbridge command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "kvpbridge",
		Short: "Lock-step bridge between a control loop and a KUKA controller",
		Long: `kvpbridge exchanges joint state and commands with a remote robot
controller once per control cycle, over two variable-access connections.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (.json, .yaml, .yml)")
	cmd.PersistentFlags().BoolVar(&opts.Dev, "dev", false, "use the built-in simulator config when no --config is given")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewVersionCommand())
	return cmd
}

// NewVersionCommand prints build metadata.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
