package main

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"redial/pkg/core"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "redial",
		Short:        "redial drives a connection that reconnects itself",
		Long:         "redial keeps a session connected over a simulated, websocket or HTTP transport, retrying on every disconnect.",
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}
	root.AddCommand(newRunCmd(), newConfigCmd())
	return root
}

func newConfigCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := core.Load(configPath)
			if err != nil {
				return err
			}
			data, err := sonic.ConfigStd.MarshalIndent(config, "", "  ")
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a TOML config file")
	return cmd
}
