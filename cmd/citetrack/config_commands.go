package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"citetrack/internal/config"
)

func newConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}
	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigValidateCommand())
	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				target = config.DefaultPath()
			}
			if err := config.WriteSample(target); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample config to %s\n", target)
			return nil
		},
	}
	cmd.Flags().StringVarP(&targetPath, "output", "o", "", "Target path for the sample config")
	return cmd
}

func newConfigValidateCommand() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:         "validate",
		Short:       "Validate a configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(path)
			if target == "" {
				target = config.DefaultPath()
			}
			if _, err := config.Load(target); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config at %s is valid.\n", target)
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "config", "c", "", "Configuration file path")
	return cmd
}
