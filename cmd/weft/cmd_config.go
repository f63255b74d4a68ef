// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/weftworks/weft/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage Weft configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate an example configuration file",
	Long:  `Write a commented weft.yaml into the data directory (default ~/.weft/).`,
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		shown := *cfg
		shown.LLM.OpenAIAPIKey = redact(shown.LLM.OpenAIAPIKey)
		shown.LLM.AnthropicAPIKey = redact(shown.LLM.AnthropicAPIKey)
		return printJSON(shown)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configInitCmd.Flags().Bool("force", false, "overwrite an existing config file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")

	dataDir := config.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	path := filepath.Join(dataDir, config.DefaultConfigFileName+".yaml")
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if err := os.WriteFile(path, []byte(config.GenerateExampleConfig()), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	fmt.Printf("✅ Wrote %s\n", path)
	return nil
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
