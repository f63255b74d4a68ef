// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/weftworks/weft/internal/config"
	"github.com/weftworks/weft/internal/log"
	"github.com/weftworks/weft/pkg/agent"
	"github.com/weftworks/weft/pkg/workflow"
)

// Exit codes.
const (
	exitOK                = 0
	exitRunFailed         = 1
	exitInvalidDefinition = 2
	exitCycle             = 3
	exitCancelled         = 4
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "weft",
	Short: "Weft - agent workflow orchestration engine",
	Long: `Weft runs declarative agent workflows: YAML-defined DAGs of shell
commands, validations, transforms, and LLM agent invocations, with
checkpointed resume and event-driven sensors.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			cfg.Logging.Level = lvl
		}
		return log.Init(cfg.Logging.Level, cfg.Logging.Format == "console")
	},
}

// exitError carries the process exit code alongside the cause.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit code %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// exitCodeFor classifies an error into the documented exit codes.
func exitCodeFor(err error) int {
	if err == nil {
		return exitOK
	}
	var cycleErr *workflow.CycleError
	if errors.As(err, &cycleErr) {
		return exitCycle
	}
	var valErr *agent.ValidationError
	if errors.As(err, &valErr) {
		return exitInvalidDefinition
	}
	if errors.Is(err, workflow.ErrMalformed) ||
		errors.Is(err, workflow.ErrFileNotFound) ||
		errors.Is(err, workflow.ErrUnsupportedFormat) ||
		errors.Is(err, workflow.ErrNotFound) ||
		errors.Is(err, agent.ErrNotFound) {
		return exitInvalidDefinition
	}
	return exitRunFailed
}

// Execute runs the root command and exits with the mapped code.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		os.Exit(exitOK)
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(os.Stderr, "Error:", ee.err)
		}
		os.Exit(ee.code)
	}

	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(exitCodeFor(err))
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $WEFT_DATA_DIR/weft.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("dir", "", "definitions directory to load")
	rootCmd.PersistentFlags().String("db", "", "SQLite checkpoint database path (\":memory:\" for ephemeral)")

	_ = viper.BindPFlag("definitions.dir", rootCmd.PersistentFlags().Lookup("dir"))
	_ = viper.BindPFlag("database.path", rootCmd.PersistentFlags().Lookup("db"))
}
