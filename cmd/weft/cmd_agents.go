// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Inspect registered agents",
}

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List agents from the definitions directory",
	Long: `List every agent definition discovered in the definitions
directory, newest version of each.

Example:
  weft agents list --dir ./definitions`,
	Args: cobra.NoArgs,
	RunE: runAgentsList,
}

func init() {
	rootCmd.AddCommand(agentsCmd)
	agentsCmd.AddCommand(agentsListCmd)
	agentsListCmd.Flags().Bool("json", false, "print agents as JSON")
}

func runAgentsList(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	eng, closeEngine, err := buildEngine(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeEngine()

	if err := loadDefinitions(eng, cfg.Definitions.Dir); err != nil {
		return &exitError{code: exitCodeFor(err), err: err}
	}

	defs := eng.Agents().List()
	if len(defs) == 0 {
		fmt.Printf("No agents found in %s\n", cfg.Definitions.Dir)
		return nil
	}

	if asJSON {
		return printJSON(defs)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tVERSION\tROLE\tMODEL")
	for _, def := range defs {
		model := def.Model
		if model == "" {
			model = cfg.LLM.DefaultModel + " (default)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", def.Name, def.Version, def.Role, model)
	}
	return w.Flush()
}
