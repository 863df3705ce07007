package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func memoryCMD(open opener) *cobra.Command {
	mem := &cobra.Command{
		Use:   "memory",
		Short: "Inspect and maintain the memory store",
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Print memory statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			lm, err := open()
			if err != nil {
				return err
			}
			defer lm.Close()

			s, err := lm.Memory().GetStats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, s)
		},
	}

	consolidate := &cobra.Command{
		Use:   "consolidate",
		Short: "Remove near-duplicate memories",
		RunE: func(cmd *cobra.Command, args []string) error {
			lm, err := open()
			if err != nil {
				return err
			}
			defer lm.Close()

			removed, err := lm.Memory().Consolidate(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d duplicate memories\n", removed)
			return nil
		},
	}

	forget := &cobra.Command{
		Use:   "forget",
		Short: "Remove old, unimportant and rarely used memories",
		RunE: func(cmd *cobra.Command, args []string) error {
			lm, err := open()
			if err != nil {
				return err
			}
			defer lm.Close()

			removed, err := lm.Memory().Forget(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "forgot %d memories\n", removed)
			return nil
		},
	}

	prefs := &cobra.Command{
		Use:   "preferences",
		Short: "List learned preferences",
		RunE: func(cmd *cobra.Command, args []string) error {
			lm, err := open()
			if err != nil {
				return err
			}
			defer lm.Close()

			p, err := lm.Memory().Preferences(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, p)
		},
	}

	mem.AddCommand(stats, consolidate, forget, prefs)
	return mem
}
