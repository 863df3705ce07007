package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func actionsCMD(open opener) *cobra.Command {
	actions := &cobra.Command{
		Use:   "actions",
		Short: "Query the action log and review queue",
	}

	var session string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent actions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			lm, err := open()
			if err != nil {
				return err
			}
			defer lm.Close()

			out, err := lm.Audit().ListRecent(cmd.Context(), session, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
	list.Flags().StringVar(&session, "session", "", "only actions of this session")
	list.Flags().IntVar(&limit, "limit", 50, "maximum number of actions")

	pending := &cobra.Command{
		Use:   "pending",
		Short: "List actions waiting for review, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			lm, err := open()
			if err != nil {
				return err
			}
			defer lm.Close()

			out, err := lm.Audit().ListPendingReview(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
	pending.Flags().IntVar(&limit, "limit", 50, "maximum number of actions")

	var reviewer string
	review := &cobra.Command{
		Use:   "review <action-id>",
		Short: "Mark an action as reviewed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lm, err := open()
			if err != nil {
				return err
			}
			defer lm.Close()

			a, err := lm.Audit().MarkReviewed(cmd.Context(), args[0], reviewer)
			if err != nil {
				return err
			}
			return printJSON(cmd, a)
		},
	}
	review.Flags().StringVar(&reviewer, "reviewer", "", "name of the reviewer")
	_ = review.MarkFlagRequired("reviewer")

	var since time.Duration
	var top int
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Print action statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			lm, err := open()
			if err != nil {
				return err
			}
			defer lm.Close()

			var from *time.Time
			if since > 0 {
				t := time.Now().Add(-since)
				from = &t
			} else if since < 0 {
				return fmt.Errorf("--since must be positive")
			}
			s, err := lm.Audit().Stats(cmd.Context(), from, top)
			if err != nil {
				return err
			}
			return printJSON(cmd, s)
		},
	}
	stats.Flags().DurationVar(&since, "since", 0, "only count actions newer than this (e.g. 720h)")
	stats.Flags().IntVar(&top, "top", 10, "number of most used tools")

	compliance := &cobra.Command{
		Use:   "compliance",
		Short: "List compliance audit entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			lm, err := open()
			if err != nil {
				return err
			}
			defer lm.Close()

			out, err := lm.Audit().ListCompliance(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
	compliance.Flags().IntVar(&limit, "limit", 50, "maximum number of entries")

	actions.AddCommand(list, pending, review, stats, compliance)
	return actions
}
