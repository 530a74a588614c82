package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/radgrade/internal/store"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect recorded model calls and submission outcomes",
}

var eventsModelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List recent model invocations",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		kind, _ := cmd.Flags().GetString("kind")

		s, err := openStore(cmd)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer s.Close()

		events, err := s.EventRepo().QueryModelEvents(cmd.Context(), store.QueryOpts{Limit: limit})
		if err != nil {
			return fmt.Errorf("query events: %w", err)
		}
		if len(events) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No model events found.")
			return nil
		}

		t := newTable(cmd.OutOrStdout(), "ID", "Timestamp", "Kind", "Model", "Purpose", "In", "Out", "Ms", "OK")
		for _, e := range events {
			if kind != "" && e.Kind != kind {
				continue
			}
			ok := "✓"
			if !e.Success {
				ok = "✗"
			}
			t.AppendRow([]any{
				e.ID,
				e.Timestamp.Local().Format("2006-01-02 15:04:05"),
				e.Kind,
				truncate(e.Model+"@"+e.Version, 36),
				e.Purpose,
				e.InputTokens,
				e.OutputTokens,
				e.LatencyMs,
				ok,
			})
		}
		t.Render()
		return nil
	},
}

var eventsSubmissionsCmd = &cobra.Command{
	Use:   "submissions",
	Short: "List recent submission outcomes",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		s, err := openStore(cmd)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer s.Close()

		events, err := s.EventRepo().QuerySubmissionEvents(cmd.Context(), store.QueryOpts{Limit: limit})
		if err != nil {
			return fmt.Errorf("query events: %w", err)
		}
		if len(events) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No submissions recorded yet.")
			return nil
		}

		t := newTable(cmd.OutOrStdout(), "ID", "Timestamp", "Submission", "Case", "Outcome", "Score", "Ms", "Flags")
		for _, e := range events {
			flags := ""
			if e.Degraded {
				flags += "degraded "
			}
			if e.Partial {
				flags += "partial"
			}
			t.AppendRow([]any{
				e.ID,
				e.Timestamp.Local().Format("2006-01-02 15:04:05"),
				truncate(e.SubmissionID, 12),
				e.CaseID,
				e.Outcome,
				e.Score,
				e.LatencyMs,
				flags,
			})
		}
		t.Render()
		return nil
	},
}

func init() {
	eventsModelsCmd.Flags().IntP("limit", "n", 20, "Number of events to show")
	eventsModelsCmd.Flags().StringP("kind", "k", "", "Filter by model kind (image or text)")
	eventsSubmissionsCmd.Flags().IntP("limit", "n", 20, "Number of events to show")

	eventsCmd.AddCommand(eventsModelsCmd)
	eventsCmd.AddCommand(eventsSubmissionsCmd)
}
