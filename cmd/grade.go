package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/abhisek/radgrade/internal/engine"
	"github.com/abhisek/radgrade/internal/ui"
)

var gradeCmd = &cobra.Command{
	Use:   "grade <case-id> <report-file>",
	Short: "Grade a report file against a stored case",
	Long:  "Grade reads a report from a file (or stdin when the file is \"-\"), grades it against the case and prints the five pillars.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		imageRef, _ := cmd.Flags().GetString("image")
		asJSON, _ := cmd.Flags().GetBool("json")

		text, err := readReport(cmd.InOrStdin(), args[1])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		svc, err := buildServices(ctx, cmd)
		if err != nil {
			return err
		}
		defer svc.Close()

		run, err := svc.engine.Process(ctx, engine.Submission{
			CaseID:     args[0],
			ReportText: text,
			ImageRef:   imageRef,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(run.Report)
		}
		if run.Cached {
			fmt.Fprintln(out, "(cached)")
		}
		return ui.RenderReport(out, run.Report)
	},
}

func readReport(stdin io.Reader, path string) (string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read report: %w", err)
	}
	return string(data), nil
}

func init() {
	gradeCmd.Flags().String("image", "", "Image reference (defaults to the case image)")
	gradeCmd.Flags().Bool("json", false, "Print the report as JSON")
}
