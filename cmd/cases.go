package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/radgrade/internal/store"
)

var casesCmd = &cobra.Command{
	Use:   "cases",
	Short: "Manage the clinical case library",
}

var casesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored cases",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer s.Close()

		cases, err := s.CaseRepo().List(cmd.Context())
		if err != nil {
			return fmt.Errorf("list cases: %w", err)
		}
		if len(cases) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No cases found. Import some with 'radgrade cases import'.")
			return nil
		}

		t := newTable(cmd.OutOrStdout(), "ID", "Image", "Patient", "Ground truth")
		for _, c := range cases {
			ids := make([]string, 0, len(c.GroundTruthFindings))
			for _, f := range c.GroundTruthFindings {
				ids = append(ids, f.CanonicalID)
			}
			gt := strings.Join(ids, ", ")
			if gt == "" {
				gt = "(no finding)"
			}
			t.AppendRow([]any{c.ID, c.ImageRef, c.PatientInfo, truncate(gt, 60)})
		}
		t.AppendFooter([]any{"", "", "TOTAL", len(cases)})
		t.Render()
		return nil
	},
}

var casesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a case and its ground-truth findings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer s.Close()

		c, err := s.CaseRepo().Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "ID:       %s\n", c.ID)
		fmt.Fprintf(out, "Image:    %s\n", c.ImageRef)
		if c.PatientInfo != "" {
			fmt.Fprintf(out, "Patient:  %s\n", c.PatientInfo)
		}
		if len(c.GroundTruthFindings) == 0 {
			fmt.Fprintln(out, "No ground-truth findings.")
			return nil
		}

		t := newTable(out, "Finding", "Polarity", "Region", "Type")
		for _, f := range c.GroundTruthFindings {
			t.AppendRow([]any{f.CanonicalID, f.Polarity, f.BodyRegion, f.PathologyType})
		}
		t.Render()
		return nil
	},
}

var casesImportCmd = &cobra.Command{
	Use:   "import <Data_Entry_2017.csv>",
	Short: "Import cases from the NIH chest X-ray metadata CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		selectedPath, _ := cmd.Flags().GetString("selected")

		var selected map[string]bool
		if selectedPath != "" {
			f, err := os.Open(selectedPath)
			if err != nil {
				return fmt.Errorf("open selection: %w", err)
			}
			selected, err = store.ReadSelected(f)
			f.Close()
			if err != nil {
				return fmt.Errorf("read selection: %w", err)
			}
		}

		v, err := loadVocabulary()
		if err != nil {
			return fmt.Errorf("load vocabulary: %w", err)
		}

		s, err := openStore(cmd)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer s.Close()

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open csv: %w", err)
		}
		defer f.Close()

		res, err := store.ImportNIH(cmd.Context(), s.CaseRepo(), f, selected, v)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Imported %d cases.\n", res.Imported)
		if len(res.UnknownLabels) > 0 {
			labels := make([]string, 0, len(res.UnknownLabels))
			for l := range res.UnknownLabels {
				labels = append(labels, l)
			}
			sort.Strings(labels)
			t := newTable(out, "Unmapped label", "Rows")
			for _, l := range labels {
				t.AppendRow([]any{l, res.UnknownLabels[l]})
			}
			t.Render()
		}
		return nil
	},
}

func init() {
	casesImportCmd.Flags().StringP("selected", "s", "", "Only import images listed in this file (one file name per line)")

	casesCmd.AddCommand(casesListCmd)
	casesCmd.AddCommand(casesShowCmd)
	casesCmd.AddCommand(casesImportCmd)
}
