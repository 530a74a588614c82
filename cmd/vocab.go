package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/radgrade/internal/vocab"
)

var vocabCmd = &cobra.Command{
	Use:   "vocab",
	Short: "Inspect the canonical finding vocabulary",
}

var vocabShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List vocabulary entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := loadVocabulary()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Vocabulary %s (%d entries)\n", v.Version(), v.Len())
		t := newTable(out, "ID", "Name", "Criticality", "Region", "Synonyms")
		for _, e := range v.Entries() {
			t.AppendRow([]any{e.ID, e.Name, e.Criticality, e.BodyRegion, truncate(strings.Join(e.Synonyms, ", "), 50)})
		}
		t.Render()
		return nil
	},
}

var vocabValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a YAML vocabulary file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := vocab.LoadFile(args[0], cfg.Scoring.DefaultCriticality)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok, version %s, %d entries, %d terms\n",
			args[0], v.Version(), v.Len(), len(v.Terms()))
		return nil
	},
}

func init() {
	vocabCmd.AddCommand(vocabShowCmd)
	vocabCmd.AddCommand(vocabValidateCmd)
}
