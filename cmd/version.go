package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// version is stamped with -ldflags "-X github.com/abhisek/radgrade/cmd.version=...".
var version = "(devel)"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build and vocabulary versions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		v, err := loadVocabulary()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "radgrade %s (%s)\nvocabulary %s\n", version, runtime.Version(), v.Version())
		return nil
	},
}
