package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tilecraft/dzgen/internal/pyramid"
)

var removeCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Delete a generated pyramid's descriptor and tile tree",
	Long: `Delete <dir>/<name>.<ext> and <dir>/<name>_files/ for a previously
generated pyramid. Removing a name that was never generated is a no-op.

Examples:
  # Remove photo.dzi and photo_files/ from the current directory
  dzgen remove photo

  # Remove from a specific output directory
  dzgen remove --dir ./out atlas`,
	Args: cobra.ExactArgs(1),
	RunE: runRemove,
}

func init() {
	rootCmd.AddCommand(removeCmd)

	removeCmd.Flags().String("ext", "dzi", "descriptor file extension")
	viper.BindPFlag("remove.ext", removeCmd.Flags().Lookup("ext"))
}

func runRemove(cmd *cobra.Command, args []string) error {
	name := args[0]

	gen := pyramid.New(pyramid.Options{
		Name: name,
		Dir:  viper.GetString("dir"),
		Ext:  viper.GetString("remove.ext"),
	}, nil)

	existed, err := gen.Remove()
	if err != nil {
		return err
	}

	if existed {
		fmt.Fprintf(cmd.ErrOrStderr(), "Removed existing output for %s\n", name)
	} else {
		fmt.Fprintf(cmd.ErrOrStderr(), "No output existed for %s\n", name)
	}
	return nil
}
