package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/lunge-worker/internal/output"
	"github.com/wesleyorama2/lunge-worker/internal/params"
	"github.com/wesleyorama2/lunge-worker/internal/plugin"
	"github.com/wesleyorama2/lunge-worker/internal/tree"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a task bundle without running it",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("path")
		if path == "" {
			return fmt.Errorf("--path is required")
		}
		noColor, _ := cmd.Flags().GetBool("no-color")

		root, err := tree.LoadDocument(path)
		if err != nil {
			return err
		}

		store := params.NewStore()
		defer store.Close()

		env := &plugin.Env{
			VirtualUsers: 1,
			FilePath:     path,
			Store:        store,
			Shared:       plugin.NewShared(),
			Logger:       logger,
		}
		_, res := tree.Build(root, env, 0)

		output.NewConsole(cmd.OutOrStdout(), noColor).PrintValidation(res.Nodes, res.Failures)
		if !res.OK {
			return fmt.Errorf("plugin tree is invalid")
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().String("path", "", "Unpacked task bundle directory")
	validateCmd.Flags().Bool("no-color", false, "Disable colored output")
}
