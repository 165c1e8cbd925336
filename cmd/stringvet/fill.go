package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stringvet/stringvet/internal/cli"
	"github.com/stringvet/stringvet/internal/common"
)

func fillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fill <key>",
		Short: "Translate one key on demand",
		Long: `Request a fresh machine translation for a single key. The service
stores the result; the local snapshot is updated in place.`,
		Args: cobra.ExactArgs(1),
		RunE: runFill,
	}
}

func runFill(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	key := args[0]

	client, err := newClient()
	if err != nil {
		return err
	}
	st, err := fetchedStore(ctx, client)
	if err != nil {
		return err
	}

	rec, ok := st.Get(key)
	if !ok {
		return common.NewUserError(fmt.Sprintf("key %q not found in %s", key, st.Language()), common.ErrNotFound)
	}

	result, err := client.TranslateSingle(ctx, st.FileID(), st.Language(), key, rec.Source)
	if err != nil {
		return err
	}

	if err := st.UpdateLocal(key, result.Translation, result.State); err != nil {
		return err
	}

	content := fmt.Sprintf("  Source:      %s\n", rec.Source) +
		fmt.Sprintf("  Translation: %s\n", cli.SuccessStyle.Render(result.Translation)) +
		fmt.Sprintf("  State:       %s\n", cli.StyleState(string(result.State)))
	if result.Provider != "" {
		content += fmt.Sprintf("  Provider:    %s (quality %.2f)\n", result.Provider, result.QualityScore)
	}
	fmt.Println(cli.RenderBox(fmt.Sprintf("Translated %s", key), content))
	return nil
}
