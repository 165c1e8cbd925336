package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stringvet/stringvet/internal/cli"
	"github.com/stringvet/stringvet/internal/common"
)

func reviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "review <key>",
		Short: "Review one translation on demand",
		Long: `Ask the service to review a single key's current translation and print
its findings and suggestions without changing anything.`,
		Args: cobra.ExactArgs(1),
		RunE: runReview,
	}
}

func runReview(cmd *cobra.Command, args []string) error {
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

	review, err := client.ReviewSingle(ctx, st.FileID(), st.Language(), key, rec.Source, rec.Translation)
	if err != nil {
		return err
	}

	content := fmt.Sprintf("  Source:      %s\n", rec.Source) +
		fmt.Sprintf("  Translation: %s\n", rec.Translation)

	if len(review.Issues) == 0 {
		content += "\n" + cli.FormatSuccess("No issues found.")
		fmt.Println(cli.RenderBox(fmt.Sprintf("Review: %s", key), content))
		return nil
	}

	content += fmt.Sprintf("\n%s Findings:\n", cli.SearchIcon)
	for _, note := range review.Issues {
		content += fmt.Sprintf("  • %s\n", note)
	}
	if len(review.Suggestions) > 0 {
		content += fmt.Sprintf("\n%s Suggestions:\n", cli.PenIcon)
		for _, s := range review.Suggestions {
			content += fmt.Sprintf("  • %s\n", cli.SuccessStyle.Render(s.Text))
			if s.Explanation != "" {
				content += fmt.Sprintf("    %s\n", cli.SubtleStyle.Render(s.Explanation))
			}
		}
	}

	fmt.Println(cli.RenderBox(fmt.Sprintf("Review: %s", key), content))
	return nil
}
