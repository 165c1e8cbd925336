package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stringvet/stringvet/internal/cli"
	"github.com/stringvet/stringvet/internal/common"
	"github.com/stringvet/stringvet/internal/model"
	"github.com/stringvet/stringvet/internal/resolve"
)

func resolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve issues from the last verification run",
		Long: `Walk through the issues saved by 'stringvet verify' and apply, dismiss,
or flag each one. Bulk flags resolve every issue with one action instead.`,
		RunE: runResolve,
	}

	// Flags
	cmd.Flags().Bool("apply-all", false, "Apply every suggested fix without prompting")
	cmd.Flags().Bool("dismiss-all", false, "Dismiss every issue without prompting")
	cmd.Flags().Bool("flag-all", false, "Flag every issue without prompting")

	// Bind to viper
	_ = viper.BindPFlag("resolve.apply_all", cmd.Flags().Lookup("apply-all"))
	_ = viper.BindPFlag("resolve.dismiss_all", cmd.Flags().Lookup("dismiss-all"))
	_ = viper.BindPFlag("resolve.flag_all", cmd.Flags().Lookup("flag-all"))

	return cmd
}

func runResolve(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	client, err := newClient()
	if err != nil {
		return err
	}
	fileID, language, err := fileAndLanguage()
	if err != nil {
		return err
	}
	runStore, err := openRunStore()
	if err != nil {
		return err
	}
	defer func() {
		if err := runStore.Close(); err != nil {
			slog.Warn("Failed to close run storage", "error", err)
		}
	}()

	run, err := runStore.LatestRun(ctx, fileID, language)
	if errors.Is(err, common.ErrNoRun) {
		return common.NewUserError("no verification run found; run 'stringvet verify' first", err)
	}
	if err != nil {
		return err
	}
	if len(run.Issues) == 0 {
		fmt.Println(cli.FormatSuccess("No outstanding issues."))
		return nil
	}

	st, err := fetchedStore(ctx, client)
	if err != nil {
		return err
	}
	resolver := resolve.New(st, runStore)

	if action, ok := bulkAction(); ok {
		return runBulkResolve(ctx, resolver, run, action, st)
	}
	return runInteractiveResolve(ctx, resolver, run, st)
}

// bulkAction maps the bulk flags to one action; at most one may be set.
func bulkAction() (resolve.Action, bool) {
	switch {
	case viper.GetBool("resolve.apply_all"):
		return resolve.ActionApply, true
	case viper.GetBool("resolve.dismiss_all"):
		return resolve.ActionDismiss, true
	case viper.GetBool("resolve.flag_all"):
		return resolve.ActionFlag, true
	}
	return "", false
}

func runBulkResolve(ctx context.Context, resolver *resolve.Resolver, run *model.VerificationRun, action resolve.Action, st storeCounter) error {
	total := len(run.Issues)
	err := resolver.ResolveAll(ctx, action, run)
	resolved := total - len(run.Issues)
	if err != nil {
		fmt.Println(cli.FormatWarning(fmt.Sprintf("Resolved %d of %d issues before failing.", resolved, total)))
		return err
	}

	fmt.Println(cli.FormatSuccess(fmt.Sprintf("Resolved %d issues.", resolved)))
	printCounts(st.Counts())
	return nil
}

func runInteractiveResolve(ctx context.Context, resolver *resolve.Resolver, run *model.VerificationRun, st storeCounter) error {
	prompter := cli.NewIssuePrompter(os.Stdin, os.Stdout)

	// Iterate a snapshot; successful resolutions mutate run.Issues.
	issues := make([]model.VerificationIssue, len(run.Issues))
	copy(issues, run.Issues)
	total := len(issues)

	for i, issue := range issues {
		decision, err := prompter.ResolveIssue(ctx, i, total, issue)
		if err != nil {
			return err
		}

		var action resolve.Action
		switch decision {
		case cli.DecisionApply:
			action = resolve.ActionApply
		case cli.DecisionDismiss:
			action = resolve.ActionDismiss
		case cli.DecisionFlag:
			action = resolve.ActionFlag
		case cli.DecisionSkip:
			continue
		case cli.DecisionQuit:
			fmt.Println(cli.FormatInfo(fmt.Sprintf("Stopping with %d issues left.", len(run.Issues))))
			return nil
		}

		if err := resolver.Do(ctx, action, run, issue); err != nil {
			fmt.Println(cli.FormatError(fmt.Sprintf("Failed to %s %s: %v", action, issue.Key, err)))
			continue
		}
		fmt.Println(cli.FormatSuccess(fmt.Sprintf("%s: %s", issue.Key, action)))
	}

	fmt.Println(cli.FormatSuccess(fmt.Sprintf("Done. %d issues remaining.", len(run.Issues))))
	printCounts(st.Counts())
	return nil
}

// storeCounter is the slice of the store the resolve command reads back.
type storeCounter interface {
	Counts() model.TabCounts
}

func printCounts(counts model.TabCounts) {
	fmt.Println(cli.SubtleStyle.Render(fmt.Sprintf(
		"Untranslated %d · Needs review %d · Flagged %d · Total %d",
		counts.Untranslated, counts.NeedsReview, counts.Flagged, counts.Total)))
}
