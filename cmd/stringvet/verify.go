package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stringvet/stringvet/internal/cli"
	"github.com/stringvet/stringvet/internal/common"
	"github.com/stringvet/stringvet/internal/model"
	"github.com/stringvet/stringvet/internal/stream"
	"github.com/stringvet/stringvet/internal/verify"
)

func verifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify translations in paginated batches",
		Long: `Run quality verification over the selected file and language. Batches
are streamed from the service and accumulated into a run; issues that need
attention are saved locally for 'stringvet resolve'.`,
		RunE: runVerify,
	}

	// Flags
	cmd.Flags().Bool("include-reviewed", false, "Re-verify records already marked reviewed")
	cmd.Flags().Bool("auto-continue", true, "Request further batches automatically while more records remain")
	cmd.Flags().Bool("continue", false, "Resume the previous run from its saved offset")

	// Bind to viper
	_ = viper.BindPFlag("verify.include_reviewed", cmd.Flags().Lookup("include-reviewed"))
	_ = viper.BindPFlag("verify.auto_continue", cmd.Flags().Lookup("auto-continue"))
	_ = viper.BindPFlag("verify.continue", cmd.Flags().Lookup("continue"))

	return cmd
}

func runVerify(cmd *cobra.Command, _ []string) error {
	interrupts := cli.NewInterruptHandler(os.Stdout)
	ctx := interrupts.HandleInterrupts(cmd.Context(), true)

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

	cfg := verify.Config{
		IncludeReviewed: viper.GetBool("verify.include_reviewed"),
		AutoContinue:    viper.GetBool("verify.auto_continue"),
	}

	// A continuation extends the persisted run rather than starting a new
	// one, so issues still unresolved from its earlier batches stay part of
	// the latest run.
	var resumed *model.VerificationRun
	if viper.GetBool("verify.continue") {
		prev, err := runStore.LatestRun(ctx, fileID, language)
		if errors.Is(err, common.ErrNoRun) {
			return common.NewUserError("no previous run to continue; run 'stringvet verify' first", err)
		}
		if err != nil {
			return err
		}
		if !prev.HasMore {
			fmt.Println(cli.FormatSuccess("The previous run already covered every record."))
			return nil
		}
		resumed = prev
		cfg.IncludeReviewed = prev.IncludeReviewed
	}

	channel := stream.New[model.BatchVerificationResult](nil)
	renderer := cli.NewProgressRenderer(os.Stdout, "Verifying")
	channel.OnProgress(renderer.Update)

	orch, err := verify.New(client, channel, fileID, language, cfg)
	if err != nil {
		return err
	}
	defer orch.Close()

	fmt.Println(cli.FormatTitle(fmt.Sprintf("Verifying %s (%s)", fileID, language)))

	if resumed != nil {
		err = orch.Resume(ctx, resumed)
	} else {
		err = orch.StartReview(ctx, 0)
	}
	if err != nil {
		return err
	}
	runErr := orch.Wait(ctx)
	renderer.Finish()

	run := orch.Run()
	if err := runStore.SaveRun(ctx, run); err != nil {
		slog.Warn("Failed to persist verification run", "run_id", run.ID, "error", err)
	}

	if runErr != nil {
		fmt.Println(cli.FormatWarning(fmt.Sprintf("Stopped after %d batches; partial results were saved.", orch.Snapshot().Batches)))
		return runErr
	}

	fmt.Println(cli.RenderBox("Verification Results", formatRunSummary(run)))
	if len(run.Issues) > 0 {
		fmt.Println(cli.FormatInfo("Resolve issues with: stringvet resolve"))
	}
	if run.HasMore {
		fmt.Println(cli.FormatInfo("More records remain. Continue with: stringvet verify --continue"))
	}
	return nil
}

func formatRunSummary(run *model.VerificationRun) string {
	summary := fmt.Sprintf("%s Statistics:\n", cli.ChartIcon) +
		fmt.Sprintf("  • Passed: %d\n", run.Stats.Passed) +
		fmt.Sprintf("  • Needs attention: %d\n", run.Stats.Attention) +
		fmt.Sprintf("  • Auto-reviewed: %d\n", run.Stats.AutoReviewed)
	if run.SkippedUnchanged > 0 {
		summary += fmt.Sprintf("  • Skipped (unchanged): %d\n", run.SkippedUnchanged)
	}
	if run.TotalUnreviewed > 0 {
		summary += fmt.Sprintf("  • Still unreviewed: %d\n", run.TotalUnreviewed)
	}

	if len(run.Issues) == 0 {
		summary += "\n" + cli.FormatSuccess("No issues found.")
		return summary
	}

	summary += fmt.Sprintf("\n%s Issues (%d):\n", cli.SearchIcon, len(run.Issues))
	for i, issue := range run.Issues {
		if i == 5 {
			summary += fmt.Sprintf("  • ... and %d more\n", len(run.Issues)-5)
			break
		}
		summary += fmt.Sprintf("  • %s: %s\n", cli.BoldStyle.Render(issue.Key), firstIssueNote(issue))
	}
	return summary
}

func firstIssueNote(issue model.VerificationIssue) string {
	if len(issue.Issues) == 0 {
		return "needs attention"
	}
	return issue.Issues[0]
}
