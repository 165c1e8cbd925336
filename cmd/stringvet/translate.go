package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stringvet/stringvet/internal/cli"
	"github.com/stringvet/stringvet/internal/common"
	"github.com/stringvet/stringvet/internal/model"
	"github.com/stringvet/stringvet/internal/stream"
)

func translateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "translate [language...]",
		Short: "Run a bulk translation job",
		Long: `Start a bulk translation job for the selected file and follow its
progress until completion. With no arguments, the configured target
language is translated.`,
		RunE: runTranslate,
	}
}

func runTranslate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	client, err := newClient()
	if err != nil {
		return err
	}
	fileID := viper.GetString("file")
	if fileID == "" {
		return common.NewUserError(
			"no localization file selected; set --file or STRINGVET_FILE",
			common.ErrMissingConfig)
	}

	languages := args
	if len(languages) == 0 {
		if lang := viper.GetString("language"); lang != "" {
			languages = []string{lang}
		}
	}

	jobID, err := client.StartTranslation(ctx, fileID, languages)
	if err != nil {
		return err
	}
	slog.Info("Translation job started", "job_id", jobID, "languages", languages)

	channel := stream.New[model.TranslationJobResult](nil)
	renderer := cli.NewProgressRenderer(os.Stdout, "Translating")
	channel.OnProgress(renderer.Update)

	term, err := channel.Connect(ctx, client.StreamURL(model.JobTranslate, jobID), func(model.TranslationJobResult) {})
	if err != nil {
		return err
	}
	<-term
	renderer.Finish()

	result := channel.Result()
	if result == nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		return channel.Err()
	}

	fmt.Println(cli.RenderBox("Translation Complete", formatTranslationSummary(result)))
	return nil
}

func formatTranslationSummary(result *model.TranslationJobResult) string {
	summary := fmt.Sprintf("%s Languages processed: %d\n", cli.ChartIcon, len(result.LanguagesProcessed))
	for _, lang := range result.LanguagesProcessed {
		stats := result.StatsByLanguage[lang]
		line := fmt.Sprintf("  %s: %d translated", lang, stats.Translated)
		if stats.Failed > 0 {
			line += cli.ErrorStyle.Render(fmt.Sprintf(", %d failed", stats.Failed))
		}
		if stats.Skipped > 0 {
			line += cli.SubtleStyle.Render(fmt.Sprintf(", %d skipped", stats.Skipped))
		}
		summary += line + "\n"
	}
	return summary
}
