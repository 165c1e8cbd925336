package main

import (
	"fmt"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stringvet/stringvet/internal/cli"
	"github.com/stringvet/stringvet/internal/model"
	"github.com/stringvet/stringvet/internal/store"
)

func listCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List translations for the selected file and language",
		RunE:  runList,
	}

	cmd.Flags().String("state", "", "Only show records in this state (new, translated, needs_review, reviewed, flagged, stale, not_translated)")
	_ = viper.BindPFlag("list.state", cmd.Flags().Lookup("state"))

	return cmd
}

func runList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	client, err := newClient()
	if err != nil {
		return err
	}
	fileID, language, err := fileAndLanguage()
	if err != nil {
		return err
	}

	var filter model.TranslationState
	if raw := viper.GetString("list.state"); raw != "" {
		filter, err = model.ParseState(raw)
		if err != nil {
			return err
		}
	}

	st, err := store.New(client, fileID, language)
	if err != nil {
		return err
	}
	if err := st.Fetch(ctx, filter); err != nil {
		return err
	}

	records := st.Records()
	if len(records) == 0 {
		fmt.Println(cli.FormatInfo("No records match."))
		return nil
	}

	fmt.Println(cli.FormatTitle(fmt.Sprintf("%s (%s)", fileID, language)))
	subtitle := fmt.Sprintf("%d records", len(records))
	if filter != "" {
		subtitle = fmt.Sprintf("%d records in state %s", len(records), filter)
	}
	fmt.Println(cli.SubtitleStyle.Render(subtitle))
	header := fmt.Sprintf("%-30s %-14s %-30s %s", "KEY", "STATE", "SOURCE", "TRANSLATION")
	fmt.Println(cli.TableHeaderStyle.Render(header))
	for _, rec := range records {
		fmt.Printf("%-30s %-14s %-30s %s\n",
			truncate(rec.Key, 30),
			cli.StyleState(string(rec.State)),
			truncate(rec.Source, 30),
			truncate(rec.Translation, 40))
	}

	fmt.Println()
	printCounts(st.Counts())
	return nil
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}
