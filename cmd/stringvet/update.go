package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stringvet/stringvet/internal/cli"
	"github.com/stringvet/stringvet/internal/model"
)

func updateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <key> <translation>",
		Short: "Save a translation for one key",
		Args:  cobra.ExactArgs(2),
		RunE:  runUpdate,
	}

	cmd.Flags().String("state", string(model.StateReviewed), "State to record with the translation")
	_ = viper.BindPFlag("update.state", cmd.Flags().Lookup("state"))

	return cmd
}

func runUpdate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	key, translation := args[0], args[1]

	state, err := model.ParseState(viper.GetString("update.state"))
	if err != nil {
		return err
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	st, err := fetchedStore(ctx, client)
	if err != nil {
		return err
	}

	if err := st.Save(ctx, key, translation, state); err != nil {
		return err
	}

	fmt.Println(cli.FormatSuccess(fmt.Sprintf("Saved %s as %s", key, cli.StyleState(string(state)))))
	printCounts(st.Counts())
	return nil
}
