package main

import (
	"github.com/spf13/cobra"
	errs "mpscraper/pkg/errors"
	"mpscraper/pkg/ui"
)

var searchCmd = &cobra.Command{
	Use:   "search <name>",
	Short: "Search official accounts by name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(nil)
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		cred, err := a.provider.GetCredential()
		if err != nil {
			return explain(errs.Wrap(errs.ErrorTypeAuthExpired, err, "no usable session"))
		}

		accounts, err := a.client.SearchAccount(ctx, cred, args[0])
		if err != nil {
			return explain(err)
		}
		ui.PrintAccounts(accounts)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
}
