package main

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	cfgPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "cartctl",
		Short: "Inspect and edit the storefront shopping cart",
		Long: `cartctl works on the same cart slot the storefront keeps per origin.

The slot lives in the backend selected by the config file or CART_* variables:
memory, a shared directory, Postgres or Redis. Every change is announced to
the other processes watching the same origin.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.cfgPath, "config", "c", "", "path to the YAML config file")

	root.AddCommand(
		newListCmd(opts),
		newAddCmd(opts),
		newSetCmd(opts),
		newRemoveCmd(opts),
		newClearCmd(opts),
		newTotalCmd(opts),
		newCountCmd(opts),
		newWatchCmd(opts),
		newCheckoutCmd(opts),
		newAttrsCmd(),
	)

	return root
}

// withApp builds the app for one command run and closes it afterwards.
func (o *rootOptions) withApp(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), o.cfgPath)
		if err != nil {
			return err
		}
		defer a.close()

		return fn(cmd, a, args)
	}
}
