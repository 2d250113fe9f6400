package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/nikolayk812/storefront-cart/internal/attribute"
	"github.com/nikolayk812/storefront-cart/internal/cart"
	"github.com/nikolayk812/storefront-cart/internal/checkout"
	"github.com/nikolayk812/storefront-cart/internal/domain"
	"github.com/nikolayk812/storefront-cart/internal/productapi"
	"github.com/spf13/cobra"
)

func newListCmd(opts *rootOptions) *cobra.Command {
	var images bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the cart lines and the total",
		Args:  cobra.NoArgs,
		RunE: opts.withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			c := a.store.Load(cmd.Context())
			printCart(cmd.OutOrStdout(), a, c, images)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&images, "images", false, "print the first image URL of every line")

	return cmd
}

func newAddCmd(opts *rootOptions) *cobra.Command {
	var qty int

	cmd := &cobra.Command{
		Use:   "add <product-id>",
		Short: "Add units of a product, bounded by its stock",
		Args:  cobra.ExactArgs(1),
		RunE: opts.withApp(func(cmd *cobra.Command, a *app, args []string) error {
			id, err := productapi.ParseID(args[0])
			if err != nil {
				return err
			}
			if qty < 1 {
				return fmt.Errorf("qty[%d] is less than 1", qty)
			}

			var c domain.Cart
			for range qty {
				if c, err = a.checkout.AddProduct(cmd.Context(), id); err != nil {
					return err
				}
			}

			item, _ := c.Find(id)
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d in cart\n", item.Name, item.Quantity)
			return nil
		}),
	}
	cmd.Flags().IntVarP(&qty, "qty", "n", 1, "number of units to add")

	return cmd
}

func newSetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <product-id> <quantity>",
		Short: "Change the quantity of a line, clamped to stock",
		Args:  cobra.ExactArgs(2),
		RunE: opts.withApp(func(cmd *cobra.Command, a *app, args []string) error {
			id, err := productapi.ParseID(args[0])
			if err != nil {
				return err
			}
			quantity, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("quantity[%s] is not a number", args[1])
			}

			c, err := a.checkout.SetQuantity(cmd.Context(), id, quantity)
			if err != nil {
				return err
			}

			item, ok := c.Find(id)
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "product %s is not in the cart\n", id)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d in cart\n", item.Name, item.Quantity)
			return nil
		}),
	}
}

func newRemoveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <product-id>",
		Short: "Remove a line from the cart",
		Args:  cobra.ExactArgs(1),
		RunE: opts.withApp(func(cmd *cobra.Command, a *app, args []string) error {
			id, err := productapi.ParseID(args[0])
			if err != nil {
				return err
			}

			c, err := a.store.Remove(cmd.Context(), id)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d lines left\n", c.Len())
			return nil
		}),
	}
}

func newClearCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		Args:  cobra.NoArgs,
		RunE: opts.withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			if err := a.store.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cart cleared")
			return nil
		}),
	}
}

func newTotalCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "total",
		Short: "Print the cart total",
		Args:  cobra.NoArgs,
		RunE: opts.withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			c := a.store.Load(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), formatTotal(a, c))
			return nil
		}),
	}
}

func newCountCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of distinct lines, as the header badge shows it",
		Args:  cobra.NoArgs,
		RunE: opts.withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			counter := cart.NewItemCounter(a.store, a.notifier)
			deactivate := counter.Activate(cmd.Context())
			defer deactivate()

			fmt.Fprintln(cmd.OutOrStdout(), counter.Value())
			return nil
		}),
	}
}

func newCheckoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "checkout",
		Short: "Place the order: decrement stock and clear the cart",
		Args:  cobra.NoArgs,
		RunE: opts.withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			out := cmd.OutOrStdout()

			receipt, err := a.checkout.Checkout(cmd.Context())
			if err != nil {
				var shortage *checkout.ShortageError
				if errors.As(err, &shortage) {
					for _, s := range shortage.Shortages {
						fmt.Fprintf(out, "not enough stock for %s\n", s)
					}
				}
				return err
			}

			fmt.Fprintf(out, "order placed: %d lines, %d units, total %s %s\n",
				receipt.Lines, receipt.Units, receipt.Total.StringFixed(2), currencyCode(a))
			return nil
		}),
	}
}

func printCart(w io.Writer, a *app, c domain.Cart, images bool) {
	if c.Len() == 0 {
		fmt.Fprintln(w, "cart is empty")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tQTY\tPRICE\tSUBTOTAL")
	for _, item := range c.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			item.ProductID,
			item.Name,
			attribute.ExtractCategory(item.Parameters),
			item.Quantity,
			item.Price.Amount.StringFixed(2),
			item.Subtotal().StringFixed(2))
	}
	_ = tw.Flush()

	if images {
		for _, item := range c.Items {
			if len(item.Images) == 0 {
				continue
			}
			fmt.Fprintf(w, "%s %s\n", item.ProductID, productapi.ImageURL(a.cfg.Images.BaseURL, item.Images[0]))
		}
	}

	fmt.Fprintln(w, formatTotal(a, c))
}

func formatTotal(a *app, c domain.Cart) string {
	return "total: " + a.store.Total(c).StringFixed(2) + " " + currencyCode(a)
}

func currencyCode(a *app) string {
	return strings.ToUpper(a.cfg.Cart.Currency)
}
