package main

import (
	"fmt"
	"strings"

	"github.com/nikolayk812/storefront-cart/internal/attribute"
	"github.com/nikolayk812/storefront-cart/internal/domain"
	"github.com/spf13/cobra"
)

func newAttrsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attrs",
		Short: "Work with the key=value|key=value product parameters string",
	}

	cmd.AddCommand(newAttrsDecodeCmd(), newAttrsEncodeCmd(), newAttrsCategoryCmd())
	return cmd
}

func newAttrsDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <parameters>",
		Short: "Print the category and specs of a parameters string",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			category, specs := attribute.Split(args[0])
			if category != "" {
				fmt.Fprintf(out, "%s: %s\n", attribute.CategoryKey, category)
			}
			for _, s := range specs {
				fmt.Fprintf(out, "%s: %s\n", s.Key, s.Value)
			}
			return nil
		},
	}
}

func newAttrsEncodeCmd() *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "encode [key=value]...",
		Short: "Build a parameters string from key=value pairs",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries := make([]domain.Attribute, 0, len(args))
			for _, arg := range args {
				key, value, _ := strings.Cut(arg, "=")
				entries = append(entries, domain.NewAttribute(strings.TrimSpace(key), strings.TrimSpace(value)))
			}

			if incomplete, ok := attribute.Validate(entries); !ok {
				return fmt.Errorf("%d of %d entries miss a key or a value", incomplete, len(entries))
			}

			fmt.Fprintln(cmd.OutOrStdout(), attribute.Encode(entries, strings.TrimSpace(category)))
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "category written as the first entry")

	return cmd
}

func newAttrsCategoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "category <parameters>",
		Short: "Print only the category of a parameters string",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), attribute.ExtractCategory(args[0]))
			return nil
		},
	}
}
