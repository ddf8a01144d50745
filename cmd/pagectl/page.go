package main

import (
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func pageCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "page", Short: "create, delete and list pages"}
	cmd.AddCommand(
		&cobra.Command{
			Use:     "create <name>",
			Short:   "create a page; the name is sanitized",
			Args:    cobra.ExactArgs(1),
			PreRunE: a.open,
			RunE: func(cmd *cobra.Command, args []string) error {
				name, created, err := a.life.CreatePage(ctxOf(cmd), args[0])
				if err != nil {
					return err
				}
				if created {
					fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", name)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "exists %s\n", name)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:     "delete <name>",
			Short:   "move a page to the trash directory",
			Args:    cobra.ExactArgs(1),
			PreRunE: a.open,
			RunE: func(cmd *cobra.Command, args []string) error {
				entry, err := a.life.DeletePage(ctxOf(cmd), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "trashed %s as %s\n", entry.Page, entry.Name)
				return nil
			},
		},
		pageListCmd(a),
	)
	return cmd
}

func pageListCmd(a *app) *cobra.Command {
	var withSecrets bool
	cmd := &cobra.Command{
		Use:     "list",
		Short:   "list pages",
		Args:    cobra.NoArgs,
		PreRunE: a.open,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := ctxOf(cmd)
			names, err := a.life.ListPages(ctx)
			if err != nil {
				return err
			}
			if !withSecrets {
				for _, n := range names {
					fmt.Fprintln(cmd.OutOrStdout(), n)
				}
				return nil
			}
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Page", "Secret"})
			for _, n := range names {
				s, _, err := a.life.PageSecret(ctx, n)
				if err != nil {
					return err
				}
				table.Append([]string{n, s})
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().BoolVar(&withSecrets, "secrets", false, "include page secrets")
	return cmd
}

func secretCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "secret", Short: "manage per-page secrets"}
	cmd.AddCommand(
		&cobra.Command{
			Use:     "generate <page>",
			Short:   "generate and store a new page secret",
			Args:    cobra.ExactArgs(1),
			PreRunE: a.open,
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := a.life.GenerateSecret(ctxOf(cmd), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), s)
				return nil
			},
		},
		&cobra.Command{
			Use:     "reset <page>",
			Short:   "remove the page secret",
			Args:    cobra.ExactArgs(1),
			PreRunE: a.open,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.life.ResetSecret(ctxOf(cmd), args[0])
			},
		},
		&cobra.Command{
			Use:     "show <page>",
			Short:   "print the page secret",
			Args:    cobra.ExactArgs(1),
			PreRunE: a.open,
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := ctxOf(cmd)
				if ok, err := a.life.PageExists(ctx, args[0]); err != nil || !ok {
					if err == nil {
						err = fmt.Errorf("page %q not found", args[0])
					}
					return err
				}
				s, ok, err := a.life.PageSecret(ctx, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("page %q has no secret", args[0])
				}
				fmt.Fprintln(cmd.OutOrStdout(), s)
				return nil
			},
		},
	)
	return cmd
}
