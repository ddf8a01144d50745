package main

import (
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/keithlinneman/pageman/internal/pages"
)

func draftCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "draft", Short: "read and write the working draft"}

	var file string
	save := &cobra.Command{
		Use:     "save <page>",
		Short:   "replace the draft with the given content",
		Args:    cobra.ExactArgs(1),
		PreRunE: a.open,
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readContent(cmd, file)
			if err != nil {
				return err
			}
			return a.engine.SaveDraft(ctxOf(cmd), args[0], content)
		},
	}
	save.Flags().StringVarP(&file, "file", "f", "-", "content file, - for stdin")

	show := &cobra.Command{
		Use:     "show <page>",
		Short:   "print the draft",
		Args:    cobra.ExactArgs(1),
		PreRunE: a.open,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.engine.ReadDraft(ctxOf(cmd), args[0])
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
	cmd.AddCommand(save, show)
	return cmd
}

func publishCmd(a *app) *cobra.Command {
	var (
		file    string
		comment string
	)
	cmd := &cobra.Command{
		Use:     "publish <page>",
		Short:   "snapshot content as a new version and publish it",
		Args:    cobra.ExactArgs(1),
		PreRunE: a.open,
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readContent(cmd, file)
			if err != nil {
				return err
			}
			id, err := a.engine.Publish(ctxOf(cmd), args[0], content, comment)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "content file, - for stdin")
	cmd.Flags().StringVarP(&comment, "message", "m", "", "version comment")
	return cmd
}

func mark(b bool) string {
	if b {
		return "*"
	}
	return ""
}

func versionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "versions <page>",
		Short:   "show page state and version history, newest first",
		Args:    cobra.ExactArgs(1),
		PreRunE: a.open,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := ctxOf(cmd)
			st, err := a.engine.State(ctx, args[0])
			if err != nil {
				return err
			}
			hist, err := a.engine.History(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "page %s: draft %s, published %s, %d versions\n",
				st.Page, st.Draft, orDash(string(st.PublishedVersion)), st.Versions)

			table := tablewriter.NewWriter(out)
			table.SetHeader([]string{"Version", "Created", "Published", "Draft", "Comment"})
			for _, v := range hist {
				table.Append([]string{
					string(v.ID),
					v.CreatedAt.Format(time.RFC3339),
					mark(v.Published),
					mark(v.Draft),
					v.Comment,
				})
			}
			table.Render()
			return nil
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func versionArg(s string) (pages.VersionID, error) {
	return pages.ParseVersionID(s)
}

func restoreCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "restore <page> <version>",
		Short:   "publish an existing version without creating a new one",
		Args:    cobra.ExactArgs(2),
		PreRunE: a.open,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := versionArg(args[1])
			if err != nil {
				return err
			}
			return a.engine.RestoreToPublished(ctxOf(cmd), args[0], id)
		},
	}
}

func loadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "load <page> <version|published>",
		Short:   "copy a version or the published page into the draft",
		Args:    cobra.ExactArgs(2),
		PreRunE: a.open,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := pages.ParseSourceRef(args[1])
			if err != nil {
				return err
			}
			return a.engine.LoadToDraft(ctxOf(cmd), args[0], ref)
		},
	}
}

func versionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "version", Short: "inspect or remove a single version"}
	cmd.AddCommand(
		&cobra.Command{
			Use:     "show <page> <version>",
			Short:   "print a version's content",
			Args:    cobra.ExactArgs(2),
			PreRunE: a.open,
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := versionArg(args[1])
				if err != nil {
					return err
				}
				b, err := a.engine.ReadVersion(ctxOf(cmd), args[0], id)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(b)
				return err
			},
		},
		&cobra.Command{
			Use:     "delete <page> <version>",
			Short:   "delete a version, clearing any pointer that names it",
			Args:    cobra.ExactArgs(2),
			PreRunE: a.open,
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := versionArg(args[1])
				if err != nil {
					return err
				}
				return a.engine.DeleteVersion(ctxOf(cmd), args[0], id)
			},
		},
	)
	return cmd
}

func commentCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "comment <page> <version> <text>",
		Short:   "set a version comment; empty text removes it",
		Args:    cobra.ExactArgs(3),
		PreRunE: a.open,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := versionArg(args[1])
			if err != nil {
				return err
			}
			return a.engine.EditComment(ctxOf(cmd), args[0], id, args[2])
		},
	}
}
