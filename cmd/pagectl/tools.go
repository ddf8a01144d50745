package main

import (
	"bufio"
	"fmt"
	"path/filepath"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/cobra"

	"github.com/keithlinneman/pageman/internal/archive"
	"github.com/keithlinneman/pageman/internal/cryptoutil"
	"github.com/keithlinneman/pageman/internal/log"
)

// hashSecretCmd prints an argon2id hash suitable for the admin secret file.
func hashSecretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-secret",
		Short: "hash a secret read from stdin for use as the admin secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("reading secret: %w", err)
			}
			secret := strings.TrimSpace(line)
			if secret == "" {
				return fmt.Errorf("empty secret")
			}
			h, err := cryptoutil.HashArgon2(secret)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}
}

func trashCmd(a *app) *cobra.Command {
	var bucket, prefix string
	cmd := &cobra.Command{Use: "trash", Short: "work with archived trash entries"}
	pull := &cobra.Command{
		Use:   "pull <entry>",
		Short: "download an archived trash entry into the trash directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := ctxOf(cmd)
			if bucket == "" {
				return fmt.Errorf("--bucket is required")
			}
			awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
			if err != nil {
				return err
			}
			arch, err := archive.New(archive.Options{
				Logger:    log.Nop(),
				Bucket:    bucket,
				Prefix:    prefix,
				AWSConfig: awsCfg,
			})
			if err != nil {
				return err
			}
			if err := arch.Fetch(ctx, args[0], a.trashDir); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %s\n", filepath.Join(a.trashDir, args[0]))
			return nil
		},
	}
	pull.Flags().StringVar(&bucket, "bucket", envOr("PAGEMAN_TRASH_S3_BUCKET", ""), "S3 bucket holding trash archives")
	pull.Flags().StringVar(&prefix, "prefix", envOr("PAGEMAN_TRASH_S3_PREFIX", "pageman/trash"), "key prefix inside the bucket")
	cmd.AddCommand(pull)
	return cmd
}
