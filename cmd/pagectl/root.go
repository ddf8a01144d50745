package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/keithlinneman/pageman/internal/auth"
	"github.com/keithlinneman/pageman/internal/log"
	"github.com/keithlinneman/pageman/internal/pages"
	"github.com/keithlinneman/pageman/internal/version"
)

// app holds flags and the engine opened from them.
type app struct {
	contentDir      string
	trashDir        string
	timezone        string
	adminSecretFile string
	verbose         bool

	store  *pages.FSStore
	engine *pages.Engine
	life   *pages.Lifecycle
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "pagectl",
		Short: "page versioning and publishing tool",
		Example: `pagectl page create about
pagectl publish about -f about.html -m "first cut"
pagectl versions about
pagectl restore about 2024-05-01_10-00-00
pagectl load about published`,
		Version:       version.Get().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.contentDir, "content-dir", envOr("PAGEMAN_CONTENT_DIR", "pages"), "directory holding one subdirectory per page")
	pf.StringVar(&a.trashDir, "trash-dir", envOr("PAGEMAN_TRASH_DIR", "trash"), "directory deleted pages are moved into")
	pf.StringVar(&a.timezone, "timezone", envOr("PAGEMAN_TIMEZONE", "UTC"), "IANA zone version times are shown in; ids are minted in UTC")
	pf.StringVar(&a.adminSecretFile, "admin-secret-file", envOr("PAGEMAN_ADMIN_SECRET_FILE", ""), "admin secret file; generated page secrets never collide with it")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "log engine operations to stderr")

	root.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})
	root.CompletionOptions.HiddenDefaultCmd = true
	cobra.EnableCommandSorting = false

	root.AddCommand(
		pageCmd(a),
		secretCmd(a),
		draftCmd(a),
		publishCmd(a),
		versionsCmd(a),
		restoreCmd(a),
		loadCmd(a),
		versionCmd(a),
		commentCmd(a),
		hashSecretCmd(),
		trashCmd(a),
	)
	return root
}

// open builds the engine from flags. Commands that touch pages call it from
// PreRunE.
func (a *app) open(cmd *cobra.Command, _ []string) error {
	loc, err := time.LoadLocation(a.timezone)
	if err != nil {
		return err
	}
	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelInfo
	}
	L, err := log.New(log.Options{
		App:       version.AppName,
		Component: "pagectl",
		Level:     level,
		Writer:    cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}

	if a.store, err = pages.NewFSStore(a.contentDir, a.trashDir); err != nil {
		return err
	}
	opts := []pages.Option{pages.WithLocation(loc), pages.WithLogger(L)}
	var lopts []pages.LifecycleOption
	if a.adminSecretFile != "" {
		admin, err := auth.Load(cmd.Context(), auth.FileSource{Path: a.adminSecretFile})
		if err != nil {
			return err
		}
		lopts = append(lopts, pages.WithAdminCheck(admin.IsAdmin))
	}
	a.engine = pages.NewEngine(a.store, opts...)
	a.life = pages.NewLifecycle(a.store, opts, lopts...)
	return nil
}

func ctxOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// readContent reads path, or stdin for "" and "-".
func readContent(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}
