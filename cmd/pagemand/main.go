package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/pageman/internal/archive"
	"github.com/keithlinneman/pageman/internal/auth"
	"github.com/keithlinneman/pageman/internal/cfg"
	"github.com/keithlinneman/pageman/internal/cryptoutil"
	"github.com/keithlinneman/pageman/internal/dispatch"
	"github.com/keithlinneman/pageman/internal/health"
	"github.com/keithlinneman/pageman/internal/httpmw"
	"github.com/keithlinneman/pageman/internal/httpserver"
	"github.com/keithlinneman/pageman/internal/log"
	"github.com/keithlinneman/pageman/internal/metrics"
	"github.com/keithlinneman/pageman/internal/opshttp"
	"github.com/keithlinneman/pageman/internal/otelx"
	"github.com/keithlinneman/pageman/internal/pagehttp"
	"github.com/keithlinneman/pageman/internal/pages"
	"github.com/keithlinneman/pageman/internal/prof"
	"github.com/keithlinneman/pageman/internal/ratelimit"
	v "github.com/keithlinneman/pageman/internal/version"
)

const component = "server"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(vi.String())
		return nil
	}

	warn := func(format string, args ...any) { fmt.Fprintf(os.Stderr, format+"\n", args...) }
	if err := cfg.LoadDotEnv(".env"); err != nil {
		warn("dotenv: %v", err)
	}
	cfg.FillFromEnv(flag.CommandLine, cfg.EnvPrefix, warn)
	if err := cfg.Validate(conf); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	lvl, _ := log.ParseLevel(conf.LogLevel)
	stLvl, _ := log.ParseLevel(conf.StacktraceLevel)
	lg, err := log.New(log.Options{
		App:               v.AppName,
		Component:         component,
		Version:           vi.Version,
		Level:             lvl,
		StacktraceLevel:   stLvl,
		JsonFormat:        conf.LogJSON,
		MaxErrorLinks:     conf.MaxErrorLinks,
		IncludeErrorLinks: conf.IncludeErrorLinks,
	})
	if err != nil {
		return fmt.Errorf("logger init error: %w", err)
	}
	defer func() { _ = lg.Sync() }()
	L := lg
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"go_version", vi.GoVersion,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"content_dir", conf.ContentDir,
		"trash_dir", conf.TrashDir,
		"timezone", conf.Timezone,
		"secret_source", conf.SecretSource,
		"trash_s3_bucket", conf.TrashS3Bucket,
		"enable_tracing", conf.EnableTracing,
		"enable_pyroscope", conf.EnablePyroscope,
	)

	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags:          prof.BuildTags(vi, component),
	})
	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, component, &vi)
	m.SetProfilingActive(err == nil && conf.EnablePyroscope)
	defer stopProf()

	// collector runs on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   v.AppName,
		Component: component,
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed, tracing disabled")
		shutdownOTEL = func(context.Context) error { return nil }
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	loc, _ := conf.Location()

	// AWS is only touched when a feature needs it
	var awsCfg aws.Config
	if conf.AdminSecretSSMParam != "" || conf.SecretSource == "kms" || conf.TrashS3Bucket != "" {
		if awsCfg, err = config.LoadDefaultConfig(ctx); err != nil {
			return fmt.Errorf("load AWS config: %w", err)
		}
	}

	var src auth.Source = auth.FileSource{Path: conf.AdminSecretFile}
	if conf.AdminSecretSSMParam != "" {
		src = auth.NewSSMSource(awsCfg, conf.AdminSecretSSMParam)
	}
	admin, err := auth.Load(ctx, src)
	if err != nil {
		L.Error(ctx, err, "admin secret unavailable", "source", src.String())
		return err
	}
	L.Info(ctx, "admin secret loaded", "source", src.String(), "hashed", admin.Hashed())
	go func() {
		_ = auth.NewWatcher(&auth.WatcherOptions{
			Logger:  L,
			Source:  src,
			Secret:  admin,
			Metrics: m,
		}).Run(ctx)
	}()

	store, err := pages.NewFSStore(conf.ContentDir, conf.TrashDir)
	if err != nil {
		L.Error(ctx, err, "content store init failed")
		return err
	}

	popts := []pages.Option{
		pages.WithLocation(loc),
		pages.WithObserver(m),
		pages.WithLogger(L),
		pages.WithTracer(otelx.Tracer("github.com/keithlinneman/pageman/internal/pages")),
	}
	lopts := []pages.LifecycleOption{pages.WithAdminCheck(admin.IsAdmin)}
	if conf.SecretSource == "kms" {
		lopts = append(lopts, pages.WithSecretGenerator(
			cryptoutil.NewKMSSecrets(kms.NewFromConfig(awsCfg), conf.SecretKMSStoreID, pages.SecretBytes),
		))
	}
	if conf.TrashS3Bucket != "" {
		arch, err := archive.New(archive.Options{
			Logger:    L,
			Bucket:    conf.TrashS3Bucket,
			Prefix:    conf.TrashS3Prefix,
			AWSConfig: awsCfg,
		})
		if err != nil {
			return err
		}
		lopts = append(lopts, pages.WithTrashArchiver(arch))
	}

	engine := pages.NewEngine(store, popts...)
	life := pages.NewLifecycle(store, popts, lopts...)
	disp := dispatch.New(dispatch.Options{
		Authorizer: auth.NewAuthorizer(admin, life),
		Engine:     engine,
		Lifecycle:  life,
		Logger:     L,
		Denials:    m,
	})

	api := pagehttp.NewAPI(pagehttp.Options{
		Dispatcher:  disp,
		Engine:      engine,
		Lifecycle:   life,
		Logger:      L,
		Throttle:    ratelimit.NewFailureThrottle(ctx, ratelimit.WithRate(1.0/6, conf.AuthFailBurst)),
		OnThrottled: m.IncAuthThrottled,
	})
	site := pagehttp.NewSite(engine, L)

	var rateLimitMW httpmw.Middleware
	if conf.RateLimitRPS > 0 {
		limiter := ratelimit.New(ctx, ratelimit.WithRate(conf.RateLimitRPS, conf.RateLimitBurst))
		limiter.OnDenied = func(string) { m.IncRateLimitDenied() }
		limiter.OnFirstDenied = func(ip string) { L.Warn(ctx, "rate limit triggered", "ip", ip) }
		rateLimitMW = limiter.Middleware
	}

	var gate health.ShutdownGate
	readiness := health.All(gate.Probe(), health.DirWritable("content", conf.ContentDir))

	siteStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger: L,
		Port:   conf.HTTPPort,
		Routes: func(r chi.Router) {
			api.RegisterRoutes(r)
			site.RegisterRoutes(r)
		},
		PagePrefix:   pagehttp.SitePrefix,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		MaxBodyBytes: conf.MaxBodyBytes,
		ClientIP:     httpmw.ClientIPOptions{TrustedHops: conf.TrustedHops},
		CrossOrigin: &httpmw.CrossOriginOptions{
			TrustedOrigins: conf.Origins(),
			OnReject:       m.IncCrossOriginRejected,
		},
		RateLimitMW:  rateLimitMW,
		MetricsMW:    m.Middleware,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start http listener")
		return err
	}
	defer func() { _ = siteStop(context.Background()) }()

	opsStop, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:        conf.AdminPort,
		Metrics:     m.Handler(),
		EnablePprof: conf.EnablePprof,
		Health:      health.Fixed(true, ""),
		Readiness:   readiness,
		OnPanic:     m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		return err
	}
	defer func() { _ = opsStop(context.Background()) }()

	if err := notifySystemd(); err != nil {
		L.Debug(ctx, "systemd notify skipped", "reason", err.Error())
	}

	<-ctx.Done()
	stop()
	L.Info(context.Background(), "shutdown signal received")

	gate.Set("draining")
	drain(L, 15*time.Second)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := siteStop(shutdownCtx); err != nil {
		L.Error(shutdownCtx, err, "http server shutdown")
	}
	if err := opsStop(shutdownCtx); err != nil {
		L.Error(shutdownCtx, err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(shutdownCtx, err, "otel shutdown")
	}
	L.Info(context.Background(), "shutdown complete")
	return nil
}

// drain waits for load balancers to see the failing readiness probe. A
// second signal skips the wait.
func drain(L log.Logger, d time.Duration) {
	L.Info(context.Background(), "draining", "seconds", d.Seconds())
	force := make(chan os.Signal, 1)
	signal.Notify(force, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(force)
	select {
	case <-time.After(d):
	case <-force:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
}

func notifySystemd() error {
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify: %w", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		return fmt.Errorf("systemd notify: %w", err)
	}
	return nil
}
