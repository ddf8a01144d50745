package cfg

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/keithlinneman/pageman/internal/log"
)

const EnvPrefix = "PAGEMAN_"

type App struct {
	LogJSON           bool
	LogLevel          string
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int

	HTTPPort  int
	AdminPort int

	EnablePprof     bool
	EnablePyroscope bool
	EnableTracing   bool
	PyroServer      string
	PyroTenantID    string
	OTLPEndpoint    string
	TraceSample     float64

	ContentDir          string
	TrashDir            string
	Timezone            string
	AdminSecretFile     string
	AdminSecretSSMParam string
	SecretSource        string
	SecretKMSStoreID    string
	TrashS3Bucket       string
	TrashS3Prefix       string

	MaxBodyBytes   int64
	RateLimitRPS   float64
	RateLimitBurst int
	AuthFailBurst  int
	TrustedOrigins string
	TrustedHops    int
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")

	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")

	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")

	fs.StringVar(&c.ContentDir, "content-dir", "pages", "directory holding one subdirectory per page")
	fs.StringVar(&c.TrashDir, "trash-dir", "trash", "directory deleted pages are moved into")
	fs.StringVar(&c.Timezone, "timezone", "UTC", "IANA zone version times are reported in; ids and trash prefixes are minted in UTC")
	fs.StringVar(&c.AdminSecretFile, "admin-secret-file", "pwd.secret", "file holding the admin secret (plain or argon2id hash)")
	fs.StringVar(&c.AdminSecretSSMParam, "admin-secret-ssm-param", "", "ssm parameter holding the admin secret; overrides admin-secret-file")
	fs.StringVar(&c.SecretSource, "secret-source", "local", "page secret randomness: local|kms")
	fs.StringVar(&c.SecretKMSStoreID, "secret-kms-store-id", "", "KMS custom key store id for GenerateRandom (optional)")
	fs.StringVar(&c.TrashS3Bucket, "trash-s3-bucket", "", "s3 bucket to archive trashed pages to (empty disables)")
	fs.StringVar(&c.TrashS3Prefix, "trash-s3-prefix", "pageman/trash", "s3 key prefix for trash archives")

	fs.Int64Var(&c.MaxBodyBytes, "max-body-bytes", 8<<20, "max request body size in bytes")
	fs.Float64Var(&c.RateLimitRPS, "rate-limit-rps", 20, "per-client request rate (0 disables)")
	fs.IntVar(&c.RateLimitBurst, "rate-limit-burst", 40, "per-client request burst")
	fs.IntVar(&c.AuthFailBurst, "auth-fail-burst", 5, "failed credentials allowed per client before throttling")
	fs.StringVar(&c.TrustedOrigins, "trusted-origins", "", "comma separated host[:port] origins allowed to make cross-origin API calls")
	fs.IntVar(&c.TrustedHops, "trusted-hops", 0, "number of trusted proxies in front of the server (X-Forwarded-For)")
}

// LoadDotEnv loads KEY=VALUE pairs from each existing file into the process
// environment. Variables already set win. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	var errs []error
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			errs = append(errs, fmt.Errorf("load %s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			_ = fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// Origins splits TrustedOrigins into trimmed non-empty entries.
func (c App) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.TrustedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Location resolves Timezone, defaulting to UTC when empty.
func (c App) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	// Ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	// Log levels
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}

	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	// grpc exporter wants host:port, no scheme
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	if c.IncludeErrorLinks {
		if c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64 {
			errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
		}
	}

	// Storage
	if strings.TrimSpace(c.ContentDir) == "" {
		errs = append(errs, fmt.Errorf("CONTENT_DIR is required"))
	}
	if strings.TrimSpace(c.TrashDir) == "" {
		errs = append(errs, fmt.Errorf("TRASH_DIR is required"))
	}
	if c.ContentDir != "" && c.ContentDir == c.TrashDir {
		errs = append(errs, fmt.Errorf("CONTENT_DIR and TRASH_DIR must differ (both %q)", c.ContentDir))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err))
	}

	// Secrets
	if c.AdminSecretFile == "" && c.AdminSecretSSMParam == "" {
		errs = append(errs, fmt.Errorf("one of ADMIN_SECRET_FILE or ADMIN_SECRET_SSM_PARAM is required"))
	}
	switch c.SecretSource {
	case "local", "kms":
	default:
		errs = append(errs, fmt.Errorf("invalid SECRET_SOURCE %q (must be local|kms)", c.SecretSource))
	}
	if c.TrashS3Bucket != "" && strings.TrimSpace(c.TrashS3Prefix) == "" {
		errs = append(errs, fmt.Errorf("TRASH_S3_PREFIX is required when TRASH_S3_BUCKET is set"))
	}

	// HTTP limits
	if c.MaxBodyBytes < 1 {
		errs = append(errs, fmt.Errorf("MAX_BODY_BYTES must be positive (got %d)", c.MaxBodyBytes))
	}
	if c.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS must be >= 0 (got %g)", c.RateLimitRPS))
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BURST must be >= 1 when rate limiting (got %d)", c.RateLimitBurst))
	}
	if c.AuthFailBurst < 1 {
		errs = append(errs, fmt.Errorf("AUTH_FAIL_BURST must be >= 1 (got %d)", c.AuthFailBurst))
	}
	if c.TrustedHops < 0 {
		errs = append(errs, fmt.Errorf("TRUSTED_HOPS must be >= 0 (got %d)", c.TrustedHops))
	}
	for _, o := range c.Origins() {
		if strings.Contains(o, "://") || strings.ContainsAny(o, "/ ") {
			errs = append(errs, fmt.Errorf("TRUSTED_ORIGINS entries must be host[:port] without scheme (got %q)", o))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
