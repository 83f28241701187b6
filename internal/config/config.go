// Package config provides application configuration loaded from environment
// variables with defaults and validation. One binary runs every service, so
// the configuration is resolved in two steps: Load reads the environment and
// ForService applies the per-service defaults (port, database file, tracing
// service name) before validating.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Service names accepted by ForService and the CLI.
const (
	ServiceUser    = "user"
	ServicePost    = "post"
	ServiceComment = "comment"
	ServiceAttach  = "attach"
	ServiceGateway = "gateway"
)

// Services lists every runnable service in a stable order.
var Services = []string{ServiceUser, ServicePost, ServiceComment, ServiceAttach, ServiceGateway}

var defaultPorts = map[string]string{
	ServiceGateway: "8080",
	ServiceUser:    "8081",
	ServicePost:    "8082",
	ServiceComment: "8083",
	ServiceAttach:  "8084",
}

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME; defaults to "threads-<service>"
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects the relational store owned by the service.
type DBConfig struct {
	Driver string // sqlite|postgres
	Path   string // SQLite file; defaults to "<service>.db"
	DSN    string // Postgres DSN, required when Driver is postgres
}

// UpstreamConfig holds the base URLs of the sibling services.
type UpstreamConfig struct {
	UserURL    string
	PostURL    string
	CommentURL string
	AttachURL  string
	Timeout    time.Duration // per remote call
}

// ByService maps a public path segment ("users", "posts", ...) to its base URL.
func (u UpstreamConfig) ByService() map[string]string {
	return map[string]string{
		"users":    u.UserURL,
		"posts":    u.PostURL,
		"comments": u.CommentURL,
		"attaches": u.AttachURL,
	}
}

// StorageConfig holds attachment file storage settings.
type StorageConfig struct {
	UploadDir      string // root folder for date-partitioned files
	PublicURL      string // base of the URLs handed out for uploaded files
	MaxUploadBytes int64  // body cap for the upload endpoint
}

// Config holds all configuration values for the application.
type Config struct {
	Service string // user|post|comment|attach|gateway

	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	MaxBodyBytes      int64         // JSON body cap
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	DB       DBConfig
	Upstream UpstreamConfig
	Storage  StorageConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables and applies defaults.
// When SERVICE is set, the per-service defaults are applied and the result
// validated; otherwise call ForService once the service is known.
func Load() (Config, error) {
	cfg := Config{
		Service: strings.ToLower(strings.TrimSpace(getenv("SERVICE", ""))),

		// Server
		Port:              getenv("PORT", ""),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		MaxBodyBytes:      getint64("MAX_BODY_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		DB: DBConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:   getenv("DB_PATH", ""),
			DSN:    getenv("DB_DSN", ""),
		},
		Upstream: UpstreamConfig{
			UserURL:    trimURL(getenv("USER_SERVICE_URL", "http://localhost:8081")),
			PostURL:    trimURL(getenv("POST_SERVICE_URL", "http://localhost:8082")),
			CommentURL: trimURL(getenv("COMMENT_SERVICE_URL", "http://localhost:8083")),
			AttachURL:  trimURL(getenv("ATTACH_SERVICE_URL", "http://localhost:8084")),
			Timeout:    getdur("REMOTE_TIMEOUT", 10*time.Second),
		},
		Storage: StorageConfig{
			UploadDir:      getenv("UPLOAD_DIR", "uploads"),
			PublicURL:      trimURL(getenv("ATTACH_URL", "http://localhost:8080/api/v1/attaches")),
			MaxUploadBytes: getint64("MAX_UPLOAD_BYTES", 20<<20),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", ""),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	if cfg.Service == "" {
		return cfg, cfg.validateCommon()
	}
	return cfg.ForService(cfg.Service)
}

// ForService returns a copy of cfg bound to service, with per-service
// defaults filled in, validated.
func (cfg Config) ForService(service string) (Config, error) {
	service = strings.ToLower(strings.TrimSpace(service))
	port, ok := defaultPorts[service]
	if !ok {
		return cfg, fmt.Errorf("unknown service %q (want one of %s)", service, strings.Join(Services, ", "))
	}
	cfg.Service = service
	if strings.TrimSpace(cfg.Port) == "" {
		cfg.Port = port
	}
	if cfg.DB.Path == "" {
		cfg.DB.Path = service + ".db"
	}
	if cfg.OTEL.ServiceName == "" {
		cfg.OTEL.ServiceName = "threads-" + service
	}

	if err := cfg.validateCommon(); err != nil {
		return cfg, err
	}
	if service == ServiceGateway {
		return cfg, nil
	}
	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DB.DSN) == "" {
			return cfg, errors.New("DB_DSN is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if service == ServiceAttach && strings.TrimSpace(cfg.Storage.UploadDir) == "" {
		return cfg, errors.New("UPLOAD_DIR must not be empty")
	}
	return cfg, nil
}

func (cfg Config) validateCommon() error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if cfg.MaxBodyBytes <= 0 || cfg.Storage.MaxUploadBytes <= 0 {
		return errors.New("MAX_BODY_BYTES and MAX_UPLOAD_BYTES must be > 0")
	}
	if cfg.Upstream.Timeout <= 0 {
		return errors.New("REMOTE_TIMEOUT must be > 0")
	}
	if cfg.RateRPS < 0 {
		return errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getint64(k string, def int64) int64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}

func trimURL(u string) string {
	return strings.TrimRight(strings.TrimSpace(u), "/")
}
