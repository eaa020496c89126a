// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, storage, presence, the broadcast backbone, identity verification,
// websocket tuning, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

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
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects the relational store.
type DBConfig struct {
	Driver string // sqlite|postgres
	Path   string // SQLite file path
	URL    string // Postgres DSN
}

// RedisConfig configures the shared presence store and pub/sub backbone.
type RedisConfig struct {
	URL           string        // REDIS_URL, empty disables the backbone
	PresenceTTL   time.Duration // PRESENCE_TTL
	KeyPrefix     string        // PRESENCE_KEY_PREFIX
	FabricChannel string        // FABRIC_CHANNEL
}

// AuthConfig configures how handshake credentials are verified.
type AuthConfig struct {
	Mode         string // jwt|oidc
	JWTSecret    string
	JWTIssuer    string
	JWTAudience  string
	OIDCIssuer   string
	OIDCClientID string
}

// WSConfig tunes the websocket transport.
type WSConfig struct {
	MaxMessageBytes int64
	WriteWait       time.Duration
	PongWait        time.Duration
	SendBuffer      int
	InboundRPS      float64 // frames per second per connection
	InboundBurst    int
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test
	NodeID            string        // identifies this process on the backbone

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Realtime protocol
	ProtocolVersion int

	DB    DBConfig
	Redis RedisConfig
	Auth  AuthConfig
	WS    WSConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

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

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),
		NodeID:            getenv("NODE_ID", ""),

		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		ProtocolVersion: getint("PROTOCOL_VERSION", 1),

		DB: DBConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:   getenv("DB_PATH", "app.db"),
			URL:    getenv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			URL:           getenv("REDIS_URL", ""),
			PresenceTTL:   getdur("PRESENCE_TTL", 45*time.Second),
			KeyPrefix:     getenv("PRESENCE_KEY_PREFIX", "presence"),
			FabricChannel: getenv("FABRIC_CHANNEL", "realtime:fabric"),
		},
		Auth: AuthConfig{
			Mode:         strings.ToLower(getenv("AUTH_MODE", "jwt")),
			JWTSecret:    getenv("JWT_SECRET", ""),
			JWTIssuer:    getenv("JWT_ISSUER", ""),
			JWTAudience:  getenv("JWT_AUDIENCE", ""),
			OIDCIssuer:   getenv("OIDC_ISSUER_URL", ""),
			OIDCClientID: getenv("OIDC_CLIENT_ID", ""),
		},
		WS: WSConfig{
			MaxMessageBytes: int64(getint("WS_MAX_MESSAGE_BYTES", 64<<10)),
			WriteWait:       getdur("WS_WRITE_WAIT", 10*time.Second),
			PongWait:        getdur("WS_PONG_WAIT", 60*time.Second),
			SendBuffer:      getint("WS_SEND_BUFFER", 256),
			InboundRPS:      getfloat("WS_INBOUND_RPS", 20),
			InboundBurst:    getint("WS_INBOUND_BURST", 40),
		},

		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "afrolingo-realtime"),
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
	if cfg.DB.Driver == "postgresql" || cfg.DB.Driver == "pg" {
		cfg.DB.Driver = "postgres"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DB.URL) == "" {
			return cfg, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if cfg.Redis.PresenceTTL <= 0 {
		return cfg, errors.New("PRESENCE_TTL must be > 0")
	}
	if strings.TrimSpace(cfg.Redis.KeyPrefix) == "" || strings.TrimSpace(cfg.Redis.FabricChannel) == "" {
		return cfg, errors.New("PRESENCE_KEY_PREFIX and FABRIC_CHANNEL must not be empty")
	}
	switch cfg.Auth.Mode {
	case "jwt":
		if cfg.Auth.JWTSecret == "" {
			return cfg, errors.New("JWT_SECRET is required when AUTH_MODE=jwt")
		}
	case "oidc":
		if cfg.Auth.OIDCIssuer == "" {
			return cfg, errors.New("OIDC_ISSUER_URL is required when AUTH_MODE=oidc")
		}
	default:
		return cfg, errors.New("AUTH_MODE must be one of: jwt, oidc")
	}
	if cfg.ProtocolVersion < 1 {
		return cfg, errors.New("PROTOCOL_VERSION must be >= 1")
	}
	if cfg.WS.MaxMessageBytes <= 0 || cfg.WS.SendBuffer <= 0 {
		return cfg, errors.New("WS_MAX_MESSAGE_BYTES and WS_SEND_BUFFER must be > 0")
	}
	if cfg.WS.WriteWait <= 0 || cfg.WS.PongWait <= 0 {
		return cfg, errors.New("WS_WRITE_WAIT and WS_PONG_WAIT must be positive durations")
	}
	if cfg.WS.InboundRPS <= 0 || cfg.WS.InboundBurst < 1 {
		return cfg, errors.New("WS_INBOUND_RPS must be > 0 and WS_INBOUND_BURST >= 1")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// PingInterval is how often the server pings a websocket peer; it must be
// shorter than PongWait so a healthy peer never times out.
func (w WSConfig) PingInterval() time.Duration {
	return (w.PongWait * 9) / 10
}

// ---- helpers ----

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
