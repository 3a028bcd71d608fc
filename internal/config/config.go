package config

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	levelAuth "github.com/MrEthical07/levelAuth"
	"gopkg.in/yaml.v3"
)

// Config is the process configuration for the levelauth server.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Session  SessionConfig  `yaml:"session"`
	Cookie   CookieConfig   `yaml:"cookie"`
	Signup   SignupConfig   `yaml:"signup"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig contains HTTP listener settings.
type ServerConfig struct {
	Addr     string        `yaml:"addr"`
	BasePath string        `yaml:"base_path"`
	MaxBody  int64         `yaml:"max_body"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig    `yaml:"cors"`
}

// TimeoutConfig contains HTTP timeouts in seconds.
type TimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig lists the browser origins allowed to call with credentials.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// SessionConfig contains token signing settings. Lifetimes are in seconds.
type SessionConfig struct {
	Secret          string `yaml:"secret"`
	Issuer          string `yaml:"issuer"`
	TTL             int    `yaml:"ttl"`
	VerificationTTL int    `yaml:"verification_ttl"`
	ResetTTL        int    `yaml:"reset_ttl"`
}

// CookieConfig describes the auth_token cookie.
type CookieConfig struct {
	Name     string `yaml:"name"`
	Path     string `yaml:"path"`
	Domain   string `yaml:"domain"`
	Secure   bool   `yaml:"secure"`
	SameSite string `yaml:"same_site"`
}

// SignupConfig contains account creation settings.
type SignupConfig struct {
	AllowedRefLevels []int  `yaml:"allowed_ref_levels"`
	ConfirmURL       string `yaml:"confirm_url"`
	ResetURL         string `yaml:"reset_url"`
}

// DatabaseConfig contains SQLite settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// RedisConfig contains the reset token store connection.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// MQTTConfig contains the mail job broker connection. An empty broker logs
// mail instead of publishing it.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         int    `yaml:"qos"`
}

// InfluxDBConfig contains the audit event sink connection.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	// Audit writes audit events to the log as well as any other sink.
	Audit bool `yaml:"audit"`
}

// MetricsConfig contains metrics settings.
type MetricsConfig struct {
	Enabled           bool   `yaml:"enabled"`
	LatencyHistograms bool   `yaml:"latency_histograms"`
	Path              string `yaml:"path"`
}

// Load reads configuration from a YAML file and applies environment overrides.
//
// An empty path skips the file and starts from defaults. Environment variables
// take precedence over file values:
//   - LEVELAUTH_SESSION_SECRET overrides session.secret
//   - LEVELAUTH_DATABASE_PATH overrides database.path
//   - LEVELAUTH_REDIS_ADDR overrides redis.addr
//   - etc.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration without reading a file or the environment.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:    ":8080",
			MaxBody: 1 << 20,
			Timeouts: TimeoutConfig{
				Read:  15,
				Write: 15,
				Idle:  60,
			},
		},
		Session: SessionConfig{
			Issuer:          "levelauth",
			TTL:             3600,
			VerificationTTL: 86400,
			ResetTTL:        900,
		},
		Cookie: CookieConfig{
			Name:     "auth_token",
			Path:     "/",
			Secure:   true,
			SameSite: "lax",
		},
		Signup: SignupConfig{
			AllowedRefLevels: []int{1},
		},
		Database: DatabaseConfig{
			Path:        "./data/levelauth.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "lar",
		},
		MQTT: MQTTConfig{
			ClientID:    "levelauth",
			TopicPrefix: "levelauth/mail",
			QoS:         1,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

func applyEnvOverrides(cfg *Config) error {
	// Server
	if v := os.Getenv("LEVELAUTH_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("LEVELAUTH_SERVER_BASE_PATH"); v != "" {
		cfg.Server.BasePath = v
	}

	// Session - the secret should always come from the environment in production
	if v := os.Getenv("LEVELAUTH_SESSION_SECRET"); v != "" {
		cfg.Session.Secret = v
	}

	// Signup
	if v := os.Getenv("LEVELAUTH_SIGNUP_ALLOWED_REF_LEVELS"); v != "" {
		levels, err := levelAuth.ParseRefLevels(v)
		if err != nil {
			return fmt.Errorf("LEVELAUTH_SIGNUP_ALLOWED_REF_LEVELS: %w", err)
		}
		cfg.Signup.AllowedRefLevels = levels
	}

	// Database
	if v := os.Getenv("LEVELAUTH_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Redis
	if v := os.Getenv("LEVELAUTH_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("LEVELAUTH_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	// MQTT
	if v := os.Getenv("LEVELAUTH_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("LEVELAUTH_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("LEVELAUTH_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}

	// InfluxDB
	if v := os.Getenv("LEVELAUTH_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("LEVELAUTH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LEVELAUTH_AUDIT_LOG"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LEVELAUTH_AUDIT_LOG: %w", err)
		}
		cfg.Logging.Audit = on
	}
	if v := os.Getenv("LEVELAUTH_COOKIE_SECURE"); v != "" {
		secure, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LEVELAUTH_COOKIE_SECURE: %w", err)
		}
		cfg.Cookie.Secure = secure
	}

	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Addr == "" {
		errs = append(errs, "server.addr is required")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		errs = append(errs, "server.base_path must start with /")
	}
	if c.Server.MaxBody <= 0 {
		errs = append(errs, "server.max_body must be positive")
	}

	const minSecretLength = 32
	if c.Session.Secret == "" {
		errs = append(errs, "session.secret is required (set LEVELAUTH_SESSION_SECRET environment variable)")
	} else if len(c.Session.Secret) < minSecretLength {
		errs = append(errs, "session.secret must be at least 32 characters")
	}
	if c.Session.TTL <= 0 || c.Session.VerificationTTL <= 0 || c.Session.ResetTTL <= 0 {
		errs = append(errs, "session lifetimes must be positive")
	}

	if c.Cookie.Name == "" {
		errs = append(errs, "cookie.name is required")
	}
	if _, ok := parseSameSite(c.Cookie.SameSite); !ok {
		errs = append(errs, "cookie.same_site must be lax, strict, or none")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Redis.Addr == "" {
		errs = append(errs, "redis.addr is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Engine converts the process configuration into an engine configuration.
// Fields with no process setting keep their engine defaults.
func (c *Config) Engine() levelAuth.Config {
	out := levelAuth.DefaultConfig()

	out.JWT.Secret = []byte(c.Session.Secret)
	out.JWT.Issuer = c.Session.Issuer
	out.Session.SessionTTL = seconds(c.Session.TTL)
	out.Session.VerificationTTL = seconds(c.Session.VerificationTTL)
	out.Session.ResetTTL = seconds(c.Session.ResetTTL)

	out.Cookie.Name = c.Cookie.Name
	out.Cookie.Path = c.Cookie.Path
	out.Cookie.Domain = c.Cookie.Domain
	out.Cookie.Secure = c.Cookie.Secure
	out.Cookie.SameSite, _ = parseSameSite(c.Cookie.SameSite)

	out.Signup.AllowedRefLevels = append([]int(nil), c.Signup.AllowedRefLevels...)
	out.Signup.ConfirmURL = c.Signup.ConfirmURL
	out.Signup.ResetURL = c.Signup.ResetURL

	out.Reset.RedisPrefix = c.Redis.Prefix

	out.Audit.Enabled = c.InfluxDB.Enabled || c.Logging.Audit
	out.Metrics.Enabled = c.Metrics.Enabled
	out.Metrics.EnableLatencyHistograms = c.Metrics.LatencyHistograms

	return out
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func parseSameSite(v string) (http.SameSite, bool) {
	switch strings.ToLower(v) {
	case "", "lax":
		return http.SameSiteLaxMode, true
	case "strict":
		return http.SameSiteStrictMode, true
	case "none":
		return http.SameSiteNoneMode, true
	default:
		return http.SameSiteDefaultMode, false
	}
}
