package guard

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the client-visible configuration. None of it is secret.
type Config struct {
	// Env selects an entry of BaseURLs. BaseURL wins when set.
	Env      string
	BaseURL  string
	BaseURLs map[string]string

	DashboardPaths   map[int]string
	AllowedRefLevels []int
	PublicRoutes     []string
	LoginPath        string

	HeartbeatInterval time.Duration
	SessionExpiry     time.Duration
	FetchTimeout      time.Duration
}

// DefaultConfig returns the stock routing layout.
func DefaultConfig() Config {
	return Config{
		Env: "development",
		BaseURLs: map[string]string{
			"development": "http://localhost:3003/@semantq/auth",
			"production":  "https://example.com/@semantq/auth",
		},
		DashboardPaths: map[int]string{
			1: "/dashboard",
			2: "/campus/admin",
			3: "/dashboard/superadmin",
		},
		AllowedRefLevels:  []int{1},
		PublicRoutes:      []string{"/login", "/signup", "/"},
		LoginPath:         "/login",
		HeartbeatInterval: 5 * time.Minute,
		SessionExpiry:     time.Hour,
		FetchTimeout:      10 * time.Second,
	}
}

// APIBaseURL resolves the server base URL for the configured environment.
func (c Config) APIBaseURL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return strings.TrimRight(c.BaseURLs[c.Env], "/")
}

// RefAllowed reports whether level may be granted through a signup link.
func (c Config) RefAllowed(level int) bool {
	for _, l := range c.AllowedRefLevels {
		if l == level {
			return true
		}
	}
	return false
}

// Validate checks that the config can drive a Controller.
func (c Config) Validate() error {
	var errs []string

	base := c.APIBaseURL()
	if base == "" {
		errs = append(errs, fmt.Sprintf("no base url for env %q", c.Env))
	} else if u, err := url.Parse(base); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("base url %q is not absolute", base))
	}

	valid := 0
	for level, path := range c.DashboardPaths {
		if level <= 0 {
			continue
		}
		if !strings.HasPrefix(path, "/") {
			errs = append(errs, fmt.Sprintf("dashboard path for level %d must start with /", level))
			continue
		}
		valid++
	}
	if valid == 0 {
		errs = append(errs, "at least one dashboard path is required")
	}
	if !strings.HasPrefix(c.LoginPath, "/") {
		errs = append(errs, "login_path must start with /")
	}
	if c.HeartbeatInterval <= 0 {
		errs = append(errs, "heartbeat_interval must be positive")
	}
	if c.SessionExpiry <= 0 {
		errs = append(errs, "session_expiry must be positive")
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, "fetch_timeout must be positive")
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

// fileConfig is the TOML layout. TOML keys are strings, so dashboard levels
// are parsed separately.
type fileConfig struct {
	Env               string            `toml:"env"`
	BaseURL           string            `toml:"base_url"`
	BaseURLs          map[string]string `toml:"base_urls"`
	DashboardPaths    map[string]string `toml:"dashboard_paths"`
	AllowedRefLevels  []int             `toml:"allowed_ref_levels"`
	PublicRoutes      []string          `toml:"public_routes"`
	LoginPath         string            `toml:"login_path"`
	HeartbeatInterval time.Duration     `toml:"heartbeat_interval"`
	SessionExpiry     time.Duration     `toml:"session_expiry"`
	FetchTimeout      time.Duration     `toml:"fetch_timeout"`
}

// LoadConfig reads a TOML file over DefaultConfig. Keys absent from the file
// keep their defaults; a dashboard_paths table replaces the default map.
func LoadConfig(path string) (Config, error) {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return Config{}, fmt.Errorf("decoding %s: %w", path, err)
	}
	cfg, err := fc.apply(DefaultConfig())
	if err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// ParseConfig is LoadConfig for an in-memory document.
func ParseConfig(doc string) (Config, error) {
	var fc fileConfig
	if _, err := toml.Decode(doc, &fc); err != nil {
		return Config{}, fmt.Errorf("decoding guard config: %w", err)
	}
	cfg, err := fc.apply(DefaultConfig())
	if err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (fc fileConfig) apply(cfg Config) (Config, error) {
	if fc.Env != "" {
		cfg.Env = fc.Env
	}
	if fc.BaseURL != "" {
		cfg.BaseURL = fc.BaseURL
	}
	for env, u := range fc.BaseURLs {
		cfg.BaseURLs[env] = u
	}
	if len(fc.DashboardPaths) > 0 {
		cfg.DashboardPaths = make(map[int]string, len(fc.DashboardPaths))
		for key, path := range fc.DashboardPaths {
			level, err := strconv.Atoi(strings.TrimSpace(key))
			if err != nil {
				return Config{}, fmt.Errorf("%w: dashboard level %q is not an integer", ErrInvalidConfig, key)
			}
			cfg.DashboardPaths[level] = path
		}
	}
	if fc.AllowedRefLevels != nil {
		cfg.AllowedRefLevels = fc.AllowedRefLevels
	}
	if fc.PublicRoutes != nil {
		cfg.PublicRoutes = fc.PublicRoutes
	}
	if fc.LoginPath != "" {
		cfg.LoginPath = fc.LoginPath
	}
	if fc.HeartbeatInterval != 0 {
		cfg.HeartbeatInterval = fc.HeartbeatInterval
	}
	if fc.SessionExpiry != 0 {
		cfg.SessionExpiry = fc.SessionExpiry
	}
	if fc.FetchTimeout != 0 {
		cfg.FetchTimeout = fc.FetchTimeout
	}
	return cfg, nil
}

var errNoWatchTarget = errors.New("guard: config path is empty")
