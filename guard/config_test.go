package guard

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
env = "production"
login_path = "/auth/login"
public_routes = ["/auth/login", "/auth/signup", "/"]
allowed_ref_levels = [1, 2]
heartbeat_interval = "2m"
session_expiry = "30m"

[base_urls]
production = "https://auth.example.org/@semantq/auth/"

[dashboard_paths]
1 = "/auth/dashboard"
2 = "/auth/campus/admin"
3 = "/auth/dashboard/superadmin"
`

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "http://localhost:3003/@semantq/auth", cfg.APIBaseURL())
	assert.Equal(t, 5*time.Minute, cfg.HeartbeatInterval)
	assert.Equal(t, time.Hour, cfg.SessionExpiry)
	assert.Equal(t, 10*time.Second, cfg.FetchTimeout)
	assert.True(t, cfg.RefAllowed(1))
	assert.False(t, cfg.RefAllowed(3))
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(sampleConfig)
	require.NoError(t, err)

	assert.Equal(t, "https://auth.example.org/@semantq/auth", cfg.APIBaseURL())
	assert.Equal(t, "/auth/login", cfg.LoginPath)
	assert.Equal(t, []int{1, 2}, cfg.AllowedRefLevels)
	assert.Equal(t, 2*time.Minute, cfg.HeartbeatInterval)
	assert.Equal(t, 30*time.Minute, cfg.SessionExpiry)
	assert.Equal(t, 10*time.Second, cfg.FetchTimeout, "unset keys keep defaults")
	assert.Equal(t, map[int]string{
		1: "/auth/dashboard",
		2: "/auth/campus/admin",
		3: "/auth/dashboard/superadmin",
	}, cfg.DashboardPaths)

	p := NewPolicy(cfg)
	assert.Equal(t, "/auth/login", p.Decide(Anonymous{}, "/auth/dashboard/superadmin").Redirect)
	assert.Equal(t, "/auth/dashboard", p.Decide(authed(1), "/auth/dashboard/superadmin").Redirect)
}

func TestParseConfigErrors(t *testing.T) {
	tests := map[string]string{
		"syntax":          `env = `,
		"level not int":   "[dashboard_paths]\nadmin = \"/admin\"\n",
		"relative path":   "[dashboard_paths]\n1 = \"dashboard\"\n",
		"only level zero": "[dashboard_paths]\n0 = \"/zero\"\n",
		"unknown env":     `env = "staging"`,
		"bad base url":    `base_url = "localhost"`,
		"bad duration":    `fetch_timeout = "soon"`,
		"negative expiry": `session_expiry = "-1m"`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig(doc)
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guard.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Env)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestWatchConfigReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "guard.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	var (
		mu      sync.Mutex
		applied []Config
	)
	w, err := WatchConfig(context.Background(), path, func(cfg Config) {
		mu.Lock()
		applied = append(applied, cfg)
		mu.Unlock()
	}, nil)
	require.NoError(t, err)
	defer w.Close()

	// A broken edit is skipped.
	require.NoError(t, os.WriteFile(path, []byte("[dashboard_paths]\nx = 1\n"), 0o600))
	time.Sleep(3 * configDebounce)

	require.NoError(t, os.WriteFile(path, []byte(`login_path = "/signin"`), 0o600))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(applied) > 0 && applied[len(applied)-1].LoginPath == "/signin"
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	for _, cfg := range applied {
		assert.NoError(t, cfg.Validate())
	}
	mu.Unlock()
}

func TestWatchConfigRequiresPath(t *testing.T) {
	_, err := WatchConfig(context.Background(), "", nil, nil)
	assert.Error(t, err)
}

func TestWatchConfigCloseTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guard.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	w, err := WatchConfig(context.Background(), path, nil, nil)
	require.NoError(t, err)
	assert.NoError(t, w.Close())
	assert.NotPanics(t, func() { _ = w.Close() })
}
