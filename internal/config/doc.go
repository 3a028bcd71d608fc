// Package config loads and validates the levelauth server configuration.
//
// Values are resolved in order: built-in defaults, the YAML file, then
// LEVELAUTH_* environment variables. Secrets (session.secret, redis and mqtt
// passwords, the influxdb token) should come from the environment.
//
// Usage:
//
//	cfg, err := config.Load("configs/levelauth.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	engineCfg := cfg.Engine()
package config
