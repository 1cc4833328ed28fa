package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config collects the environment-tunable inputs consumed from an external
// settings provider. Production deployments are expected to run shorter
// access lifetimes and a higher work factor than development ones.
type Config struct {
	SigningSecret  string
	Issuer         string
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
	ResetTTL       time.Duration
	BcryptCost     int
	RoleMapping    RoleMapping
	LoginPerMinute int
	LoginBurst     int
}

// ConfigFromEnv reads GATEKIT_* variables. Only the signing secret is
// required; everything else falls back to the service defaults.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		SigningSecret: strings.TrimSpace(os.Getenv("GATEKIT_AUTH_SECRET")),
		Issuer:        strings.TrimSpace(os.Getenv("GATEKIT_ISSUER")),
	}
	if cfg.SigningSecret == "" {
		return Config{}, errors.New("auth: GATEKIT_AUTH_SECRET is not configured")
	}

	var err error
	if cfg.AccessTTL, err = envDuration("GATEKIT_ACCESS_TTL"); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTTL, err = envDuration("GATEKIT_REFRESH_TTL"); err != nil {
		return Config{}, err
	}
	if cfg.ResetTTL, err = envDuration("GATEKIT_RESET_TTL"); err != nil {
		return Config{}, err
	}
	if cfg.BcryptCost, err = envInt("GATEKIT_BCRYPT_COST"); err != nil {
		return Config{}, err
	}
	if cfg.LoginPerMinute, err = envInt("GATEKIT_LOGIN_PER_MINUTE"); err != nil {
		return Config{}, err
	}
	if cfg.LoginBurst, err = envInt("GATEKIT_LOGIN_BURST"); err != nil {
		return Config{}, err
	}

	if raw := strings.TrimSpace(os.Getenv("GATEKIT_ROLE_MAPPING")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg.RoleMapping); err != nil {
			return Config{}, fmt.Errorf("auth: parse GATEKIT_ROLE_MAPPING: %w", err)
		}
	}
	return cfg, nil
}

// Options expands the config into service options.
func (c Config) Options() []ServiceOption {
	return []ServiceOption{
		WithSigningSecret(c.SigningSecret),
		WithIssuer(c.Issuer),
		WithAccessTTL(c.AccessTTL),
		WithRefreshTTL(c.RefreshTTL),
		WithResetTTL(c.ResetTTL),
		WithBcryptCost(c.BcryptCost),
		WithRoleMapping(c.RoleMapping),
		WithLoginRate(c.LoginPerMinute, c.LoginBurst),
	}
}

func envDuration(name string) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("auth: parse %s: %w", name, err)
	}
	return d, nil
}

func envInt(name string) (int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("auth: parse %s: %w", name, err)
	}
	return n, nil
}
