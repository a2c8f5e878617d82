// Package config resolves coordinator settings from flags, the environment
// and an optional .env file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
)

const (
	VerifierGroth16     = "groth16"
	VerifierPlaceholder = "placeholder"
	StoreMemory         = "memory"
)

type Config struct {
	Addr          string
	KeysDir       string
	Verifier      string
	VerifyTimeout time.Duration
	// Store is "memory" or a redis:// URL.
	Store        string
	TTL          time.Duration
	RegistryURL  string
	Game         string
	JWTSecret    string
	TokenTTL     time.Duration
	LogLevel     string
	LogFormat    string
	AllowOrigins string
}

func Default() Config {
	return Config{
		Addr:          ":8080",
		KeysDir:       "./keys",
		Verifier:      VerifierGroth16,
		VerifyTimeout: 30 * time.Second,
		Store:         StoreMemory,
		TTL:           30 * 24 * time.Hour,
		Game:          "battleship-zk",
		TokenTTL:      24 * time.Hour,
		LogLevel:      "info",
		LogFormat:     "console",
		AllowOrigins:  "*",
	}
}

// LoadDotEnv reads files into the process environment without overriding
// variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Bind registers flags on fs whose defaults come from the environment,
// falling back to Default.
func Bind(fs *flag.FlagSet, lookup func(string) (string, bool)) (*Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	c := Default()
	var errs []error
	str := func(key, def string) string {
		if v, ok := lookup(key); ok && v != "" {
			return v
		}
		return def
	}
	dur := func(key string, def time.Duration) time.Duration {
		v, ok := lookup(key)
		if !ok || v == "" {
			return def
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return def
		}
		return d
	}

	fs.StringVar(&c.Addr, "addr", str("BATTLESHIP_ADDR", c.Addr), "listen address")
	fs.StringVar(&c.KeysDir, "keys", str("BATTLESHIP_KEYS_DIR", c.KeysDir), "keys directory")
	fs.StringVar(&c.Verifier, "verifier", str("BATTLESHIP_VERIFIER", c.Verifier), "proof verifier: groth16 or placeholder")
	fs.DurationVar(&c.VerifyTimeout, "verify-timeout", dur("BATTLESHIP_VERIFY_TIMEOUT", c.VerifyTimeout), "bound on each proof verification")
	fs.StringVar(&c.Store, "store", str("BATTLESHIP_STORE", c.Store), "state store: memory or a redis:// URL")
	fs.DurationVar(&c.TTL, "ttl", dur("BATTLESHIP_TTL", c.TTL), "lifetime of match records")
	fs.StringVar(&c.RegistryURL, "registry", str("BATTLESHIP_REGISTRY_URL", c.RegistryURL), "game hub base URL (empty records in memory)")
	fs.StringVar(&c.Game, "game", str("BATTLESHIP_GAME_ID", c.Game), "game identity registered at the hub")
	fs.StringVar(&c.JWTSecret, "jwt-secret", str("BATTLESHIP_JWT_SECRET", c.JWTSecret), "HS256 secret for player tokens")
	fs.DurationVar(&c.TokenTTL, "token-ttl", dur("BATTLESHIP_TOKEN_TTL", c.TokenTTL), "lifetime of minted tokens")
	fs.StringVar(&c.LogLevel, "log-level", str("BATTLESHIP_LOG_LEVEL", c.LogLevel), "debug, info, warn or error")
	fs.StringVar(&c.LogFormat, "log-format", str("BATTLESHIP_LOG_FORMAT", c.LogFormat), "console or json")
	fs.StringVar(&c.AllowOrigins, "allow-origins", str("BATTLESHIP_ALLOW_ORIGINS", c.AllowOrigins), "CORS allowed origin")
	return &c, errors.Join(errs...)
}

// Validate checks the settings the server cannot run without.
func (c *Config) Validate() error {
	var errs []error
	switch c.Verifier {
	case VerifierGroth16, VerifierPlaceholder:
	default:
		errs = append(errs, fmt.Errorf("verifier %q: want %s or %s", c.Verifier, VerifierGroth16, VerifierPlaceholder))
	}
	if c.Store != StoreMemory && !strings.HasPrefix(c.Store, "redis://") && !strings.HasPrefix(c.Store, "rediss://") {
		errs = append(errs, fmt.Errorf("store %q: want %s or a redis URL", c.Store, StoreMemory))
	}
	if c.TTL <= 0 {
		errs = append(errs, errors.New("ttl must be positive"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt secret is required"))
	}
	return errors.Join(errs...)
}
