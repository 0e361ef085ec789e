package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	DBFile      string
	TripsDBFile string
	OpsAddr     string
	APIAddr     string
	BaseURL     string
	AuthSecret  string
	TokenExpiry time.Duration

	PushSubscriber  string
	VAPIDPublicKey  string
	VAPIDPrivateKey string
}

// fileConfig is the optional TOML overlay; only keys actually present in
// the file override the environment.
type fileConfig struct {
	DBFile          string `toml:"db_file"`
	TripsDBFile     string `toml:"trips_db_file"`
	OpsAddr         string `toml:"ops_addr"`
	APIAddr         string `toml:"api_addr"`
	BaseURL         string `toml:"base_url"`
	AuthSecret      string `toml:"auth_secret"`
	TokenExpiry     string `toml:"token_expiry"`
	PushSubscriber  string `toml:"push_subscriber"`
	VAPIDPublicKey  string `toml:"vapid_public_key"`
	VAPIDPrivateKey string `toml:"vapid_private_key"`
}

func Load(cliMode bool) (*Config, error) {
	tokenExpiry, err := time.ParseDuration(getEnv("TOKEN_EXPIRY", "24h"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DBFile:          getEnv("HITCH_DB", "hitch.db"),
		TripsDBFile:     getEnv("HITCH_TRIPS_DB", "trips.db"),
		OpsAddr:         getEnv("OPS_ADDR", "localhost:8081"),
		APIAddr:         getEnv("API_ADDR", ":8080"),
		BaseURL:         getEnv("BASE_URL", "http://localhost:8080"),
		AuthSecret:      os.Getenv("AUTH_SECRET"),
		TokenExpiry:     tokenExpiry,
		PushSubscriber:  os.Getenv("PUSH_SUBSCRIBER"),
		VAPIDPublicKey:  os.Getenv("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("VAPID_PRIVATE_KEY"),
	}

	if path := os.Getenv("HITCH_CONFIG"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(cliMode); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config file: %w", err)
	}

	if meta.IsDefined("db_file") {
		c.DBFile = strings.TrimSpace(raw.DBFile)
	}
	if meta.IsDefined("trips_db_file") {
		c.TripsDBFile = strings.TrimSpace(raw.TripsDBFile)
	}
	if meta.IsDefined("ops_addr") {
		c.OpsAddr = strings.TrimSpace(raw.OpsAddr)
	}
	if meta.IsDefined("api_addr") {
		c.APIAddr = strings.TrimSpace(raw.APIAddr)
	}
	if meta.IsDefined("base_url") {
		c.BaseURL = strings.TrimSpace(raw.BaseURL)
	}
	if meta.IsDefined("auth_secret") {
		c.AuthSecret = raw.AuthSecret
	}
	if meta.IsDefined("token_expiry") {
		expiry, err := time.ParseDuration(raw.TokenExpiry)
		if err != nil {
			return fmt.Errorf("token_expiry: %w", err)
		}
		c.TokenExpiry = expiry
	}
	if meta.IsDefined("push_subscriber") {
		c.PushSubscriber = strings.TrimSpace(raw.PushSubscriber)
	}
	if meta.IsDefined("vapid_public_key") {
		c.VAPIDPublicKey = strings.TrimSpace(raw.VAPIDPublicKey)
	}
	if meta.IsDefined("vapid_private_key") {
		c.VAPIDPrivateKey = strings.TrimSpace(raw.VAPIDPrivateKey)
	}
	return nil
}

func (c *Config) Validate(cliMode bool) error {
	if c.AuthSecret == "" && !cliMode {
		return fmt.Errorf("AUTH_SECRET is required")
	}

	if c.TokenExpiry <= 0 {
		return fmt.Errorf("TOKEN_EXPIRY must be greater than 0")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
