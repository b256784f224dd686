package config

import (
	"errors"
	"fmt"
	"github.com/joho/godotenv"
	wbfconfig "github.com/wb-go/wbf/config"
	"io/fs"
	"strings"
	"time"
)

type Config struct {
	Addr        string
	LogLevel    string
	MasterDSN   string
	SlaveDSNs   []string
	MigratePath string
	JWTSecret   string
	Comments    CommentsConfig
	Cache       CacheConfig
	NATS        NATSConfig
}

type CommentsConfig struct {
	AutoApprove  bool
	AllowGuests  bool
	IDPrefix     string
	DefaultLimit int
	MaxLimit     int
}

type CacheConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type NATSConfig struct {
	URL string
}

func DefaultComments() CommentsConfig {
	return CommentsConfig{
		AutoApprove:  true,
		AllowGuests:  true,
		IDPrefix:     "qcom",
		DefaultLimit: 10,
		MaxLimit:     100,
	}
}

// Load reads an optional .env file and then the yaml config at path.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := wbfconfig.New()
	if err := cfg.LoadConfigFiles(path); err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}

	defaults := DefaultComments()
	out := &Config{
		Addr:        stringOr(cfg, "addr", ":8080"),
		LogLevel:    stringOr(cfg, "log_level", "info"),
		MasterDSN:   cfg.GetString("master_dsn"),
		SlaveDSNs:   cfg.GetStringSlice("slaveDSNs"),
		MigratePath: stringOr(cfg, "migrate_path", "./migrations"),
		JWTSecret:   cfg.GetString("jwt_secret"),
		Comments: CommentsConfig{
			AutoApprove:  boolOr(cfg, "comments.auto_approve", defaults.AutoApprove),
			AllowGuests:  boolOr(cfg, "comments.allow_guests", defaults.AllowGuests),
			IDPrefix:     stringOr(cfg, "comments.id_prefix", defaults.IDPrefix),
			DefaultLimit: intOr(cfg, "comments.default_limit", defaults.DefaultLimit),
			MaxLimit:     intOr(cfg, "comments.max_limit", defaults.MaxLimit),
		},
		Cache: CacheConfig{
			Enabled:  boolOr(cfg, "cache.enabled", false),
			Addr:     stringOr(cfg, "cache.addr", "localhost:6379"),
			Password: cfg.GetString("cache.password"),
			DB:       intOr(cfg, "cache.db", 0),
			TTL:      time.Duration(intOr(cfg, "cache.ttl_seconds", 300)) * time.Second,
		},
		NATS: NATSConfig{
			URL: cfg.GetString("nats.url"),
		},
	}
	if out.Comments.MaxLimit < out.Comments.DefaultLimit {
		return nil, fmt.Errorf("comments.max_limit %d is below comments.default_limit %d",
			out.Comments.MaxLimit, out.Comments.DefaultLimit)
	}
	return out, nil
}

func stringOr(cfg *wbfconfig.Config, key, def string) string {
	if v := strings.TrimSpace(cfg.GetString(key)); v != "" {
		return v
	}
	return def
}

func boolOr(cfg *wbfconfig.Config, key string, def bool) bool {
	if strings.TrimSpace(cfg.GetString(key)) == "" {
		return def
	}
	return cfg.GetBool(key)
}

func intOr(cfg *wbfconfig.Config, key string, def int) int {
	if strings.TrimSpace(cfg.GetString(key)) == "" {
		return def
	}
	return cfg.GetInt(key)
}
