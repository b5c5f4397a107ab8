package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port           string   `yaml:"port"`
		Mode           string   `yaml:"mode"`
		AllowedOrigins []string `yaml:"allowedOrigins"`
	} `yaml:"server"`
	Log struct {
		Mode string `yaml:"mode"`
	} `yaml:"log"`
	Auth struct {
		JWTSecret string `yaml:"jwtSecret"`
		TokenTTL  string `yaml:"tokenTTL"`
	} `yaml:"auth"`
	Store struct {
		Driver string `yaml:"driver"` // memory, postgres or mongo
	} `yaml:"store"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Mongo struct {
		URI      string `yaml:"uri"`
		Database string `yaml:"database"`
	} `yaml:"mongo"`
	AMQP struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"amqp"`
	Quiz struct {
		TTL             string `yaml:"ttl"`
		LeaderboardSize int    `yaml:"leaderboardSize"`
	} `yaml:"quiz"`
	Seed struct {
		Path string `yaml:"path"`
	} `yaml:"seed"`
}

// Load reads YAML config from path and applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	override := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	override(&c.Auth.JWTSecret, "JWT_SECRET")
	override(&c.Store.Driver, "STORE_DRIVER")
	override(&c.Postgres.URL, "POSTGRES_URL")
	override(&c.Mongo.URI, "MONGO_URI")
	override(&c.Mongo.Database, "MONGO_DATABASE")
	override(&c.Redis.Addr, "REDIS_ADDR")
	override(&c.Redis.Password, "REDIS_PASSWORD")
	override(&c.AMQP.URL, "AMQP_URL")
	override(&c.Log.Mode, "LOG_MODE")
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = strings.Split(v, ",")
	}
}

func (c *Config) applyDefaults() {
	if c.Store.Driver == "" {
		switch {
		case c.Postgres.URL != "":
			c.Store.Driver = "postgres"
		case c.Mongo.URI != "":
			c.Store.Driver = "mongo"
		default:
			c.Store.Driver = "memory"
		}
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = "food_quiz"
	}
	if c.AMQP.Exchange == "" {
		c.AMQP.Exchange = "quiz.events"
	}
	if c.Server.Mode == "" {
		c.Server.Mode = "release"
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
