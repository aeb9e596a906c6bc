// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr      string `env:"PORT,default=3000"`
	DBPath    string `env:"LUCKYLOVE_DB_PATH,default=luckylove.db"`
	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=text"`

	// RedisURL selects the Redis cache; empty keeps the in-memory cache.
	RedisURL    string `env:"REDIS_URL"`
	RedisPrefix string `env:"REDIS_PREFIX,default=luckylove:"`

	// WSOrigins are host patterns accepted on websocket upgrades, separated by ';'.
	WSOrigins []string `env:"LUCKYLOVE_WS_ORIGINS"`

	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT,default=5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT,default=10s"`

	Supabase Supabase
	Spotify  Spotify
	Push     Push
	Backup   Backup
	Debug    Debug
}

type Supabase struct {
	URL       string `env:"SUPABASE_URL"`
	AnonKey   string `env:"SUPABASE_ANON_KEY"`
	JWTSecret string `env:"SUPABASE_JWT_SECRET"`
}

type Spotify struct {
	ClientID     string `env:"SPOTIFY_CLIENT_ID"`
	ClientSecret string `env:"SPOTIFY_CLIENT_SECRET"`
	Market       string `env:"SPOTIFY_MARKET,default=MX"`
}

type Push struct {
	VAPIDPublicKey  string `env:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `env:"VAPID_PRIVATE_KEY"`
	VAPIDSubject    string `env:"VAPID_SUBJECT,default=mailto:soporte@luckylove.dev"`
	ExpoAccessToken string `env:"EXPO_ACCESS_TOKEN"`
}

type Backup struct {
	Bucket     string `env:"BACKUP_S3_BUCKET"`
	Region     string `env:"BACKUP_S3_REGION,default=auto"`
	Endpoint   string `env:"BACKUP_S3_ENDPOINT"`
	AccessKey  string `env:"BACKUP_S3_ACCESS_KEY"`
	SecretKey  string `env:"BACKUP_S3_SECRET_KEY"`
	Passphrase string `env:"BACKUP_PASSPHRASE"`
	Prefix     string `env:"BACKUP_S3_PREFIX,default=luckylove/"`
	KeepDays   int    `env:"BACKUP_RETENTION_DAYS,default=30"`
}

// Debug seeds a fixed couple for local development.
type Debug struct {
	UserID       string `env:"DEBUG_USER_ID"`
	Email        string `env:"DEBUG_BASE_EMAIL,default=base@luckylove.dev"`
	PartnerID    string `env:"DEBUG_PARTNER_ID"`
	PartnerEmail string `env:"DEBUG_PARTNER_EMAIL,default=pareja@luckylove.dev"`
}

func (s Spotify) Enabled() bool { return s.ClientID != "" && s.ClientSecret != "" }

func (p Push) WebPushEnabled() bool { return p.VAPIDPublicKey != "" && p.VAPIDPrivateKey != "" }

func (b Backup) Enabled() bool { return b.Bucket != "" && b.Passphrase != "" }

func (d Debug) Enabled() bool { return d.UserID != "" && d.PartnerID != "" }

// Load reads an optional dotenv file into the environment and decodes it.
// Variables already set in the process win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects combinations that would fail at first use.
func (c *Config) Validate() error {
	if c.Supabase.URL == "" && c.Supabase.JWTSecret == "" {
		return errors.New("SUPABASE_URL or SUPABASE_JWT_SECRET is required")
	}
	if (c.Push.VAPIDPublicKey == "") != (c.Push.VAPIDPrivateKey == "") {
		return errors.New("VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY must be set together")
	}
	return nil
}

// ListenAddr accepts either a bare port or a host:port.
func (c *Config) ListenAddr() string {
	for _, ch := range c.Addr {
		if ch < '0' || ch > '9' {
			return c.Addr
		}
	}
	return ":" + c.Addr
}
