package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/udisondev/goicq/internal/constants"
	"github.com/udisondev/goicq/internal/crypto"
	"github.com/udisondev/goicq/internal/device"
)

// EnvPath names the environment variable that overrides the config path.
const EnvPath = "GOICQ_CONFIG"

// Token store backends.
const (
	TokenStoreFile     = "file"
	TokenStorePostgres = "postgres"
)

// Client holds all configuration for one account.
type Client struct {
	// Account
	Uin         int64  `yaml:"uin"`
	Password    string `yaml:"password"`
	PasswordMD5 string `yaml:"password_md5"` // hex, wins over password
	Protocol    string `yaml:"protocol"`
	AllowQR     bool   `yaml:"allow_qr"`

	// Storage
	DataDir    string         `yaml:"data_dir"`
	TokenStore string         `yaml:"token_store"`
	Database   DatabaseConfig `yaml:"database"`

	// Network
	Endpoints    []string      `yaml:"endpoints"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	MaxFrameSize int           `yaml:"max_frame_size"`

	// Session
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval"`
	HeartbeatGrace     time.Duration `yaml:"heartbeat_grace"`
	ReconnectDelay     time.Duration `yaml:"reconnect_delay"`
	MaxReconnects      int           `yaml:"max_reconnects"` // 0: unlimited
	TokenRefreshBefore time.Duration `yaml:"token_refresh_before"`

	// Observability
	LogLevel    string `yaml:"log_level"`
	MetricsAddr string `yaml:"metrics_addr"` // empty: no /metrics listener
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// DefaultClient returns Client config with sensible defaults.
func DefaultClient() Client {
	return Client{
		Protocol:           string(device.AndroidPhone),
		DataDir:            "data",
		TokenStore:         TokenStoreFile,
		DialTimeout:        5 * time.Second,
		MaxFrameSize:       constants.MaxFrameSize,
		RequestTimeout:     constants.DefaultRequestTimeout,
		HeartbeatInterval:  constants.DefaultHeartbeatInterval,
		HeartbeatGrace:     constants.DefaultHeartbeatGrace,
		ReconnectDelay:     constants.DefaultReconnectDelay,
		TokenRefreshBefore: constants.DefaultTokenRefreshBefore,
		LogLevel:           "info",
		Database: DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     5432,
			User:     "goicq",
			Password: "goicq",
			DBName:   "goicq",
			SSLMode:  "disable",
		},
	}
}

// LoadClient loads client config from a YAML file.
// If the file doesn't exist, returns defaults.
func LoadClient(path string) (Client, error) {
	cfg := DefaultClient()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Path returns $GOICQ_CONFIG when set, otherwise def.
func Path(def string) string {
	if p := os.Getenv(EnvPath); p != "" {
		return p
	}
	return def
}

// Validate checks values that would break the session at runtime.
func (c Client) Validate() error {
	if _, err := device.Protocol(c.Protocol).App(); err != nil {
		return err
	}
	switch c.TokenStore {
	case TokenStoreFile, TokenStorePostgres:
	default:
		return fmt.Errorf("unknown token_store %q", c.TokenStore)
	}
	if c.PasswordMD5 != "" {
		if _, err := c.PasswordHash(); err != nil {
			return err
		}
	}
	if c.RequestTimeout <= 0 || c.HeartbeatInterval <= 0 {
		return errors.New("request_timeout and heartbeat_interval must be positive")
	}
	return nil
}

// PasswordHash returns the md5 of the password, or nil when neither
// password field is set.
func (c Client) PasswordHash() ([]byte, error) {
	if c.PasswordMD5 != "" {
		b, err := hex.DecodeString(c.PasswordMD5)
		if err != nil || len(b) != 16 {
			return nil, fmt.Errorf("password_md5 must be 32 hex characters")
		}
		return b, nil
	}
	if c.Password == "" {
		return nil, nil
	}
	return crypto.MD5([]byte(c.Password)), nil
}
