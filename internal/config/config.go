package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const EnvPrefix = "PDF_COLLECTOR_"

type DatabaseConfig struct {
	Enabled            bool   `json:"enabled"`
	Host               string `json:"host"`
	Port               uint64 `json:"port"`
	Username           string `json:"username"`
	Password           string `json:"password"`
	Database           string `json:"database"`
	UseTLS             bool   `json:"use_tls"`
	ConnectTimeout     string `json:"connect_timeout"`
	SocketTimeout      string `json:"socket_timeout"`
	ConnectIdleTimeout string `json:"connect_idle_timeout"`
	OperationTimeout   string `json:"operation_timeout"`
	Heartbeat          string `json:"heartbeat"`
	MinPoolSize        uint64 `json:"min_pool_size"`
	MaxPoolSize        uint64 `json:"max_pool_size"`
	CacheSize          int    `json:"cache_size"`
}

type GatewayConfig struct {
	BaseURL    string `json:"base_url"`
	UploadPath string `json:"upload_path"`
	Token      string `json:"token"`
	Timeout    string `json:"timeout"`
}

type Config struct {
	Database          DatabaseConfig `json:"database"`
	Gateway           GatewayConfig  `json:"gateway"`
	DebugMode         bool           `json:"debug_mode"`
	AppName           string         `json:"app_name"`
	AppPort           int            `json:"app_port"`
	LogPath           string         `json:"log_path"`
	StagingRoot       string         `json:"staging_root"`
	WebSocketPath     string         `json:"websocket_path"`
	AllowedOrigins    []string       `json:"allowed_origins"`
	InitialFrameLimit int64          `json:"initial_frame_limit"`
	JoinedFrameLimit  int64          `json:"joined_frame_limit"`
	MaxConnections    int            `json:"max_connections"`
	HeartbeatTimeout  string         `json:"heartbeat_timeout"`
}

var (
	ErrConfigCreated = errors.New("the configuration file does not exist and has been created. Please try again after editing the configuration file")
	ErrInvalidConfig = errors.New("the configuration file does not contain valid JSON")
)

var config Config
var initialized = false

// Default returns the configuration written to disk on first run.
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			Host:               "localhost",
			Port:               27017,
			Database:           "pdf_collector",
			ConnectTimeout:     "10s",
			SocketTimeout:      "30s",
			ConnectIdleTimeout: "5m",
			OperationTimeout:   "5s",
			Heartbeat:          "10s",
			MinPoolSize:        1,
			MaxPoolSize:        16,
			CacheSize:          256,
		},
		Gateway: GatewayConfig{
			BaseURL:    "http://localhost:9000",
			UploadPath: "/v1/someUpload",
			Token:      "someToken",
			Timeout:    "1m",
		},
		AppName:           "pdf-collector",
		AppPort:           8080,
		LogPath:           "logs",
		StagingRoot:       "staging",
		WebSocketPath:     "/v1/ws/pdfWork",
		AllowedOrigins:    []string{"*"},
		InitialFrameLimit: 64 * 1024,
		JoinedFrameLimit:  70920 * 1024,
		MaxConnections:    10000,
		HeartbeatTimeout:  "2m",
	}
}

// ReadConfig loads path, applies .env and PDF_COLLECTOR_* overrides and
// caches the result for GetConfig. A missing file is created with defaults.
func ReadConfig(path string) (Config, error) {
	_ = godotenv.Load()

	config = Default()
	bytes, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return config, fmt.Errorf("error occured while reading %s: %w", path, err)
		}
		data, _ := json.MarshalIndent(config, "", "\t")
		if err := os.WriteFile(path, data, 0644); err != nil {
			return config, fmt.Errorf("error occured while creating %s: %w", path, err)
		}
		return config, ErrConfigCreated
	}

	if err = json.Unmarshal(bytes, &config); err != nil {
		return config, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if err = applyEnv(&config, os.LookupEnv); err != nil {
		return config, err
	}

	initialized = true
	return config, nil
}

func GetConfig() (Config, error) {
	if initialized {
		return config, nil
	}
	return ReadConfig("config.json")
}

func applyEnv(c *Config, lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"APP_NAME":         &c.AppName,
		"LOG_PATH":         &c.LogPath,
		"STAGING_ROOT":     &c.StagingRoot,
		"WEBSOCKET_PATH":   &c.WebSocketPath,
		"HEARTBEAT":        &c.HeartbeatTimeout,
		"GATEWAY_BASE_URL": &c.Gateway.BaseURL,
		"GATEWAY_PATH":     &c.Gateway.UploadPath,
		"GATEWAY_TOKEN":    &c.Gateway.Token,
		"GATEWAY_TIMEOUT":  &c.Gateway.Timeout,
		"DB_HOST":          &c.Database.Host,
		"DB_USERNAME":      &c.Database.Username,
		"DB_PASSWORD":      &c.Database.Password,
		"DB_DATABASE":      &c.Database.Database,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}

	if v, ok := lookup(EnvPrefix + "APP_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sAPP_PORT %q: %w", EnvPrefix, v, err)
		}
		c.AppPort = port
	}
	if v, ok := lookup(EnvPrefix + "DEBUG_MODE"); ok {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sDEBUG_MODE %q: %w", EnvPrefix, v, err)
		}
		c.DebugMode = debug
	}
	if v, ok := lookup(EnvPrefix + "DB_ENABLED"); ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sDB_ENABLED %q: %w", EnvPrefix, v, err)
		}
		c.Database.Enabled = enabled
	}
	if v, ok := lookup(EnvPrefix + "ALLOWED_ORIGINS"); ok {
		c.AllowedOrigins = strings.Split(v, ",")
	}
	return nil
}
