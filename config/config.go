package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	Client ClientConfig `yaml:"client"`
}

type ServerConfig struct {
	TCPPort           int    `yaml:"tcp_port"`
	UDPPort           int    `yaml:"udp_port"`
	DataDir           string `yaml:"data_dir"`
	StoreBackend      string `yaml:"store_backend"` // "file" or "sqlite"
	DBPath            string `yaml:"db_path"`
	MaxConns          int    `yaml:"max_conns"`           // 0 = unbounded
	DatagramRateLimit int    `yaml:"datagram_rate_limit"` // per source, per second; 0 = off
	MetricsPort       int    `yaml:"metrics_port"`        // 0 = disabled
	ControlSocket     string `yaml:"control_socket"`
}

type ClientConfig struct {
	ServerHost   string        `yaml:"server_host"`
	TCPPort      int           `yaml:"tcp_port"`
	UDPPort      int           `yaml:"udp_port"`
	ChatPort     int           `yaml:"chat_port"` // 0 = random in [20000, 65000]
	PollInterval time.Duration `yaml:"poll_interval"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			TCPPort:       5001,
			UDPPort:       1235,
			DataDir:       "data",
			StoreBackend:  "file",
			DBPath:        "buddyim.db",
			ControlSocket: "/tmp/buddyim.sock",
		},
		Client: ClientConfig{
			ServerHost:   "127.0.0.1",
			TCPPort:      5001,
			UDPPort:      1235,
			PollInterval: 800 * time.Millisecond,
		},
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// BUDDYIM_CONFIG (if set), then individual BUDDYIM_* variables.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("BUDDYIM_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	envInt("BUDDYIM_TCP_PORT", &cfg.Server.TCPPort)
	envInt("BUDDYIM_UDP_PORT", &cfg.Server.UDPPort)
	envString("BUDDYIM_DATA_DIR", &cfg.Server.DataDir)
	envString("BUDDYIM_STORE", &cfg.Server.StoreBackend)
	envString("BUDDYIM_DB_PATH", &cfg.Server.DBPath)
	envInt("BUDDYIM_MAX_CONNS", &cfg.Server.MaxConns)
	envInt("BUDDYIM_DATAGRAM_RATE", &cfg.Server.DatagramRateLimit)
	envInt("BUDDYIM_METRICS_PORT", &cfg.Server.MetricsPort)
	envString("BUDDYIM_CONTROL_SOCKET", &cfg.Server.ControlSocket)

	envString("BUDDYIM_SERVER_HOST", &cfg.Client.ServerHost)
	envInt("BUDDYIM_SERVER_TCP_PORT", &cfg.Client.TCPPort)
	envInt("BUDDYIM_SERVER_UDP_PORT", &cfg.Client.UDPPort)
	envInt("BUDDYIM_CHAT_PORT", &cfg.Client.ChatPort)
	if v := os.Getenv("BUDDYIM_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Client.PollInterval = d
		}
	}

	return cfg, nil
}

// StorePath is the location handed to db.Open for the configured backend.
func (c *ServerConfig) StorePath() string {
	if c.StoreBackend == "sqlite" {
		return c.DBPath
	}
	return c.DataDir
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
