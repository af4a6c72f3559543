package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
)

// ServerConfig configures the record store server.
type ServerConfig struct {
	Port        string
	LogLevel    string
	DatabaseURL string
	AuthToken   string
}

func LoadServer() ServerConfig {
	cfg := ServerConfig{
		Port:        envOrDefault("RECORDSTORE_PORT", "8090"),
		LogLevel:    envOrDefault("RECORDSTORE_LOG_LEVEL", "info"),
		DatabaseURL: envOrDefault("RECORDSTORE_DATABASE_URL", "file:recordstore.db"),
		AuthToken:   strings.TrimSpace(os.Getenv("RECORDSTORE_AUTH_TOKEN")),
	}
	if p := strings.TrimSpace(os.Getenv("PORT")); p != "" {
		cfg.Port = p
	}
	return cfg
}

type CloudSyncConfig struct {
	BaseURL             string `json:"base_url"`
	Token               string `json:"token"`
	UserID              string `json:"user_id"`
	DeviceName          string `json:"device_name"`
	CodeLength          int    `json:"code_length"`
	ListIntervalSeconds int    `json:"list_interval_seconds"`
	ChatIntervalSeconds int    `json:"chat_interval_seconds"`
	Push                bool   `json:"push"`
	RequestTimeoutSec   int    `json:"request_timeout_seconds"`
}

// Config configures a device running the list sync client. StatusAddr
// enables the local control API when set, e.g. "127.0.0.1:8091".
type Config struct {
	CloudSync  CloudSyncConfig `json:"cloud_sync"`
	ListPath   string          `json:"list_path"`
	StatusAddr string          `json:"status_addr"`
	LogLevel   string          `json:"-"`
}

func Load() Config {
	cfg := Config{}
	paths := []string{os.Getenv("CONFIG_PATH"), "config.json"}
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		b, err := os.ReadFile(p)
		if err == nil {
			_ = json.Unmarshal(b, &cfg)
			break
		}
	}
	cfg.LogLevel = envOrDefault("LOG_LEVEL", "info")
	if v := strings.TrimSpace(os.Getenv("LISTSYNC_LIST_PATH")); v != "" {
		cfg.ListPath = v
	}
	if v := strings.TrimSpace(os.Getenv("LISTSYNC_STATUS_ADDR")); v != "" {
		cfg.StatusAddr = v
	}
	applyCloudSyncEnv(&cfg.CloudSync)
	applyDefaults(&cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	cs := &cfg.CloudSync
	if cs.CodeLength <= 0 {
		cs.CodeLength = 6
	}
	if cs.ListIntervalSeconds <= 0 {
		cs.ListIntervalSeconds = 6
	}
	if cs.ChatIntervalSeconds <= 0 {
		cs.ChatIntervalSeconds = 4
	}
	if cs.RequestTimeoutSec <= 0 {
		cs.RequestTimeoutSec = 30
	}
	if strings.TrimSpace(cs.DeviceName) == "" {
		if host, err := os.Hostname(); err == nil && strings.TrimSpace(host) != "" {
			cs.DeviceName = host
		} else {
			cs.DeviceName = "listsync-device"
		}
	}
	if strings.TrimSpace(cs.UserID) == "" {
		cs.UserID = cs.DeviceName
	}
	if strings.TrimSpace(cs.BaseURL) == "" {
		cs.BaseURL = "http://localhost:8090"
	}
	cs.BaseURL = strings.TrimRight(strings.TrimSpace(cs.BaseURL), "/")
	if strings.TrimSpace(cfg.ListPath) == "" {
		cfg.ListPath = "shopping_items.json"
	}
}

func applyCloudSyncEnv(cs *CloudSyncConfig) {
	if v := strings.TrimSpace(os.Getenv("LISTSYNC_BASE_URL")); v != "" {
		cs.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("LISTSYNC_TOKEN")); v != "" {
		cs.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("LISTSYNC_USER_ID")); v != "" {
		cs.UserID = v
	}
	if v := strings.TrimSpace(os.Getenv("LISTSYNC_DEVICE_NAME")); v != "" {
		cs.DeviceName = v
	}
	if v := os.Getenv("LISTSYNC_CODE_LENGTH"); strings.TrimSpace(v) != "" {
		cs.CodeLength = IntOrDefault(v, cs.CodeLength)
	}
	if v := os.Getenv("LISTSYNC_LIST_INTERVAL_SECONDS"); strings.TrimSpace(v) != "" {
		cs.ListIntervalSeconds = IntOrDefault(v, cs.ListIntervalSeconds)
	}
	if v := os.Getenv("LISTSYNC_CHAT_INTERVAL_SECONDS"); strings.TrimSpace(v) != "" {
		cs.ChatIntervalSeconds = IntOrDefault(v, cs.ChatIntervalSeconds)
	}
	if v, ok := getenvBool("LISTSYNC_PUSH"); ok {
		cs.Push = v
	}
}

func getenvBool(name string) (bool, bool) {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if v == "" {
		return false, false
	}
	switch v {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func IntOrDefault(v string, fallback int) int {
	if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && i > 0 {
		return i
	}
	return fallback
}
