// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

type Config struct {
    Server struct {
        Host string `json:"host"`
        Port int    `json:"port"`
    } `json:"server"`

    Database struct {
        Path string `json:"path"`
    } `json:"database"`

    Remote struct {
        BaseURL   string `json:"base_url"`   // upstream sync endpoint; empty means loopback confirm
        TimeoutMs int    `json:"timeout_ms"` // per-call deadline for remote confirmation
    } `json:"remote"`

    Sync struct {
        MaxRetries int  `json:"max_retries"` // retry budget for queued entries
        Offline    bool `json:"offline"`     // start in offline mode (demo/testing)
    } `json:"sync"`

    Environment string `json:"environment"` // dev, prod
    LogLevel    string `json:"log_level"`  // debug, info, warn, error
}

func DefaultPath() string {
    env := os.Getenv("LATCH_ENV")
    if env == "" {
        env = "development"
    }
    return fmt.Sprintf("config/config.%s.json", env)
}


func Load(path string) (*Config, error) {
    file, err := os.Open(path)
    if err != nil {
        return nil, err
    }
    defer file.Close()

    var config Config
    if err := json.NewDecoder(file).Decode(&config); err != nil {
        return nil, err
    }

    if config.Remote.TimeoutMs == 0 {
        config.Remote.TimeoutMs = 10000
    }
    if config.Sync.MaxRetries == 0 {
        config.Sync.MaxRetries = 3
    }
    if config.LogLevel == "" {
        config.LogLevel = "info"
    }

    return &config, nil
}
