package config

import (
	"encoding/json"
	"os"
	"sync"
)

type Config struct {
	SheetScriptURL     string `json:"sheetScriptURL"`
	RequestTimeoutSecs int    `json:"requestTimeoutSecs"`
	ListenPort         int    `json:"listenPort"`
	DefaultOperator    string `json:"defaultOperator"`
}

var (
	cfg Config
	mu  sync.RWMutex
)

const configFilePath = "./rodlot_config.json"

func defaults(c Config) Config {
	if c.RequestTimeoutSecs == 0 {
		c.RequestTimeoutSecs = 10
	}
	if c.ListenPort == 0 {
		c.ListenPort = 8080
	}
	return c
}

func LoadConfig() (Config, error) {
	mu.Lock()
	defer mu.Unlock()

	file, err := os.ReadFile(configFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg = defaults(Config{})
			return cfg, nil
		}
		return Config{}, err
	}

	var tempCfg Config
	if err := json.Unmarshal(file, &tempCfg); err != nil {
		return Config{}, err
	}
	cfg = defaults(tempCfg)

	return cfg, nil
}

func SaveConfig(newCfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	newCfg = defaults(newCfg)

	file, err := json.MarshalIndent(newCfg, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(configFilePath, file, 0644); err != nil {
		return err
	}
	cfg = newCfg
	return nil
}

// Fallback resets the in-memory config to defaults. Used when the
// config file exists but cannot be read or parsed.
func Fallback() Config {
	mu.Lock()
	defer mu.Unlock()
	cfg = defaults(Config{})
	return cfg
}

func GetConfig() Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}
