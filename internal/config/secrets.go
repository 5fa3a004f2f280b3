package config

import (
	"fmt"
	"os"
	"strings"
)

// LoadSecrets fills credentials from mounted secret files. An inline value
// from the file or environment always wins.
func LoadSecrets(config *Config) error {
	if config.Cache.Password == "" {
		pw, err := readSecretFile("VALKEY_PASSWORD_FILE")
		if err != nil {
			return err
		}
		config.Cache.Password = pw
	}

	if config.Enrichment.APIKey == "" {
		key, err := readSecretFile("DASHBRIDGE_ENRICHMENT_API_KEY_FILE")
		if err != nil {
			return err
		}
		config.Enrichment.APIKey = key
	}

	return nil
}

func readSecretFile(env string) (string, error) {
	path := os.Getenv(env)
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file from %s: %w", env, err)
	}
	return strings.TrimSpace(string(b)), nil
}
