package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// ValidateEndpoint validates that an endpoint is properly formatted
func ValidateEndpoint(endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	parsed, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint URL: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("endpoint must use http or https scheme")
	}

	if parsed.Host == "" {
		return fmt.Errorf("endpoint must include host")
	}

	return nil
}

// ValidateValkeyNode validates a host:port Valkey address
func ValidateValkeyNode(node string) error {
	if node == "" {
		return fmt.Errorf("Valkey node cannot be empty")
	}

	host, port, err := net.SplitHostPort(node)
	if err != nil {
		return fmt.Errorf("Valkey node must be in format host:port: %w", err)
	}

	if host == "" {
		return fmt.Errorf("Valkey node must include host")
	}

	p, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("invalid Valkey port: %w", err)
	}
	if p < 1 || p > 65535 {
		return fmt.Errorf("Valkey port must be between 1 and 65535")
	}

	return nil
}
