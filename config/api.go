package config

import (
	"fmt"
	"net"
)

// APIConfig enables the reservation HTTP API when Addr is set.
type APIConfig struct {
	Addr string `json:"addr"`
	// Token is the bearer token required on every request. Empty disables auth.
	Token string `json:"token"`
}

func (a APIConfig) Validate() error {
	if a.Addr == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(a.Addr); err != nil {
		return fmt.Errorf("invalid addr %q: %w", a.Addr, err)
	}
	return nil
}
