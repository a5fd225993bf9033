package config

import (
	"fmt"
	"time"
)

// StationConfig identifies the ground station owning the schedule.
type StationConfig struct {
	Name string `json:"name"`
	// Timezone is used to display schedules, e.g. "Europe/Paris".
	Timezone string `json:"timezone"`
}

// SetDefaults applies sane defaults.
func (c *StationConfig) SetDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
}

// Validate checks the timezone can be loaded.
func (c StationConfig) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location returns the configured timezone.
func (c StationConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ExpiryConfig controls the janitor dropping reservations that have ended.
type ExpiryConfig struct {
	Disabled bool          `json:"disabled"`
	Interval time.Duration `json:"interval"`
}

// SetDefaults applies sane defaults.
func (c *ExpiryConfig) SetDefaults() {
	if c.Interval == 0 {
		c.Interval = time.Minute
	}
}

// Validate rejects negative intervals.
func (c ExpiryConfig) Validate() error {
	if c.Interval < 0 {
		return fmt.Errorf("interval must be positive, got %s", c.Interval)
	}
	return nil
}
