package cliconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bft-labs/spbatch/internal/domain"
	"github.com/bft-labs/spbatch/pkg/log"
)

// DefaultGraphURL is the default Microsoft Graph service root.
const DefaultGraphURL = "https://graph.microsoft.com/v1.0"

// Config holds CLI configuration for spbatch.
type Config struct {
	SiteURL  string
	GraphURL string

	TenantID     string
	ClientID     string
	ClientSecret string
	AuthorityURL string

	PreferGraph  bool
	DisableREST  bool
	DisableGraph bool

	MaxConcurrency int
	HTTPTimeout    time.Duration
	MaxRetries     int
	RetryInitial   time.Duration
	RetryMax       time.Duration

	MetadataFile string
	LogLevel     string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		GraphURL:       DefaultGraphURL,
		PreferGraph:    true,
		MaxConcurrency: 4,
		HTTPTimeout:    30 * time.Second,
		MaxRetries:     3,
		RetryInitial:   500 * time.Millisecond,
		RetryMax:       10 * time.Second,
		LogLevel:       "info",
		ClientSecret:   os.Getenv("SPBATCH_CLIENT_SECRET"),
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.DisableREST && c.DisableGraph {
		return fmt.Errorf("at least one protocol must stay enabled")
	}

	if c.GraphURL == "" {
		c.GraphURL = DefaultGraphURL
	}

	// Ensure no trailing slash
	c.SiteURL = strings.TrimRight(c.SiteURL, "/")
	c.GraphURL = strings.TrimRight(c.GraphURL, "/")
	c.AuthorityURL = strings.TrimRight(c.AuthorityURL, "/")

	if c.MaxConcurrency < 0 {
		return fmt.Errorf("max concurrency must not be negative")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative")
	}
	if c.RetryInitial <= 0 {
		return fmt.Errorf("retry initial must be positive")
	}
	if c.RetryMax < c.RetryInitial {
		c.RetryMax = c.RetryInitial
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return err
	}

	if c.ClientID != "" && c.TenantID == "" {
		return fmt.Errorf("tenant-id is required with client-id")
	}
	return nil
}

// ValidateRemote checks what sending over the network needs on top of Validate.
func (c *Config) ValidateRemote() error {
	if !c.DisableREST && c.SiteURL == "" {
		return fmt.Errorf("site-url is required unless REST is disabled")
	}
	if c.ClientID != "" && c.ClientSecret == "" {
		return fmt.Errorf("client-secret is required with client-id")
	}
	return nil
}

// Preferred returns the protocol mixed batches are unified onto first.
func (c Config) Preferred() domain.Protocol {
	if c.PreferGraph {
		return domain.ProtocolGraph
	}
	return domain.ProtocolREST
}

// DisabledProtocols returns the protocols no call may be sent over.
func (c Config) DisabledProtocols() []domain.Protocol {
	var out []domain.Protocol
	if c.DisableREST {
		out = append(out, domain.ProtocolREST)
	}
	if c.DisableGraph {
		out = append(out, domain.ProtocolGraph)
	}
	return out
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
