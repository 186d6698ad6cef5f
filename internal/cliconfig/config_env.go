package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (SPBATCH_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("site-url", os.Getenv("SPBATCH_SITE_URL"), &cfg.SiteURL)
	s.setString("graph-url", os.Getenv("SPBATCH_GRAPH_URL"), &cfg.GraphURL)
	s.setString("tenant-id", os.Getenv("SPBATCH_TENANT_ID"), &cfg.TenantID)
	s.setString("client-id", os.Getenv("SPBATCH_CLIENT_ID"), &cfg.ClientID)
	s.setString("client-secret", os.Getenv("SPBATCH_CLIENT_SECRET"), &cfg.ClientSecret)
	s.setString("authority-url", os.Getenv("SPBATCH_AUTHORITY_URL"), &cfg.AuthorityURL)
	s.setString("metadata-file", os.Getenv("SPBATCH_METADATA_FILE"), &cfg.MetadataFile)
	s.setString("log-level", os.Getenv("SPBATCH_LOG_LEVEL"), &cfg.LogLevel)

	if err := s.setDuration("timeout", os.Getenv("SPBATCH_HTTP_TIMEOUT"), &cfg.HTTPTimeout); err != nil {
		return err
	}
	if err := s.setDuration("retry-initial", os.Getenv("SPBATCH_RETRY_INITIAL"), &cfg.RetryInitial); err != nil {
		return err
	}
	if err := s.setDuration("retry-max", os.Getenv("SPBATCH_RETRY_MAX"), &cfg.RetryMax); err != nil {
		return err
	}

	if err := s.setIntFromString("max-concurrency", os.Getenv("SPBATCH_MAX_CONCURRENCY"), &cfg.MaxConcurrency); err != nil {
		return err
	}
	if err := s.setIntFromString("max-retries", os.Getenv("SPBATCH_MAX_RETRIES"), &cfg.MaxRetries); err != nil {
		return err
	}

	s.setBoolFromString("prefer-graph", os.Getenv("SPBATCH_PREFER_GRAPH"), &cfg.PreferGraph)
	s.setBoolFromString("disable-rest", os.Getenv("SPBATCH_DISABLE_REST"), &cfg.DisableREST)
	s.setBoolFromString("disable-graph", os.Getenv("SPBATCH_DISABLE_GRAPH"), &cfg.DisableGraph)

	return nil
}
