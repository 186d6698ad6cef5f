package cliconfig

import (
	"testing"
	"time"
)

func TestApplyEnvConfig(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		changed  map[string]bool
		initial  Config
		expected Config
		wantErr  bool
	}{
		{
			name: "applies all valid env vars",
			envVars: map[string]string{
				"SPBATCH_SITE_URL":        "https://env.sharepoint.com",
				"SPBATCH_TENANT_ID":       "env-tenant",
				"SPBATCH_HTTP_TIMEOUT":    "10m",
				"SPBATCH_MAX_CONCURRENCY": "6",
				"SPBATCH_DISABLE_GRAPH":   "true",
			},
			changed: map[string]bool{},
			initial: Config{},
			expected: Config{
				SiteURL:        "https://env.sharepoint.com",
				TenantID:       "env-tenant",
				HTTPTimeout:    10 * time.Minute,
				MaxConcurrency: 6,
				DisableGraph:   true,
			},
			wantErr: false,
		},
		{
			name: "respects changed flags",
			envVars: map[string]string{
				"SPBATCH_SITE_URL":  "https://env.sharepoint.com",
				"SPBATCH_TENANT_ID": "env-tenant",
			},
			changed: map[string]bool{"site-url": true},
			initial: Config{},
			expected: Config{
				TenantID: "env-tenant",
			},
			wantErr: false,
		},
		{
			name: "returns error for invalid duration",
			envVars: map[string]string{
				"SPBATCH_RETRY_MAX": "not-a-duration",
			},
			changed: map[string]bool{},
			initial: Config{},
			wantErr: true,
		},
		{
			name: "returns error for invalid int",
			envVars: map[string]string{
				"SPBATCH_MAX_RETRIES": "not-a-number",
			},
			changed: map[string]bool{},
			initial: Config{},
			wantErr: true,
		},
		{
			name: "handles bool '1' as true",
			envVars: map[string]string{
				"SPBATCH_DISABLE_REST": "1",
			},
			changed: map[string]bool{},
			initial: Config{},
			expected: Config{
				DisableREST: true,
			},
			wantErr: false,
		},
		{
			name: "handles bool 'false' as false",
			envVars: map[string]string{
				"SPBATCH_PREFER_GRAPH": "false",
			},
			changed:  map[string]bool{},
			initial:  Config{PreferGraph: true},
			expected: Config{PreferGraph: false},
			wantErr:  false,
		},
		{
			name: "handles all field types correctly",
			envVars: map[string]string{
				"SPBATCH_SITE_URL":        "https://contoso.sharepoint.com",
				"SPBATCH_GRAPH_URL":       "https://graph.microsoft.com/beta",
				"SPBATCH_TENANT_ID":       "tenant",
				"SPBATCH_CLIENT_ID":       "client",
				"SPBATCH_CLIENT_SECRET":   "secret",
				"SPBATCH_AUTHORITY_URL":   "https://login.example",
				"SPBATCH_PREFER_GRAPH":    "true",
				"SPBATCH_DISABLE_REST":    "false",
				"SPBATCH_DISABLE_GRAPH":   "1",
				"SPBATCH_MAX_CONCURRENCY": "2",
				"SPBATCH_HTTP_TIMEOUT":    "30s",
				"SPBATCH_MAX_RETRIES":     "5",
				"SPBATCH_RETRY_INITIAL":   "1s",
				"SPBATCH_RETRY_MAX":       "1m",
				"SPBATCH_METADATA_FILE":   "/etc/spbatch/entities.yaml",
				"SPBATCH_LOG_LEVEL":       "debug",
			},
			changed: map[string]bool{},
			initial: Config{},
			expected: Config{
				SiteURL:        "https://contoso.sharepoint.com",
				GraphURL:       "https://graph.microsoft.com/beta",
				TenantID:       "tenant",
				ClientID:       "client",
				ClientSecret:   "secret",
				AuthorityURL:   "https://login.example",
				PreferGraph:    true,
				DisableREST:    false,
				DisableGraph:   true,
				MaxConcurrency: 2,
				HTTPTimeout:    30 * time.Second,
				MaxRetries:     5,
				RetryInitial:   time.Second,
				RetryMax:       time.Minute,
				MetadataFile:   "/etc/spbatch/entities.yaml",
				LogLevel:       "debug",
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := tt.initial
			err := ApplyEnvConfig(&cfg, tt.changed)

			if tt.wantErr && err == nil {
				t.Error("ApplyEnvConfig() expected error but got nil")
				return
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ApplyEnvConfig() unexpected error: %v", err)
				return
			}

			if !tt.wantErr && cfg != tt.expected {
				t.Errorf("ApplyEnvConfig() = %+v, want %+v", cfg, tt.expected)
			}
		})
	}
}

// Integration test: precedence order (CLI > Env > File)
func TestConfigPrecedence(t *testing.T) {
	trueVal := true

	// Setup file config
	fileConf := FileConfig{
		SiteURL:     "https://file.sharepoint.com",
		TenantID:    "file-tenant",
		DisableREST: &trueVal,
	}

	// Setup env vars
	t.Setenv("SPBATCH_SITE_URL", "https://env.sharepoint.com")
	t.Setenv("SPBATCH_TENANT_ID", "env-tenant")
	t.Setenv("SPBATCH_CLIENT_ID", "env-client")

	// Simulate CLI flags
	changed := map[string]bool{
		"site-url": true, // CLI flag was set for the site
	}

	cfg := Config{
		SiteURL: "https://cli.sharepoint.com", // This should remain (CLI wins)
	}

	// Apply file config
	if err := ApplyFileConfig(&cfg, fileConf, changed); err != nil {
		t.Fatalf("ApplyFileConfig failed: %v", err)
	}

	// Apply env config
	if err := ApplyEnvConfig(&cfg, changed); err != nil {
		t.Fatalf("ApplyEnvConfig failed: %v", err)
	}

	// Verify precedence: CLI > Env > File
	if cfg.SiteURL != "https://cli.sharepoint.com" {
		t.Errorf("SiteURL = %v, want https://cli.sharepoint.com (CLI should win)", cfg.SiteURL)
	}
	if cfg.TenantID != "env-tenant" {
		t.Errorf("TenantID = %v, want env-tenant (env should override file)", cfg.TenantID)
	}
	if cfg.ClientID != "env-client" {
		t.Errorf("ClientID = %v, want env-client (env should set)", cfg.ClientID)
	}
	if cfg.DisableREST != true {
		t.Errorf("DisableREST = %v, want true (file should set)", cfg.DisableREST)
	}
}
