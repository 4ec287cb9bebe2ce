package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validConfig = `
remote:
  base_url: https://api.example.net
state:
  dir: /tmp/logpatrol
services:
  - service_id: svc-1
    token: tok-1
    interval: 5m
    feeds:
      - category: kill
        destination: pvp
        cooldown: 10m
notify:
  webhooks:
    pvp: https://hooks.example.net/pvp
logging:
  level: debug
  format: console
`

func TestLoad_ValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Remote.BaseURL != "https://api.example.net" {
		t.Errorf("base URL: got %q", cfg.Remote.BaseURL)
	}
	if len(cfg.Services) != 1 || cfg.Services[0].ServiceID != "svc-1" {
		t.Fatalf("services: got %+v", cfg.Services)
	}
	if cfg.Services[0].Interval != 5*time.Minute {
		t.Errorf("interval: got %v", cfg.Services[0].Interval)
	}
	if cfg.Services[0].Feeds[0].Cooldown != 10*time.Minute {
		t.Errorf("feed cooldown: got %v", cfg.Services[0].Feeds[0].Cooldown)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "console" {
		t.Errorf("logging: got %+v", cfg.Logging)
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "remote:\n  base_url: https://api.example.net\nnotify: {}\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.State.Dir != DefaultStateDir {
		t.Errorf("state dir default: got %q", cfg.State.Dir)
	}
	if cfg.Monitor.LogDir != DefaultLogDir {
		t.Errorf("log dir default: got %q", cfg.Monitor.LogDir)
	}
	if cfg.Monitor.Interval != DefaultInterval {
		t.Errorf("interval default: got %v", cfg.Monitor.Interval)
	}
	if cfg.Logging.Level != DefaultLogLevel || cfg.Logging.Format != DefaultLogFormat {
		t.Errorf("logging defaults: got %+v", cfg.Logging)
	}
}

func TestLoad_ExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("LP_TEST_TOKEN", "secret-token")

	cfg, err := Load(writeConfig(t, `
remote:
  base_url: https://api.example.net
services:
  - service_id: svc-1
    token: ${LP_TEST_TOKEN}
notify: {}
`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Services[0].Token != "secret-token" {
		t.Errorf("env not expanded: got %q", cfg.Services[0].Token)
	}
}

func TestLoad_ServiceFallsBackToGlobalFeeds(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
remote:
  base_url: https://api.example.net
services:
  - service_id: svc-1
    token: tok
notify:
  webhooks:
    alerts: https://hooks.example.net/a
  feeds:
    - category: raid
      destination: alerts
`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.Services[0].Feeds) != 1 || cfg.Services[0].Feeds[0].Category != "raid" {
		t.Errorf("global feeds must apply to services without their own: %+v", cfg.Services[0].Feeds)
	}
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "missing base URL",
			content: "notify: {}\n",
		},
		{
			name: "service without token",
			content: `
remote:
  base_url: https://api.example.net
services:
  - service_id: svc-1
notify: {}
`,
		},
		{
			name: "feed with unknown category",
			content: `
remote:
  base_url: https://api.example.net
notify:
  feeds:
    - category: nonsense
      destination: alerts
`,
		},
		{
			name: "feed without destination",
			content: `
remote:
  base_url: https://api.example.net
notify:
  feeds:
    - category: kill
`,
		},
		{
			name: "feed destination without webhook",
			content: `
remote:
  base_url: https://api.example.net
notify:
  webhooks:
    other: https://hooks.example.net/o
  feeds:
    - category: kill
      destination: missing
`,
		},
		{
			name: "feed destination with no webhooks at all",
			content: `
remote:
  base_url: https://api.example.net
notify:
  feeds:
    - category: raid
      destination: alerts
`,
		},
		{
			name: "feed with bad severity",
			content: `
remote:
  base_url: https://api.example.net
notify:
  feeds:
    - category: kill
      destination: pvp
      severity: urgent
`,
		},
		{
			name: "kafka mirror without topic",
			content: `
remote:
  base_url: https://api.example.net
notify: {}
mirrors:
  kafka:
    brokers: ["localhost:9092"]
`,
		},
		{
			name: "elasticsearch mirror without index",
			content: `
remote:
  base_url: https://api.example.net
notify: {}
mirrors:
  elasticsearch:
    addresses: ["http://localhost:9200"]
`,
		},
		{
			name: "archive without bucket",
			content: `
remote:
  base_url: https://api.example.net
notify: {}
archive:
  region: eu-central-1
`,
		},
		{
			name: "enabled spool without dir",
			content: `
remote:
  base_url: https://api.example.net
notify: {}
spool:
  enabled: true
`,
		},
		{
			name: "bad log level",
			content: `
remote:
  base_url: https://api.example.net
notify: {}
logging:
  level: verbose
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoad_MonitoringOnlyWithoutWebhooks(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
remote:
  base_url: https://api.example.net
services:
  - service_id: svc-1
    token: tok
notify: {}
`))
	if err != nil {
		t.Fatalf("a deployment with no notification destinations must load: %v", err)
	}
	if len(cfg.Notify.Webhooks) != 0 {
		t.Errorf("webhooks: got %+v", cfg.Notify.Webhooks)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default configuration must validate, got %v", err)
	}
}
