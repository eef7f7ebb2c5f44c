package config

import (
	"os"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// DatabaseConfig.GetDSN
// ---------------------------------------------------------------------------

func TestGetDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{
			name: "standard config",
			cfg: DatabaseConfig{
				Host:     "localhost",
				Port:     5432,
				User:     "marketplace",
				Password: "secret",
				Name:     "marketplace",
				SSLMode:  "require",
			},
			want: "host=localhost port=5432 user=marketplace password=secret dbname=marketplace sslmode=require",
		},
		{
			name: "empty password",
			cfg: DatabaseConfig{
				Host:    "db.internal",
				Port:    5433,
				User:    "svc",
				Name:    "shop",
				SSLMode: "disable",
			},
			want: "host=db.internal port=5433 user=svc password= dbname=shop sslmode=disable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.GetDSN(); got != tt.want {
				t.Errorf("GetDSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// ServerConfig.GetAddress
// ---------------------------------------------------------------------------

func TestGetAddress(t *testing.T) {
	tests := []struct {
		name string
		cfg  ServerConfig
		want string
	}{
		{"default", ServerConfig{Host: "0.0.0.0", Port: 8080}, "0.0.0.0:8080"},
		{"localhost", ServerConfig{Host: "localhost", Port: 3000}, "localhost:3000"},
		{"empty host", ServerConfig{Host: "", Port: 8080}, ":8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.GetAddress(); got != tt.want {
				t.Errorf("GetAddress() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Config.Validate
// ---------------------------------------------------------------------------

func minimalValidConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Host: "localhost",
			Name: "marketplace",
			User: "marketplace",
		},
		ChamberMaster: ChamberMasterConfig{Timeout: 30 * time.Second},
		Logging:       LoggingConfig{Level: "info"},
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid minimal config passes", func(t *testing.T) {
		if err := minimalValidConfig().Validate(); err != nil {
			t.Errorf("Validate() unexpected error: %v", err)
		}
	})

	t.Run("invalid server port 0", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Server.Port = 0
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for port 0, got nil")
		}
	})

	t.Run("missing database host", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Database.Host = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for empty database host, got nil")
		}
	})

	t.Run("missing database user", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Database.User = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for empty database user, got nil")
		}
	})

	t.Run("mock directory without fixture path", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.ChamberMaster.Mock = true
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for empty mock_path, got nil")
		}
	})

	t.Run("zero directory timeout", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.ChamberMaster.Timeout = 0
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for zero timeout, got nil")
		}
	})

	t.Run("redis enabled without addr", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Redis.Enabled = true
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for empty redis addr, got nil")
		}
	})

	t.Run("negative trigger limit", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Sync.TriggersPerHour = -1
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for negative triggers_per_hour, got nil")
		}
	})

	t.Run("notifications enabled without smtp host", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Notifications.Enabled = true
		cfg.Notifications.SMTP.From = "noreply@example.com"
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for empty smtp host, got nil")
		}
	})

	t.Run("notifications enabled without from", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Notifications.Enabled = true
		cfg.Notifications.SMTP.Host = "smtp.example.com"
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for empty smtp from, got nil")
		}
	})

	t.Run("invalid logging level", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Logging.Level = "verbose"
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for invalid logging level, got nil")
		}
	})

	for _, level := range []string{"debug", "info", "warn", "error"} {
		level := level
		t.Run("valid logging level "+level, func(t *testing.T) {
			cfg := minimalValidConfig()
			cfg.Logging.Level = level
			if err := cfg.Validate(); err != nil {
				t.Errorf("Validate() unexpected error for level %q: %v", level, err)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Load
// ---------------------------------------------------------------------------

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", "config-test-*.yaml")
	if err != nil {
		t.Fatal("CreateTemp:", err)
	}
	t.Cleanup(func() { os.Remove(f.Name()) })
	if _, err := f.WriteString(content); err != nil {
		t.Fatal("WriteString:", err)
	}
	f.Close()
	return f.Name()
}

func TestLoad_WithConfigFile(t *testing.T) {
	const content = `
server:
  host: "testhost"
  port: 9999
database:
  host: "dbhost"
  name: "testdb"
  user: "testuser"
chambermaster:
  mock: true
  mock_path: "/tmp/members.json"
sync:
  triggers_per_hour: 2
logging:
  level: "debug"
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Host != "testhost" {
		t.Errorf("Server.Host = %q, want testhost", cfg.Server.Host)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Database.Name != "testdb" {
		t.Errorf("Database.Name = %q, want testdb", cfg.Database.Name)
	}
	if !cfg.ChamberMaster.Mock || cfg.ChamberMaster.MockPath != "/tmp/members.json" {
		t.Errorf("ChamberMaster = %+v, want mock with /tmp/members.json", cfg.ChamberMaster)
	}
	if cfg.Sync.TriggersPerHour != 2 {
		t.Errorf("Sync.TriggersPerHour = %d, want 2", cfg.Sync.TriggersPerHour)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	const content = `
database:
  host: "localhost"
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("default Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.SSLMode != "require" {
		t.Errorf("default Database.SSLMode = %q, want require", cfg.Database.SSLMode)
	}
	if cfg.ChamberMaster.Timeout != 30*time.Second {
		t.Errorf("default ChamberMaster.Timeout = %v, want 30s", cfg.ChamberMaster.Timeout)
	}
	if cfg.ChamberMaster.Mock {
		t.Error("default ChamberMaster.Mock = true, want false")
	}
	if cfg.Sync.LockTTL != 10*time.Minute {
		t.Errorf("default Sync.LockTTL = %v, want 10m", cfg.Sync.LockTTL)
	}
	if cfg.Sync.TriggersPerHour != 6 {
		t.Errorf("default Sync.TriggersPerHour = %d, want 6", cfg.Sync.TriggersPerHour)
	}
	if cfg.Security.RateLimiting.RequestsPerMinute != 120 {
		t.Errorf("default RequestsPerMinute = %d, want 120", cfg.Security.RateLimiting.RequestsPerMinute)
	}
	if cfg.Notifications.Enabled {
		t.Error("default Notifications.Enabled = true, want false")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MKT_SERVER_PORT", "7070")
	t.Setenv("MKT_REDIS_ENABLED", "true")
	t.Setenv("MKT_REDIS_ADDR", "cache:6379")
	path := writeTempConfig(t, "logging:\n  level: info\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070", cfg.Server.Port)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Addr != "cache:6379" {
		t.Errorf("Redis = %+v, want enabled at cache:6379", cfg.Redis)
	}
}

func TestLoad_ChamberMasterMockAlias(t *testing.T) {
	t.Setenv("CHAMBERMASTER_MOCK", "true")
	t.Setenv("CHAMBERMASTER_MOCK_PATH", "/srv/fixtures/cm.json")
	path := writeTempConfig(t, "logging:\n  level: info\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.ChamberMaster.Mock {
		t.Error("ChamberMaster.Mock = false, want true from CHAMBERMASTER_MOCK")
	}
	if cfg.ChamberMaster.MockPath != "/srv/fixtures/cm.json" {
		t.Errorf("ChamberMaster.MockPath = %q, want /srv/fixtures/cm.json", cfg.ChamberMaster.MockPath)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_DB_PASS", "mysecret")
	const content = `
database:
  password: "${TEST_DB_PASS}"
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Database.Password != "mysecret" {
		t.Errorf("Database.Password = %q, want mysecret", cfg.Database.Password)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTempConfig(t, "server: [unclosed")
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}
