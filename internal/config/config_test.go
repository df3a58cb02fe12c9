package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assetlens/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "./assetlens.db", cfg.Database.Path)
	assert.Equal(t, 5*time.Minute, cfg.Correlation.ExecutionTimeout.Duration())
	assert.Equal(t, 22, cfg.SSH.Port)
	assert.Equal(t, 5, cfg.SSH.MaxConcurrent)
	assert.Equal(t, "nmap", cfg.Nmap.InstanceID)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromPath(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /var/lib/assetlens/assetlens.db
correlation:
  execution_timeout: 90s
ssh:
  enabled: true
  user: auditor
  key_path: /etc/assetlens/id_ed25519
  kinds: [machineid, osquery]
  dial_rate: 2.5
  command_timeout: 10s
nmap:
  enabled: true
  instance_id: nmap-dc1
  targets: [10.0.0.0/24]
  ports: "22,3389"
sources:
  - kind: crowdstrike
    instance_id: cs-prod
  - kind: osquery
    instance_id: osq-prod
    commands:
      linux: osqueryi --json "select uuid from system_info"
`)

	cfg, got, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, path, got)

	assert.Equal(t, "/var/lib/assetlens/assetlens.db", cfg.Database.Path)
	assert.Equal(t, 90*time.Second, cfg.Correlation.ExecutionTimeout.Duration())
	assert.Equal(t, "auditor", cfg.SSH.User)
	assert.Equal(t, []string{"machineid", "osquery"}, cfg.SSH.Kinds)
	assert.Equal(t, 2.5, cfg.SSH.DialRate)
	assert.Equal(t, 10*time.Second, cfg.SSH.CommandTimeout.Duration())
	assert.Equal(t, 10*time.Second, cfg.SSH.ConnectTimeout.Duration(), "default applied")
	assert.Equal(t, 22, cfg.SSH.Port)
	assert.Equal(t, "nmap-dc1", cfg.Nmap.InstanceID)
	require.Len(t, cfg.Sources, 2)
	assert.Nil(t, cfg.Sources[0].CommandTable())
	assert.Equal(t, map[domain.OSType]string{
		domain.OSLinux: `osqueryi --json "select uuid from system_info"`,
	}, cfg.Sources[1].CommandTable())
}

func TestLoadFromPath_EmptyFile(t *testing.T) {
	cfg, _, err := LoadFromPath(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFromPath_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "unknown key",
			body: "databse:\n  path: x\n",
			want: "parse config",
		},
		{
			name: "bad duration",
			body: "correlation:\n  execution_timeout: soon\n",
			want: "parse config",
		},
		{
			name: "duplicate instance id",
			body: "sources:\n  - {kind: crowdstrike, instance_id: a}\n  - {kind: osquery, instance_id: a}\n",
			want: "duplicate instance id",
		},
		{
			name: "instance id clashes with scanner",
			body: "nmap:\n  enabled: true\n  instance_id: scan\nsources:\n  - {kind: crowdstrike, instance_id: scan}\n",
			want: "duplicate instance id",
		},
		{
			name: "unknown os key",
			body: "sources:\n  - kind: crowdstrike\n    instance_id: cs\n    commands:\n      solaris: hostid\n",
			want: "unknown os type",
		},
		{
			name: "missing kind",
			body: "sources:\n  - instance_id: cs\n",
			want: "kind is required",
		},
		{
			name: "ssh without credentials",
			body: "ssh:\n  enabled: true\n  user: root\n",
			want: "key_path or password",
		},
		{
			name: "ssh port out of range",
			body: "ssh:\n  port: 70000\n",
			want: "out of range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := LoadFromPath(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadFromPath_Missing(t *testing.T) {
	_, _, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestSaveAndLoad(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Nmap.Targets = []string{"192.168.1.0/24"}
	cfg.Sources = []SourceConfig{{Kind: "machineid", InstanceID: "mid", Commands: map[string]string{"linux": "cat /etc/machine-id"}}}

	require.NoError(t, cfg.Save(configPath))

	loaded, _, err := LoadFromPath(configPath)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestFindConfigPath(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, DefaultConfig().Save(filepath.Join(tmpDir, ConfigFileName)))

	t.Chdir(tmpDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "xdg"))

	found := FindConfigPath()
	assert.Equal(t, ConfigFileName, filepath.Base(found))

	explicit := filepath.Join(tmpDir, "explicit.yaml")
	require.NoError(t, DefaultConfig().Save(explicit))
	t.Setenv(EnvConfigPath, explicit)
	assert.Equal(t, explicit, FindConfigPath())

	// A missing explicit path falls back to the search order
	t.Setenv(EnvConfigPath, "/nonexistent/path.yaml")
	assert.Equal(t, ConfigFileName, filepath.Base(FindConfigPath()))
}

func TestDuration(t *testing.T) {
	d := Duration(5 * time.Minute)
	assert.Equal(t, 5*time.Minute, d.Duration())

	marshaled, err := d.MarshalYAML()
	require.NoError(t, err)
	assert.Equal(t, "5m0s", marshaled)
}
