package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"assetlens/internal/adapter"
	"assetlens/internal/config"
	"assetlens/internal/domain"
)

func TestRegisterSources(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.TCPScan.Enabled = true
	cfg.TCPScan.Targets = []string{"127.0.0.1/32"}
	cfg.Sources = []config.SourceConfig{
		{Kind: adapter.KindCrowdStrike, InstanceID: "cs-1", Commands: map[string]string{"linux": "falcon-aid"}},
		{Kind: "lansweeper", InstanceID: "lw-1", Scanner: true, Disabled: true},
	}

	registry := adapter.NewRegistry(zap.NewNop())
	require.NoError(t, registerSources(registry, cfg, zap.NewNop()))

	infos := registry.ListSources()
	require.Len(t, infos, 3)

	_, ok := registry.Get("tcpscan")
	assert.True(t, ok)

	table, err := registry.CorrelationCommands(t.Context(), "cs-1")
	require.NoError(t, err)
	assert.Equal(t, "falcon-aid", table[domain.OSLinux])
	assert.Equal(t, adapter.DefaultCorrelationCommands[adapter.KindCrowdStrike][domain.OSWindows], table[domain.OSWindows])

	t.Run("duplicate instance", func(t *testing.T) {
		cfg.Sources = append(cfg.Sources, config.SourceConfig{Kind: "other", InstanceID: "cs-1"})
		assert.Error(t, registerSources(adapter.NewRegistry(zap.NewNop()), cfg, zap.NewNop()))
	})
}

func TestImportRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "inventory.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
records:
  - kind: ignored
    instance: lw-1
    hostname: web01
    ips: ["10.0.0.5"]
  - kind: lansweeper
    instance: lw-9
    hostname: db01
`), 0o600))

	cfg := config.DefaultConfig()
	cfg.Sources = []config.SourceConfig{
		{Kind: "lansweeper", InstanceID: "lw-1", Scanner: true},
		{Kind: adapter.KindCrowdStrike, InstanceID: "cs-1"},
	}
	scanners := scannerInstances(cfg)
	assert.Equal(t, map[string]string{"lw-1": "lansweeper"}, scanners)

	records, err := importRecords(path, scanners, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "lansweeper", records[0].SourceKind)
	assert.Equal(t, "web01", records[0].Hostname)

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := importRecords(filepath.Join(dir, "inventory.csv"), scanners, zap.NewNop())
		assert.ErrorContains(t, err, "unsupported format")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := importRecords(filepath.Join(dir, "missing.json"), scanners, zap.NewNop())
		assert.Error(t, err)
	})
}

func TestSSHExecutorConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SSH.User = "auditor"
	cfg.SSH.Kinds = []string{adapter.KindMachineID}
	cfg.SSH.DialRate = 2

	ec := sshExecutorConfig(cfg.SSH)
	assert.Equal(t, "auditor", ec.User)
	assert.Equal(t, 22, ec.Port)
	assert.Equal(t, cfg.SSH.CommandTimeout.Duration(), ec.CommandTimeout)
	assert.Equal(t, []string{adapter.KindMachineID}, ec.Kinds)
	assert.Equal(t, 2.0, ec.DialRate)
}

func TestNewLogger(t *testing.T) {
	logger, err := newLogger("debug")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	_, err = newLogger("loud")
	assert.Error(t, err)
}
