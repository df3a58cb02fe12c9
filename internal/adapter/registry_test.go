package adapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"assetlens/internal/correlate"
	"assetlens/internal/domain"
)

// fakeScanner is a scanner source returning fixed records
type fakeScanner struct {
	kind     string
	instance string
	records  []domain.SourceRecord
	err      error
	started  bool
	startErr error
}

func (f *fakeScanner) Kind() string       { return f.kind }
func (f *fakeScanner) InstanceID() string { return f.instance }
func (f *fakeScanner) Scanner() bool      { return true }
func (f *fakeScanner) Start(ctx context.Context) error {
	f.started = f.startErr == nil
	return f.startErr
}
func (f *fakeScanner) Stop() error { return nil }
func (f *fakeScanner) Collect(ctx context.Context) ([]domain.SourceRecord, error) {
	return f.records, f.err
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	require.NoError(t, r.Register(NewStaticSource(KindCrowdStrike, "cs-1", nil), SourceConfig{Enabled: true}))
	err := r.Register(NewStaticSource(KindOsquery, "cs-1", nil), SourceConfig{Enabled: true})
	assert.Error(t, err, "duplicate instance id must be refused")

	err = r.Register(NewStaticSource(KindOsquery, "", nil), SourceConfig{})
	assert.Error(t, err)

	src, ok := r.Get("cs-1")
	require.True(t, ok)
	assert.Equal(t, KindCrowdStrike, src.Kind())

	infos := r.ListSources()
	require.Len(t, infos, 1)
	assert.Equal(t, SourceInfo{Kind: KindCrowdStrike, InstanceID: "cs-1", Enabled: true}, infos[0])
}

func TestRegistry_CollectScanners(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	seen := time.Now()

	good := &fakeScanner{
		kind:     "nmap",
		instance: "nmap-a",
		records:  []domain.SourceRecord{{ExternalID: "ip:10.0.0.1", IPs: []string{"10.0.0.1"}, LastSeen: seen}},
	}
	failing := &fakeScanner{kind: "nmap", instance: "nmap-b", err: errors.New("boom")}
	broken := &fakeScanner{kind: "nmap", instance: "nmap-c", startErr: errors.New("no binary"),
		records: []domain.SourceRecord{{ExternalID: "never"}}}
	disabled := &fakeScanner{kind: "nmap", instance: "nmap-d",
		records: []domain.SourceRecord{{ExternalID: "never"}}}

	require.NoError(t, r.Register(good, SourceConfig{Enabled: true}))
	require.NoError(t, r.Register(failing, SourceConfig{Enabled: true}))
	require.NoError(t, r.Register(broken, SourceConfig{Enabled: true}))
	require.NoError(t, r.Register(disabled, SourceConfig{Enabled: false}))
	require.NoError(t, r.Register(NewStaticSource(KindCrowdStrike, "cs-1", nil), SourceConfig{Enabled: true}))

	require.NoError(t, r.Start(context.Background()))
	assert.True(t, good.started)
	assert.False(t, disabled.started)

	records := r.CollectScanners(context.Background())
	require.Len(t, records, 1)
	assert.Equal(t, "nmap", records[0].SourceKind)
	assert.Equal(t, "nmap-a", records[0].SourceInstanceID)
	assert.Equal(t, "ip:10.0.0.1", records[0].ExternalID)

	assert.NoError(t, r.Stop())
}

func TestRegistry_CorrelationCommands(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	ctx := context.Background()

	require.NoError(t, r.Register(NewStaticSource(KindCrowdStrike, "cs-1", nil), SourceConfig{Enabled: true}))
	require.NoError(t, r.Register(NewStaticSource("custom", "custom-1", map[domain.OSType]string{
		domain.OSLinux: "cat /var/lib/custom/id",
	}), SourceConfig{Enabled: true, Commands: map[domain.OSType]string{
		domain.OSWindows: "type C:\\custom\\id",
	}}))
	require.NoError(t, r.Register(NewStaticSource(KindOsquery, "osq-1", nil), SourceConfig{
		Enabled:  true,
		Commands: map[domain.OSType]string{domain.OSLinux: "osqueryi --json 'select uuid from system_info'"},
	}))

	t.Run("defaults for known kind", func(t *testing.T) {
		table, err := r.CorrelationCommands(ctx, "cs-1")
		require.NoError(t, err)
		assert.Equal(t, DefaultCorrelationCommands[KindCrowdStrike], table)
	})

	t.Run("provider table merged with config", func(t *testing.T) {
		table, err := r.CorrelationCommands(ctx, "custom-1")
		require.NoError(t, err)
		assert.Equal(t, map[domain.OSType]string{
			domain.OSLinux:   "cat /var/lib/custom/id",
			domain.OSWindows: "type C:\\custom\\id",
		}, table)
	})

	t.Run("config overrides provider", func(t *testing.T) {
		table, err := r.CorrelationCommands(ctx, "osq-1")
		require.NoError(t, err)
		assert.Equal(t, "osqueryi --json 'select uuid from system_info'", table[domain.OSLinux])
		assert.Equal(t, DefaultCorrelationCommands[KindOsquery][domain.OSDarwin], table[domain.OSDarwin])
	})

	t.Run("returned table is a copy", func(t *testing.T) {
		table, err := r.CorrelationCommands(ctx, "cs-1")
		require.NoError(t, err)
		table[domain.OSLinux] = "tampered"
		assert.NotEqual(t, "tampered", DefaultCorrelationCommands[KindCrowdStrike][domain.OSLinux])
	})

	t.Run("unknown instance", func(t *testing.T) {
		_, err := r.CorrelationCommands(ctx, "nope")
		assert.ErrorIs(t, err, ErrUnknownSource)
	})
}

func TestRegistry_ParseCorrelationOutput(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	id, ok := r.ParseCorrelationOutput(KindCrowdStrike, correlate.Output{Text: `aid="0123456789abcdef0123456789abcdef".`})
	assert.True(t, ok)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", id)

	_, ok = r.ParseCorrelationOutput(KindCrowdStrike, correlate.Output{Text: "aid is not set."})
	assert.False(t, ok)

	id, ok = r.ParseCorrelationOutput("unknown-kind", correlate.Output{Text: "abc-123\n"})
	assert.True(t, ok)
	assert.Equal(t, "abc-123", id)

	r.RegisterParser("unknown-kind", func(out correlate.Output) (string, error) {
		return "", errors.New("never")
	})
	_, ok = r.ParseCorrelationOutput("unknown-kind", correlate.Output{Text: "abc-123\n"})
	assert.False(t, ok)
}

func TestRegistry_ImplementsCorrelatorInterfaces(t *testing.T) {
	var _ correlate.CommandSource = (*Registry)(nil)
	var _ correlate.OutputParser = (*Registry)(nil)
	var _ correlate.Executor = (*SSHExecutor)(nil)
	var _ Source = (*NmapSource)(nil)
	var _ CommandProvider = (*StaticSource)(nil)
}
