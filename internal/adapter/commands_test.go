package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assetlens/internal/correlate"
	"assetlens/internal/domain"
)

func TestParseMachineID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"systemd machine-id", "0f4c3e2a9b8d4c1e8a7b6c5d4e3f2a1b\n", "0f4c3e2a9b8d4c1e8a7b6c5d4e3f2a1b", false},
		{"windows guid", "  4C4C4544-0042-3510-8052-B4C04F564433\r\n", "4c4c4544-0042-3510-8052-b4c04f564433", false},
		{"empty", "   \n", "", true},
		{"error text", "cat: /etc/machine-id: No such file or directory", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseMachineID(correlate.Output{Text: tt.input, OSType: domain.OSLinux})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFalconAID(t *testing.T) {
	const want = "0123456789abcdef0123456789abcdef"
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"linux falconctl", `aid="0123456789abcdef0123456789abcdef".` + "\n", false},
		{"windows registry", "\nHKEY_LOCAL_MACHINE\\SYSTEM\\CurrentControlSet\\services\\CSAgent\\Sim\n    AG    REG_BINARY    0123456789ABCDEF0123456789ABCDEF\n", false},
		{"macos agent info", "   agentID: 01234567-89AB-CDEF-0123-456789ABCDEF\n", false},
		{"aid not set", "aid is not set.\n", true},
		{"truncated", `aid="0123456789abcdef"`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFalconAID(correlate.Output{Text: tt.input})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestParseOsqueryUUID(t *testing.T) {
	got, err := parseOsqueryUUID(correlate.Output{Text: `[
  {"uuid":"4C4C4544-0042-3510-8052-B4C04F564433"}
]`})
	require.NoError(t, err)
	assert.Equal(t, "4c4c4544-0042-3510-8052-b4c04f564433", got)

	_, err = parseOsqueryUUID(correlate.Output{Text: "[]"})
	assert.Error(t, err)

	_, err = parseOsqueryUUID(correlate.Output{Text: "osqueryi: command not found"})
	assert.Error(t, err)
}

func TestParseSingleLine(t *testing.T) {
	got, err := parseSingleLine(correlate.Output{Text: "  agent-42 \n"})
	require.NoError(t, err)
	assert.Equal(t, "agent-42", got)

	_, err = parseSingleLine(correlate.Output{Text: "line one\nline two"})
	assert.Error(t, err)

	_, err = parseSingleLine(correlate.Output{Text: "\n"})
	assert.Error(t, err)
}

func TestDefaultCorrelationCommands_CoverKnownOSTypes(t *testing.T) {
	for kind, table := range DefaultCorrelationCommands {
		for _, os := range domain.KnownOSTypes {
			assert.NotEmpty(t, table[os], "kind %s has no command for %s", kind, os)
		}
		_, ok := DefaultParsers[kind]
		assert.True(t, ok, "kind %s has no parser", kind)
	}
}
