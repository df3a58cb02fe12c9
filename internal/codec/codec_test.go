package codec

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"assetlens/internal/domain"
)

var raisedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func sampleReport() *Report {
	return &Report{
		Entities: []domain.Entity{{
			ID: "E1",
			Records: []domain.SourceRecord{{
				SourceKind:       "crowdstrike",
				SourceInstanceID: "cs-1",
				ExternalID:       "aid-1",
				Hostname:         "web01",
				IPs:              []string{"10.0.0.5"},
				OS:               "linux",
				LastSeen:         raisedAt,
			}},
		}},
		Edges: []domain.CorrelationEdge{{
			Left:          domain.RecordRef{SourceKind: "nmap", SourceInstanceID: "nmap-1", ExternalID: "n1"},
			Right:         domain.RecordRef{SourceKind: "crowdstrike", ExternalID: "aid-1"},
			Reason:        domain.ReasonLogic,
			Justification: "shared hostname",
		}},
		Warnings: []domain.Warning{{
			Kind:     domain.WarningContradiction,
			Message:  "conflict",
			Values:   []string{"a", "b"},
			EntityID: "E1",
			RaisedAt: raisedAt,
		}},
	}
}

func TestForFormat(t *testing.T) {
	for _, format := range []string{"json", "yaml", "yml"} {
		imp, exp, ok := ForFormat(format)
		require.True(t, ok, format)
		assert.NotNil(t, imp)
		assert.NotNil(t, exp)
	}

	_, _, ok := ForFormat("ansible")
	assert.False(t, ok)
}

func TestJSONCodec(t *testing.T) {
	c := NewJSONCodec()
	assert.Equal(t, "json", c.Format())

	t.Run("parse records", func(t *testing.T) {
		records, err := c.Parse(strings.NewReader(`[
			{"source_kind": "nmap", "source_instance_id": "nmap-1", "hostname": "web01", "ips": ["10.0.0.5"]}
		]`))
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "nmap-1", records[0].SourceInstanceID)
		assert.Equal(t, []string{"10.0.0.5"}, records[0].IPs)
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := c.Parse(strings.NewReader(`[{"kind": "nmap"}]`))
		assert.Error(t, err)
	})

	t.Run("export report", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, c.Export(sampleReport(), &buf))

		var decoded Report
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, *sampleReport(), decoded)
	})
}

func TestYAMLCodec(t *testing.T) {
	c := NewYAMLCodec()
	assert.Equal(t, "yaml", c.Format())

	t.Run("parse inventory", func(t *testing.T) {
		records, err := c.Parse(strings.NewReader(`
records:
  - kind: nmap
    instance: nmap-1
    hostname: web01
    macs: ["aa:bb:cc:dd:ee:01"]
    ips: ["10.0.0.5"]
    os: Linux 5.x
    last_seen: 2024-05-01T12:00:00Z
`))
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, domain.SourceRecord{
			SourceKind:       "nmap",
			SourceInstanceID: "nmap-1",
			Hostname:         "web01",
			MACs:             []string{"aa:bb:cc:dd:ee:01"},
			IPs:              []string{"10.0.0.5"},
			OS:               "Linux 5.x",
			LastSeen:         raisedAt,
		}, records[0])
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := c.Parse(strings.NewReader("records:\n  - kind: nmap\n    color: red\n"))
		assert.Error(t, err)
	})

	t.Run("export report", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, c.Export(sampleReport(), &buf))

		var decoded yamlReport
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
		require.Len(t, decoded.Entities, 1)
		assert.Equal(t, "cs-1", decoded.Entities[0].Records[0].Instance)
		require.Len(t, decoded.Edges, 1)
		assert.Equal(t, "nmap[nmap-1]/n1", decoded.Edges[0].Left)
		assert.Equal(t, "crowdstrike/aid-1", decoded.Edges[0].Right)
		require.Len(t, decoded.Warnings, 1)
		assert.Equal(t, "CORRELATION_CONTRADICTION", decoded.Warnings[0].Kind)
		assert.Equal(t, "E1", decoded.Warnings[0].EntityID)
	})
}
