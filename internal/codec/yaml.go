package codec

import (
	"fmt"
	"io"
	"time"

	"assetlens/internal/domain"

	"gopkg.in/yaml.v3"
)

// YAMLCodec handles YAML import/export
type YAMLCodec struct{}

// NewYAMLCodec creates a new YAML codec
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

// yamlInventory is the YAML structure for imported records
type yamlInventory struct {
	Records []yamlRecord `yaml:"records"`
}

type yamlRecord struct {
	Kind       string    `yaml:"kind"`
	Instance   string    `yaml:"instance"`
	ExternalID string    `yaml:"external_id,omitempty"`
	Hostname   string    `yaml:"hostname,omitempty"`
	MACs       []string  `yaml:"macs,omitempty"`
	IPs        []string  `yaml:"ips,omitempty"`
	OS         string    `yaml:"os,omitempty"`
	LastSeen   time.Time `yaml:"last_seen,omitempty"`
}

// yamlReport is the YAML structure for exported reports
type yamlReport struct {
	Entities []yamlEntity  `yaml:"entities"`
	Edges    []yamlEdge    `yaml:"edges"`
	Warnings []yamlWarning `yaml:"warnings"`
}

type yamlEntity struct {
	ID      string       `yaml:"id"`
	Records []yamlRecord `yaml:"records"`
}

type yamlEdge struct {
	Left          string `yaml:"left"`
	Right         string `yaml:"right"`
	Reason        string `yaml:"reason"`
	Justification string `yaml:"justification"`
}

type yamlWarning struct {
	Kind     string    `yaml:"kind"`
	Message  string    `yaml:"message"`
	Values   []string  `yaml:"values,omitempty"`
	EntityID string    `yaml:"entity,omitempty"`
	RaisedAt time.Time `yaml:"raised_at"`
}

// Parse reads a YAML inventory of source records
func (c *YAMLCodec) Parse(r io.Reader) ([]domain.SourceRecord, error) {
	var inv yamlInventory
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&inv); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	records := make([]domain.SourceRecord, 0, len(inv.Records))
	for _, yr := range inv.Records {
		records = append(records, domain.SourceRecord{
			SourceKind:       yr.Kind,
			SourceInstanceID: yr.Instance,
			ExternalID:       yr.ExternalID,
			Hostname:         yr.Hostname,
			MACs:             yr.MACs,
			IPs:              yr.IPs,
			OS:               yr.OS,
			LastSeen:         yr.LastSeen,
		})
	}

	return records, nil
}

// Export writes a report as YAML, flattening edge refs to strings
func (c *YAMLCodec) Export(report *Report, w io.Writer) error {
	yr := yamlReport{
		Entities: make([]yamlEntity, 0, len(report.Entities)),
		Edges:    make([]yamlEdge, 0, len(report.Edges)),
		Warnings: make([]yamlWarning, 0, len(report.Warnings)),
	}

	for _, entity := range report.Entities {
		ye := yamlEntity{ID: entity.ID, Records: make([]yamlRecord, 0, len(entity.Records))}
		for _, r := range entity.Records {
			ye.Records = append(ye.Records, toYAMLRecord(r))
		}
		yr.Entities = append(yr.Entities, ye)
	}

	for _, edge := range report.Edges {
		yr.Edges = append(yr.Edges, yamlEdge{
			Left:          edge.Left.String(),
			Right:         edge.Right.String(),
			Reason:        string(edge.Reason),
			Justification: edge.Justification,
		})
	}

	for _, warning := range report.Warnings {
		yr.Warnings = append(yr.Warnings, yamlWarning{
			Kind:     string(warning.Kind),
			Message:  warning.Message,
			Values:   warning.Values,
			EntityID: warning.EntityID,
			RaisedAt: warning.RaisedAt,
		})
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()

	if err := encoder.Encode(&yr); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	return nil
}

func toYAMLRecord(r domain.SourceRecord) yamlRecord {
	return yamlRecord{
		Kind:       r.SourceKind,
		Instance:   r.SourceInstanceID,
		ExternalID: r.ExternalID,
		Hostname:   r.Hostname,
		MACs:       r.MACs,
		IPs:        r.IPs,
		OS:         r.OS,
		LastSeen:   r.LastSeen,
	}
}
