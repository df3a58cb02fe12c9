package codec

import (
	"io"

	"assetlens/internal/domain"
)

// Report is what a run of the correlation passes produced
type Report struct {
	Entities []domain.Entity          `json:"entities"`
	Edges    []domain.CorrelationEdge `json:"edges"`
	Warnings []domain.Warning         `json:"warnings"`
}

// Importer interface for reading source records from various formats
type Importer interface {
	Parse(r io.Reader) ([]domain.SourceRecord, error)
	Format() string
}

// Exporter interface for writing reports to various formats
type Exporter interface {
	Export(report *Report, w io.Writer) error
	Format() string
}

// ForFormat returns the codec registered for a format name
func ForFormat(format string) (Importer, Exporter, bool) {
	switch format {
	case "json":
		c := NewJSONCodec()
		return c, c, true
	case "yaml", "yml":
		c := NewYAMLCodec()
		return c, c, true
	}
	return nil, nil, false
}
