package codec

import (
	"encoding/json"
	"fmt"
	"io"

	"assetlens/internal/domain"
)

// JSONCodec handles JSON import/export
type JSONCodec struct{}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Format returns the codec format identifier
func (c *JSONCodec) Format() string {
	return "json"
}

// Parse reads a JSON array of source records
func (c *JSONCodec) Parse(r io.Reader) ([]domain.SourceRecord, error) {
	var records []domain.SourceRecord
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	return records, nil
}

// Export writes a report as indented JSON
func (c *JSONCodec) Export(report *Report, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(report); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}
