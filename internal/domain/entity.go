package domain

// Entity is the caller-maintained aggregate believed to represent one real asset.
// It holds at most one record per source instance.
type Entity struct {
	ID      string         `json:"id"`
	Records []SourceRecord `json:"records"`
}

// RecordFor returns the record contributed by the given source instance
func (e *Entity) RecordFor(instanceID string) (SourceRecord, bool) {
	for _, r := range e.Records {
		if r.SourceInstanceID == instanceID {
			return r, true
		}
	}
	return SourceRecord{}, false
}

// RecordsOfKind returns every record contributed by sources of the given kind
func (e *Entity) RecordsOfKind(kind string) []SourceRecord {
	var out []SourceRecord
	for _, r := range e.Records {
		if r.SourceKind == kind {
			out = append(out, r)
		}
	}
	return out
}

// HasKind reports whether any record comes from a source of the given kind
func (e *Entity) HasKind(kind string) bool {
	for _, r := range e.Records {
		if r.SourceKind == kind {
			return true
		}
	}
	return false
}

// HasRecord reports whether the entity already holds the given kind/id pair
func (e *Entity) HasRecord(kind, externalID string) bool {
	for _, r := range e.Records {
		if r.SourceKind == kind && r.ExternalID == externalID {
			return true
		}
	}
	return false
}

// OSType returns the single OS type reported across the entity's records.
// Records without a recognisable OS are ignored.
func (e *Entity) OSType() (OSType, error) {
	found := OSUnknown
	for _, r := range e.Records {
		os := r.OSType()
		if os == OSUnknown {
			continue
		}
		if found != OSUnknown && found != os {
			return OSUnknown, ErrInconsistentOS
		}
		found = os
	}
	if found == OSUnknown {
		return OSUnknown, ErrUnknownOS
	}
	return found, nil
}
