package correlate

import (
	"assetlens/internal/domain"
	"assetlens/internal/match"
)

// Candidate is one known record in a snapshot, with its normalized view and
// the entity that owns it
type Candidate struct {
	Record   domain.SourceRecord
	View     match.View
	EntityID string
}

// Snapshot is the read-only state a heuristic pass runs against: every known
// record flattened, plus an IP index. It is never mutated after NewSnapshot.
type Snapshot struct {
	candidates []*Candidate
	entities   map[string]*domain.Entity
	byIP       map[string][]*Candidate
}

// NewSnapshot flattens entities into candidates and builds the IP index once
func NewSnapshot(entities []domain.Entity) *Snapshot {
	s := &Snapshot{
		entities: make(map[string]*domain.Entity, len(entities)),
		byIP:     make(map[string][]*Candidate),
	}

	for i := range entities {
		e := &entities[i]
		s.entities[e.ID] = e
		for _, r := range e.Records {
			c := &Candidate{
				Record:   r,
				View:     match.Normalize(r),
				EntityID: e.ID,
			}
			s.candidates = append(s.candidates, c)
			for ip := range c.View.IPs {
				s.byIP[ip] = append(s.byIP[ip], c)
			}
		}
	}

	return s
}

// Len returns the number of candidate records
func (s *Snapshot) Len() int {
	return len(s.candidates)
}

// Entity looks up an entity by id
func (s *Snapshot) Entity(id string) (*domain.Entity, bool) {
	e, ok := s.entities[id]
	return e, ok
}

// Candidates returns every record in snapshot order
func (s *Snapshot) Candidates() []*Candidate {
	return s.candidates
}

// ByInstance returns the candidates contributed by one source instance
func (s *Snapshot) ByInstance(instanceID string) []*Candidate {
	var out []*Candidate
	for _, c := range s.candidates {
		if c.Record.SourceInstanceID == instanceID {
			out = append(out, c)
		}
	}
	return out
}

// ByIPs returns candidates sharing at least one of the given IPs, each once,
// in snapshot order of first appearance under the IPs given
func (s *Snapshot) ByIPs(ips []string) []*Candidate {
	seen := make(map[*Candidate]struct{})
	var out []*Candidate
	for _, ip := range ips {
		for _, c := range s.byIP[ip] {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}
