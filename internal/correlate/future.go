package correlate

import (
	"sync"

	"assetlens/internal/domain"
)

// Status is the overall result of running a command list on an asset
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// ExecutionOutcome is what an executor reports once a request settles
type ExecutionOutcome struct {
	Status Status
	// Outputs holds one entry per dispatched command, in command order
	Outputs []string
	// Responder is the record of the source whose execution channel ran the commands
	Responder domain.RecordRef
	Message   string
}

// Future is the pending result of one dispatched execution request.
// Outcome may only be called after Done is closed.
type Future interface {
	Done() <-chan struct{}
	Outcome() (ExecutionOutcome, error)
}

// Promise is a Future settled exactly once by its producer
type Promise struct {
	done    chan struct{}
	once    sync.Once
	outcome ExecutionOutcome
	err     error
}

// NewPromise creates an unsettled promise
func NewPromise() *Promise {
	return &Promise{done: make(chan struct{})}
}

// Resolved returns a future that has already settled with the outcome
func Resolved(outcome ExecutionOutcome) *Promise {
	p := NewPromise()
	p.Resolve(outcome)
	return p
}

// Resolve settles the promise with an outcome. Later calls are ignored.
func (p *Promise) Resolve(outcome ExecutionOutcome) {
	p.once.Do(func() {
		p.outcome = outcome
		close(p.done)
	})
}

// Reject settles the promise with a transport failure. Later calls are ignored.
func (p *Promise) Reject(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// Done is closed once the promise settles
func (p *Promise) Done() <-chan struct{} {
	return p.done
}

// Outcome returns the settled outcome or transport error
func (p *Promise) Outcome() (ExecutionOutcome, error) {
	<-p.done
	return p.outcome, p.err
}
