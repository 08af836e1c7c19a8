// Package portalstub is an in-memory stand-in for the Publisher Portal API.
//
// Deployments follow a scripted list of states. Each status request reveals
// the next state until the last one, which then sticks.
package portalstub

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Deployment states served by the stub.
const (
	StatePending    = "PENDING"
	StateValidating = "VALIDATING"
	StateValidated  = "VALIDATED"
	StatePublishing = "PUBLISHING"
	StatePublished  = "PUBLISHED"
	StateFailed     = "FAILED"
)

// Default scripts for new deployments.
var (
	UserManagedScript = []string{StatePending, StateValidating, StateValidated}
	AutomaticScript   = []string{StatePending, StateValidating, StateValidated, StatePublishing, StatePublished}
	publishScript     = []string{StatePublishing, StatePublished}
)

// Script overrides the state progression of the next uploaded deployment.
type Script struct {
	States []string
	Errors json.RawMessage // reported alongside FAILED
}

// Deployment is the stub's view of one uploaded bundle.
type Deployment struct {
	ID             string
	Name           string
	Filename       string
	PublishingType string
	Size           int64
	Published      bool

	states   []string
	revealed int
	errors   json.RawMessage
}

// State returns the state last revealed by a status request, or the first
// scripted state before any status request.
func (d *Deployment) State() string {
	return d.states[max(d.revealed, 0)]
}

// Request is a recorded API call.
type Request struct {
	Op           string
	Method       string
	Path         string
	Query        string
	DeploymentID string
	Status       int
}

// Store holds deployments, scripted behavior and the request log.
type Store struct {
	mu          sync.Mutex
	seq         int
	deployments map[string]*Deployment
	scripts     []Script
	failures    map[string][]int
	requests    []Request
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		deployments: make(map[string]*Deployment),
		failures:    make(map[string][]int),
	}
}

// EnqueueScript sets the state progression for the next upload. Scripts are
// consumed in order; uploads without one use the default for their
// publishing type.
func (s *Store) EnqueueScript(sc Script) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts = append(s.scripts, sc)
}

// FailNext makes the next len(codes) requests for op answer with those codes.
func (s *Store) FailNext(op string, codes ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = append(s.failures[op], codes...)
}

// Requests returns a copy of the request log.
func (s *Store) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Get returns a snapshot of a deployment.
func (s *Store) Get(id string) (Deployment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deployments[id]
	if !ok {
		return Deployment{}, false
	}
	return *d, true
}

func (s *Store) record(r Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, r)
}

// injectedFailure pops the next scripted failure code for op, if any.
func (s *Store) injectedFailure(op string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	codes := s.failures[op]
	if len(codes) == 0 {
		return 0, false
	}
	s.failures[op] = codes[1:]
	return codes[0], true
}

func (s *Store) create(name, filename, publishingType string, size int64) *Deployment {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	d := &Deployment{
		ID:             fmt.Sprintf("%08x-0000-4000-8000-%012x", s.seq, s.seq),
		Name:           name,
		Filename:       filename,
		PublishingType: publishingType,
		Size:           size,
		states:         UserManagedScript,
		revealed:       -1,
	}
	if publishingType == "AUTOMATIC" {
		d.states = AutomaticScript
	}
	if len(s.scripts) > 0 {
		sc := s.scripts[0]
		s.scripts = s.scripts[1:]
		if len(sc.States) > 0 {
			d.states = sc.States
		}
		d.errors = sc.Errors
	}
	d.states = append([]string(nil), d.states...)
	s.deployments[d.ID] = d
	return d
}

// advance reveals the next state and returns the deployment snapshot.
func (s *Store) advance(id string) (Deployment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deployments[id]
	if !ok {
		return Deployment{}, false
	}
	if d.revealed < len(d.states)-1 {
		d.revealed++
	}
	return *d, true
}

// publish moves a VALIDATED deployment onto the publishing script.
func (s *Store) publish(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deployments[id]
	if !ok {
		return errNotFound
	}
	if d.revealed < 0 || d.State() != StateValidated || d.Published {
		return fmt.Errorf("deployment %s is %s, not %s", id, d.State(), StateValidated)
	}
	d.Published = true
	d.states = append(d.states[:d.revealed+1:d.revealed+1], publishScript...)
	return nil
}
