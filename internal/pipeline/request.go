package pipeline

import (
	"fmt"
	"sync"

	"github.com/spigell/cv-matcher/internal/storage"
)

// State is the position of a match request in its lifecycle.
type State int

const (
	StateCreated State = iota
	StateUploading
	StateExtracting
	StateAnalyzing
	StateCompleted
	StateFailed
	StateCleaningUp
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateUploading:
		return "uploading"
	case StateExtracting:
		return "extracting"
	case StateAnalyzing:
		return "analyzing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCleaningUp:
		return "cleaning_up"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further work happens in this state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

var transitions = map[State][]State{
	StateCreated:    {StateUploading, StateFailed},
	StateUploading:  {StateExtracting, StateFailed},
	StateExtracting: {StateAnalyzing, StateFailed},
	StateAnalyzing:  {StateCompleted, StateFailed},
	StateCompleted:  {StateCleaningUp},
	StateFailed:     {StateCleaningUp},
}

// Request is one invocation of the pipeline. It is never reused.
type Request struct {
	ID string

	mu        sync.Mutex
	state     State
	terminal  State
	documents []*storage.Document
	history   []State
}

func newRequest(id string) *Request {
	return &Request{ID: id, state: StateCreated, history: []State{StateCreated}}
}

func (r *Request) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// History returns every state the request has passed through.
func (r *Request) History() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.history...)
}

func (r *Request) advance(to State) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, allowed := range transitions[r.state] {
		if allowed == to {
			if to.Terminal() {
				r.terminal = to
			}
			r.state = to
			r.history = append(r.history, to)
			return nil
		}
	}

	return fmt.Errorf("illegal transition %s -> %s", r.state, to)
}

// settle returns a cleaned up request to its terminal state.
func (r *Request) settle() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateCleaningUp {
		r.state = r.terminal
		r.history = append(r.history, r.terminal)
	}
}

func (r *Request) track(doc *storage.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.documents = append(r.documents, doc)
}

// release hands over every tracked document exactly once.
func (r *Request) release() []*storage.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	docs := r.documents
	r.documents = nil
	return docs
}
