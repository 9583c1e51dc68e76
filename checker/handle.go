package checker

import (
	"context"
	"sync"
	"time"

	"github.com/alexisbouchez/emailcheck.go"
)

// Result is the outcome of one check.
type Result struct {
	ID      string            `json:"id"`
	Address string            `json:"address"`
	Status  emailcheck.Status `json:"status"`

	// MXHost is the exchanger that was probed, if any.
	MXHost string `json:"mx_host,omitempty"`

	// Reply is the server reply that decided the status, if any.
	Reply string `json:"reply,omitempty"`

	// Err explains an Error or NotExists status.
	Err error `json:"-"`

	Duration time.Duration `json:"duration"`
}

// Handle is a pending check. It resolves exactly once.
type Handle struct {
	id      string
	address string

	once   sync.Once
	done   chan struct{}
	result Result
}

func newHandle(id, address string) *Handle {
	return &Handle{id: id, address: address, done: make(chan struct{})}
}

// ID returns the request ID assigned at submission.
func (h *Handle) ID() string { return h.id }

// Address returns the address as submitted.
func (h *Handle) Address() string { return h.address }

// Done is closed when the result is available.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the check finishes or ctx is done.
func (h *Handle) Wait(ctx context.Context) (Result, error) {
	select {
	case <-h.done:
		return h.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Status blocks until the check finishes and returns its status.
func (h *Handle) Status() emailcheck.Status {
	<-h.done
	return h.result.Status
}

// resolve publishes r. Only the first call has an effect.
func (h *Handle) resolve(r Result) bool {
	resolved := false
	h.once.Do(func() {
		h.result = r
		close(h.done)
		resolved = true
	})
	return resolved
}
