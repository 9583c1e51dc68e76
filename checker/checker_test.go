package checker

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexisbouchez/emailcheck.go"
	"github.com/alexisbouchez/emailcheck.go/probe"
	"github.com/alexisbouchez/emailcheck.go/smtptest"
)

// fakeResolver answers from a fixed table and counts lookups.
type fakeResolver struct {
	hosts map[string][]string
	errs  map[string]error
	calls atomic.Int32

	// block, when set, holds every lookup until it is closed.
	block   chan struct{}
	entered chan struct{}
	panics  bool
}

func (r *fakeResolver) LookupMX(ctx context.Context, domain string) ([]string, error) {
	r.calls.Add(1)
	if r.panics {
		panic("resolver exploded")
	}
	if r.block != nil {
		if r.entered != nil {
			r.entered <- struct{}{}
		}
		<-r.block
	}
	if err := r.errs[domain]; err != nil {
		return nil, err
	}
	return r.hosts[domain], nil
}

// startPeer runs an SMTP peer that knows alice@example.com and returns
// probe options pointing at it.
func startPeer(t *testing.T) probe.Option {
	t.Helper()
	srv := smtptest.NewServer(smtptest.WithRcptHandler(smtptest.Mailboxes{"alice@example.com"}))
	addr, err := srv.Start()
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	_, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return probe.WithPort(port)
}

func newTestChecker(t *testing.T, r *fakeResolver, opts ...Option) *Checker {
	t.Helper()
	opts = append([]Option{WithProbeOptions(probe.WithReplyTimeout(time.Second))}, opts...)
	c := New(r, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.Shutdown(ctx)
	})
	return c
}

func TestCheck(t *testing.T) {
	peer := startPeer(t)
	r := &fakeResolver{
		hosts: map[string][]string{
			"example.com": {"127.0.0.1", "192.0.2.1"},
			"empty.test":  {},
		},
		errs: map[string]error{"broken.test": errors.New("servfail")},
	}
	c := newTestChecker(t, r, WithProbeOptions(peer))

	tests := []struct {
		addr   string
		want   emailcheck.Status
		lookup bool
	}{
		{"alice@example.com", emailcheck.Exists, true},
		{"bob@example.com", emailcheck.NotExists, true},
		{"someone@empty.test", emailcheck.NoMxRecords, true},
		{"someone@broken.test", emailcheck.Error, true},
		{"not-an-address", emailcheck.Invalid, false},
		{"a@b", emailcheck.Invalid, false},
		{"", emailcheck.Invalid, false},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			before := r.calls.Load()
			res := c.Check(context.Background(), tt.addr)
			assert.Equal(t, tt.want, res.Status, "err: %v", res.Err)
			assert.Equal(t, tt.addr, res.Address)
			assert.NotEmpty(t, res.ID)
			if tt.lookup {
				assert.Equal(t, before+1, r.calls.Load())
			} else {
				assert.Equal(t, before, r.calls.Load(), "invalid address must not be resolved")
			}
		})
	}
}

func TestCheckProbesTopMX(t *testing.T) {
	peer := startPeer(t)
	r := &fakeResolver{hosts: map[string][]string{"example.com": {"127.0.0.1", "192.0.2.1"}}}
	c := newTestChecker(t, r, WithProbeOptions(peer))

	res := c.Check(context.Background(), "alice@example.com")
	require.Equal(t, emailcheck.Exists, res.Status)
	assert.Equal(t, "127.0.0.1", res.MXHost)
	assert.Contains(t, res.Reply, "250")
}

func TestCheckSendsASCIIRecipient(t *testing.T) {
	srv := smtptest.NewServer(smtptest.WithRcptHandler(smtptest.Mailboxes{"a@xn--bcher-kva.example"}))
	addr, err := srv.Start()
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	_, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	r := &fakeResolver{hosts: map[string][]string{"xn--bcher-kva.example": {"127.0.0.1"}}}
	c := newTestChecker(t, r, WithProbeOptions(probe.WithPort(port)))

	res := c.Check(context.Background(), "a@bücher.example")
	require.Equal(t, emailcheck.Exists, res.Status, "err: %v", res.Err)
	assert.Equal(t, "a@bücher.example", res.Address)
	assert.Contains(t, srv.Commands(), "RCPT TO:<a@xn--bcher-kva.example>")

	// A quoted local-part smuggling line breaks never reaches the peer.
	res = c.Check(context.Background(), "\"x\r\nDATA\r\nQUIT\r\n\"@xn--bcher-kva.example")
	assert.Equal(t, emailcheck.Invalid, res.Status)
	assert.ErrorIs(t, res.Err, emailcheck.ErrInvalidAddress)
	assert.NotContains(t, srv.Commands(), "DATA")
	assert.NotContains(t, srv.Commands(), "QUIT")
	assert.Len(t, srv.Commands(), 3)
}

func TestInvalidAddressError(t *testing.T) {
	c := newTestChecker(t, &fakeResolver{})
	res := c.Check(context.Background(), "nope")
	assert.ErrorIs(t, res.Err, emailcheck.ErrInvalidAddress)
}

func TestSubmitResolvesExactlyOnce(t *testing.T) {
	peer := startPeer(t)
	r := &fakeResolver{hosts: map[string][]string{"example.com": {"127.0.0.1"}}}
	c := newTestChecker(t, r, WithProbeOptions(peer), WithWorkers(4))

	addrs := []string{"alice@example.com", "bob@example.com", "bad", "carol@example.com"}
	want := []emailcheck.Status{emailcheck.Exists, emailcheck.NotExists, emailcheck.Invalid, emailcheck.NotExists}

	handles := make([]*Handle, len(addrs))
	for i, a := range addrs {
		h, err := c.CheckIfEmailExists(a)
		require.NoError(t, err)
		handles[i] = h
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i, h := range handles {
		res, err := h.Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, want[i], res.Status, addrs[i])
		assert.Equal(t, h.ID(), res.ID)
		assert.Equal(t, want[i], h.Status())

		assert.False(t, h.resolve(Result{Status: emailcheck.Error}), "handle resolved twice")
		assert.Equal(t, want[i], h.Status())
	}
}

func TestSubmitSaturated(t *testing.T) {
	r := &fakeResolver{
		hosts:   map[string][]string{},
		block:   make(chan struct{}),
		entered: make(chan struct{}, 4),
	}
	c := newTestChecker(t, r, WithWorkers(1), WithBacklog(1))

	rejected := testutil.ToFloat64(SubmissionsRejected.WithLabelValues("saturated"))

	first, err := c.Submit("a@busy.test")
	require.NoError(t, err)
	<-r.entered // The only worker is now busy.

	second, err := c.Submit("b@busy.test")
	require.NoError(t, err)

	_, err = c.Submit("c@busy.test")
	assert.ErrorIs(t, err, ErrSaturated)
	assert.Equal(t, rejected+1, testutil.ToFloat64(SubmissionsRejected.WithLabelValues("saturated")))

	close(r.block)
	assert.Equal(t, emailcheck.NoMxRecords, first.Status())
	assert.Equal(t, emailcheck.NoMxRecords, second.Status())
}

func TestShutdown(t *testing.T) {
	r := &fakeResolver{hosts: map[string][]string{}}
	c := New(r, WithWorkers(2))

	var handles []*Handle
	for range 10 {
		h, err := c.Submit("x@queued.test")
		require.NoError(t, err)
		handles = append(handles, h)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Shutdown(ctx))
	require.NoError(t, c.Shutdown(ctx))

	for _, h := range handles {
		select {
		case <-h.Done():
		default:
			t.Fatal("queued check was not finished before Shutdown returned")
		}
		assert.Equal(t, emailcheck.NoMxRecords, h.Status())
	}

	_, err := c.Submit("late@queued.test")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestShutdownDeadline(t *testing.T) {
	r := &fakeResolver{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	c := New(r, WithWorkers(1))
	defer close(r.block)

	_, err := c.Submit("a@slow.test")
	require.NoError(t, err)
	<-r.entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Shutdown(ctx), context.DeadlineExceeded)
}

func TestPanicResolvesToError(t *testing.T) {
	r := &fakeResolver{panics: true}
	c := newTestChecker(t, r, WithWorkers(1))

	h, err := c.Submit("a@example.com")
	require.NoError(t, err)
	res, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, emailcheck.Error, res.Status)
	assert.ErrorContains(t, res.Err, "resolver exploded")

	// The worker survives.
	h, err = c.Submit("still bad")
	require.NoError(t, err)
	assert.Equal(t, emailcheck.Invalid, h.Status())
}

func TestHandleWaitContext(t *testing.T) {
	h := newHandle("id", "a@example.com")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := h.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDomainRateLimit(t *testing.T) {
	peer := startPeer(t)
	r := &fakeResolver{hosts: map[string][]string{"example.com": {"127.0.0.1"}}}
	c := newTestChecker(t, r, WithProbeOptions(peer), WithDomainRate(0.001, 1))

	res := c.Check(context.Background(), "alice@example.com")
	require.Equal(t, emailcheck.Exists, res.Status)

	// The burst is spent; the next session to the same domain would wait
	// far past the deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res = c.Check(ctx, "alice@example.com")
	assert.Equal(t, emailcheck.Error, res.Status)
	assert.ErrorContains(t, res.Err, "rate limit")
}

func TestDomainLimiterDisabled(t *testing.T) {
	d := newDomainLimiter(0, 1)
	assert.Nil(t, d)
	assert.NoError(t, d.Wait(context.Background(), "example.com"))

	d = newDomainLimiter(10, 1)
	assert.Same(t, d.get("Example.com"), d.get("example.COM"))
}

func TestMetrics(t *testing.T) {
	c := newTestChecker(t, &fakeResolver{})
	before := testutil.ToFloat64(ChecksTotal.WithLabelValues("INVALID"))

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Check(context.Background(), "invalid")
		}()
	}
	wg.Wait()

	assert.Equal(t, before+3, testutil.ToFloat64(ChecksTotal.WithLabelValues("INVALID")))
}
