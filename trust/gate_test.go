package trust

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selfSigned(t *testing.T, host string, notAfter time.Time) *x509.Certificate {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: host, Organization: []string{"ftps test"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              []string{host},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	cert := selfSigned(t, "ftp.example.com", time.Now().Add(time.Hour))
	roots := x509.NewCertPool()
	roots.AddCert(cert)

	ev := Evaluate("ftp.example.com", []*x509.Certificate{cert}, roots)
	assert.Equal(t, PreverifyOK, ev.Preverify)
	assert.Equal(t, ResultVerified, ev.Result)
	assert.NoError(t, ev.Err)

	ev = Evaluate("ftp.example.com", []*x509.Certificate{cert}, x509.NewCertPool())
	assert.Equal(t, PreverifyFailed, ev.Preverify)
	assert.Equal(t, ResultRecoverable, ev.Result)
	assert.Error(t, ev.Err)

	ev = Evaluate("other.example.com", []*x509.Certificate{cert}, roots)
	assert.Equal(t, PreverifyFailed, ev.Preverify)
	assert.Equal(t, ResultRecoverable, ev.Result)

	expired := selfSigned(t, "ftp.example.com", time.Now().Add(-time.Minute))
	expiredRoots := x509.NewCertPool()
	expiredRoots.AddCert(expired)
	ev = Evaluate("ftp.example.com", []*x509.Certificate{expired}, expiredRoots)
	assert.Equal(t, ResultRecoverable, ev.Result)

	ev = Evaluate("ftp.example.com", nil, roots)
	assert.Equal(t, ResultInvalid, ev.Result)
	assert.Equal(t, PreverifyFailed, ev.Preverify)
}

func TestGate_NoHandlerRejects(t *testing.T) {
	t.Parallel()

	cert := selfSigned(t, "localhost", time.Now().Add(time.Hour))
	var seen []Decision
	g := NewGate(WithDecisionHook(func(_ string, d Decision) { seen = append(seen, d) }))

	assert.Equal(t, Reject, g.Verify(context.Background(), "localhost", []*x509.Certificate{cert}, nil))
	assert.Nil(t, g.Pending())
	assert.Equal(t, []Decision{Reject}, seen)
}

func TestGate_HandlerDecides(t *testing.T) {
	t.Parallel()

	cert := selfSigned(t, "localhost", time.Now().Add(time.Hour))

	for _, want := range []Decision{Proceed, Reject} {
		want := want
		t.Run(want.String(), func(t *testing.T) {
			var seen *Request
			g := NewGate(WithHandler(func(r *Request) {
				seen = r
				go func() {
					time.Sleep(10 * time.Millisecond)
					assert.NoError(t, r.Decide(want))
				}()
			}))

			got := g.Verify(context.Background(), "localhost", []*x509.Certificate{cert}, x509.NewCertPool())
			assert.Equal(t, want, got)
			require.NotNil(t, seen)
			assert.Equal(t, "localhost", seen.Host)
			assert.Equal(t, PreverifyFailed, seen.Preverify)
			assert.Equal(t, ResultRecoverable, seen.Result)
			assert.Nil(t, g.Pending())
		})
	}
}

func TestGate_OnlyFirstDecisionCounts(t *testing.T) {
	t.Parallel()

	cert := selfSigned(t, "localhost", time.Now().Add(time.Hour))
	var errs [2]error
	var wg sync.WaitGroup
	wg.Add(1)

	g := NewGate(WithHandler(func(r *Request) {
		defer wg.Done()
		errs[0] = r.Decide(Proceed)
		errs[1] = r.Decide(Reject)
	}))

	assert.Equal(t, Proceed, g.Verify(context.Background(), "localhost", []*x509.Certificate{cert}, nil))
	wg.Wait()
	assert.NoError(t, errs[0])
	assert.ErrorIs(t, errs[1], ErrAlreadyDecided)
}

func TestGate_ContextCancelRejects(t *testing.T) {
	t.Parallel()

	cert := selfSigned(t, "localhost", time.Now().Add(time.Hour))
	requests := make(chan *Request, 1)
	g := NewGate(WithHandler(func(r *Request) { requests <- r }))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-requests
		cancel()
	}()

	assert.Equal(t, Reject, g.Verify(ctx, "localhost", []*x509.Certificate{cert}, nil))
}

func TestGate_LateDecisionIsExpired(t *testing.T) {
	t.Parallel()

	cert := selfSigned(t, "localhost", time.Now().Add(time.Hour))
	requests := make(chan *Request, 1)
	g := NewGate(
		WithHandler(func(r *Request) { requests <- r }),
		WithTimeout(20*time.Millisecond),
	)

	assert.Equal(t, Reject, g.Verify(context.Background(), "localhost", []*x509.Certificate{cert}, nil))

	r := <-requests
	assert.ErrorIs(t, r.Decide(Proceed), ErrExpired)
	assert.ErrorIs(t, g.Decide(Proceed), ErrNoPendingRequest)
}

func TestGate_DecideResolvesPending(t *testing.T) {
	t.Parallel()

	cert := selfSigned(t, "localhost", time.Now().Add(time.Hour))
	started := make(chan struct{})
	g := NewGate(WithHandler(func(*Request) { close(started) }))

	go func() {
		<-started
		assert.Eventually(t, func() bool { return g.Pending() != nil }, time.Second, time.Millisecond)
		assert.NoError(t, g.Decide(Proceed))
	}()

	assert.Equal(t, Proceed, g.Verify(context.Background(), "localhost", []*x509.Certificate{cert}, nil))
}

func TestGate_DispatcherUsed(t *testing.T) {
	t.Parallel()

	cert := selfSigned(t, "localhost", time.Now().Add(time.Hour))
	var dispatched int
	var mu sync.Mutex
	g := NewGate(
		WithDispatcher(func(fn func()) {
			mu.Lock()
			dispatched++
			mu.Unlock()
			go fn()
		}),
		WithHandler(func(r *Request) { _ = r.Decide(Proceed) }),
	)

	assert.Equal(t, Proceed, g.Verify(context.Background(), "localhost", []*x509.Certificate{cert}, nil))
	mu.Lock()
	assert.Equal(t, 1, dispatched)
	mu.Unlock()
}

func TestAutoAccept(t *testing.T) {
	t.Parallel()

	cert := selfSigned(t, "localhost", time.Now().Add(time.Hour))
	roots := x509.NewCertPool()
	roots.AddCert(cert)

	asked := make(chan *Request, 1)
	g := NewGate(WithHandler(AutoAccept(func(r *Request) {
		asked <- r
		_ = r.Decide(Reject)
	})))

	assert.Equal(t, Proceed, g.Verify(context.Background(), "localhost", []*x509.Certificate{cert}, roots))
	assert.Empty(t, asked)

	assert.Equal(t, Reject, g.Verify(context.Background(), "localhost", []*x509.Certificate{cert}, x509.NewCertPool()))
	assert.Len(t, asked, 1)

	g.SetHandler(AutoAccept(nil))
	assert.Equal(t, Reject, g.Verify(context.Background(), "localhost", []*x509.Certificate{cert}, x509.NewCertPool()))
}

func TestGate_DecisionHook(t *testing.T) {
	t.Parallel()

	cert := selfSigned(t, "localhost", time.Now().Add(time.Hour))
	var mu sync.Mutex
	var seen []Decision
	g := NewGate(
		WithHandler(func(r *Request) { _ = r.Decide(Proceed) }),
		WithDecisionHook(func(host string, d Decision) {
			assert.Equal(t, "localhost", host)
			mu.Lock()
			seen = append(seen, d)
			mu.Unlock()
		}),
	)

	g.Verify(context.Background(), "localhost", []*x509.Certificate{cert}, nil)
	g.SetHandler(func(r *Request) { _ = r.Decide(Reject) })
	g.Verify(context.Background(), "localhost", []*x509.Certificate{cert}, nil)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Decision{Proceed, Reject}, seen)
}
