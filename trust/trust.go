// Package trust arbitrates TLS server-certificate decisions.
//
// A Gate sits inside the TLS handshake of a background connection attempt.
// When the handshake reaches certificate verification the gate hands a
// Request to an external Handler, normally on a UI or main-loop context, and
// blocks the handshake until exactly one Decision arrives:
//
//	gate := trust.NewGate(
//	    trust.WithHandler(trust.AutoAccept(func(r *trust.Request) {
//	        go askUser(r) // later: r.Decide(trust.Proceed) or r.Decide(trust.Reject)
//	    })),
//	)
//	cfg := &tls.Config{
//	    InsecureSkipVerify: true, // the gate does the verification
//	    VerifyConnection:   gate.VerifyConnection(ctx, host, nil),
//	}
//
// Without a handler every request is rejected.
package trust

import (
	"crypto/x509"
	"errors"
	"fmt"
)

// Decision is the verdict on a presented certificate chain.
type Decision int

const (
	Reject Decision = iota
	Proceed
)

func (d Decision) String() string {
	if d == Proceed {
		return "proceed"
	}
	return "reject"
}

// Preverify is the outcome of the chain check done before asking anyone.
type Preverify int

const (
	PreverifyFailed Preverify = iota
	PreverifyOK
)

func (p Preverify) String() string {
	if p == PreverifyOK {
		return "ok"
	}
	return "failed"
}

// Result classifies the platform trust evaluation of a chain.
type Result int

const (
	// ResultInvalid means the chain could not be evaluated at all.
	ResultInvalid Result = iota
	// ResultVerified means the chain verified against the trust roots.
	ResultVerified
	// ResultUserAccepted means the user explicitly trusted this chain before.
	ResultUserAccepted
	// ResultRecoverable means verification failed in a way a person may
	// choose to override (unknown authority, host mismatch, expiry).
	ResultRecoverable
	// ResultDenied means the user explicitly distrusted this chain.
	ResultDenied
	// ResultFatal means the chain is broken beyond override.
	ResultFatal
)

func (r Result) String() string {
	switch r {
	case ResultVerified:
		return "verified"
	case ResultUserAccepted:
		return "user-accepted"
	case ResultRecoverable:
		return "recoverable"
	case ResultDenied:
		return "denied"
	case ResultFatal:
		return "fatal"
	default:
		return "invalid"
	}
}

// Trusted reports whether the result alone justifies proceeding.
func (r Result) Trusted() bool {
	return r == ResultVerified || r == ResultUserAccepted
}

var (
	// ErrRejected is returned from the handshake when the decision is Reject.
	ErrRejected = errors.New("trust: server certificate rejected")

	// ErrAlreadyDecided is returned by Request.Decide on a second call.
	ErrAlreadyDecided = errors.New("trust: decision already made")

	// ErrExpired is returned by Request.Decide once the handshake stopped waiting.
	ErrExpired = errors.New("trust: request no longer pending")

	// ErrNoPendingRequest is returned by Gate.Decide when nothing is waiting.
	ErrNoPendingRequest = errors.New("trust: no pending request")
)

// Evaluation is the verification outcome for one chain.
type Evaluation struct {
	Preverify Preverify
	Result    Result
	// Err is the verification error, nil when Result is ResultVerified.
	Err error
}

// Evaluate verifies chain for host against roots (nil means the system
// pool). It never returns an error itself; failures are classified into
// the Evaluation.
func Evaluate(host string, chain []*x509.Certificate, roots *x509.CertPool) Evaluation {
	if len(chain) == 0 {
		return Evaluation{
			Preverify: PreverifyFailed,
			Result:    ResultInvalid,
			Err:       errors.New("no certificates presented"),
		}
	}

	opts := x509.VerifyOptions{
		DNSName:       host,
		Roots:         roots,
		Intermediates: x509.NewCertPool(),
	}
	for _, c := range chain[1:] {
		opts.Intermediates.AddCert(c)
	}

	if _, err := chain[0].Verify(opts); err != nil {
		return Evaluation{Preverify: PreverifyFailed, Result: classify(err), Err: err}
	}
	return Evaluation{Preverify: PreverifyOK, Result: ResultVerified}
}

func classify(err error) Result {
	var (
		unknown  x509.UnknownAuthorityError
		hostname x509.HostnameError
		invalid  x509.CertificateInvalidError
	)
	switch {
	case errors.As(err, &unknown), errors.As(err, &hostname):
		return ResultRecoverable
	case errors.As(err, &invalid):
		switch invalid.Reason {
		case x509.Expired, x509.NotAuthorizedToSign, x509.IncompatibleUsage:
			return ResultRecoverable
		}
		return ResultFatal
	default:
		return ResultFatal
	}
}

// Request describes one certificate verification awaiting a decision.
type Request struct {
	Host      string
	Chain     []*x509.Certificate
	Preverify Preverify
	Result    Result
	// Err is the platform verification error, if any.
	Err error

	gate    *Gate
	done    chan Decision
	decided bool
}

// Decide records the verdict for this request. Only the first call counts.
func (r *Request) Decide(d Decision) error {
	return r.gate.decide(r, d)
}

func (r *Request) String() string {
	subject := "<none>"
	if len(r.Chain) > 0 {
		subject = r.Chain[0].Subject.String()
	}
	return fmt.Sprintf("%s: %s (preverify %s, %s)", r.Host, subject, r.Preverify, r.Result)
}
