package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"os"
	"strings"
	"syscall"
)

// classifyNetError maps a transport error onto a failure kind and a short
// human-readable reason.
func classifyNetError(err error) (ErrorKind, string) {
	var (
		dnsErr     *net.DNSError
		netErr     net.Error
		certErr    *tls.CertificateVerificationError
		unknownCA  x509.UnknownAuthorityError
		hostErr    x509.HostnameError
		recordErr  tls.RecordHeaderError
		invalidErr x509.CertificateInvalidError
	)
	switch {
	case errors.As(err, &dnsErr):
		return KindDNS, "DNS resolution failed for " + dnsErr.Name
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, os.ErrDeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return KindTimeout, "connection timed out"
	case errors.Is(err, syscall.ECONNREFUSED):
		return KindRefused, "connection refused"
	case errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETUNREACH):
		return KindNetwork, "host unreachable"
	case errors.As(err, &certErr), errors.As(err, &unknownCA),
		errors.As(err, &hostErr), errors.As(err, &invalidErr),
		errors.As(err, &recordErr):
		return KindTLS, "TLS handshake failed: " + err.Error()
	}

	// Some libraries flatten the cause into a string.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "no such host"):
		return KindDNS, "DNS resolution failed"
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return KindTimeout, "connection timed out"
	case strings.Contains(msg, "connection refused"):
		return KindRefused, "connection refused"
	}
	return KindNetwork, err.Error()
}

// netFailure builds a failed Result from a transport error.
func netFailure(prefix string, err error) *Result {
	kind, reason := classifyNetError(err)
	return failure(kind, "%s: %s", prefix, reason)
}
