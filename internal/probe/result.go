package probe

import (
	"fmt"
	"time"

	"github.com/HerbHall/opsconductor/internal/vault"
	"github.com/HerbHall/opsconductor/pkg/models"
)

// Request describes one connection test.
type Request struct {
	MethodType models.MethodType
	Host       string
	Port       int // 0 uses the protocol default
	Credential *vault.Payload
	Config     map[string]any
	Timeout    time.Duration // 0 uses the configured timeout for the protocol
	// TestRecipient asks an SMTP Test to send a real message. HealthCheck
	// ignores it.
	TestRecipient string
}

// Result is the uniform verdict of a probe.
type Result struct {
	Success    bool              `json:"success"`
	Message    string            `json:"message"`
	LatencyMs  float64           `json:"latency_ms,omitempty"`
	Details    map[string]any    `json:"details,omitempty"`
	IPAddress  string            `json:"ip_address,omitempty"`
	MethodType models.MethodType `json:"method_type,omitempty"`
	TargetName string            `json:"target_name,omitempty"`
	TestedAt   time.Time         `json:"tested_at"`
}

// Kind reports the failure classification recorded in Details, or "".
func (r *Result) Kind() ErrorKind {
	k, _ := r.Details[detailErrorKind].(ErrorKind)
	return k
}

// ErrorKind classifies why a probe failed.
type ErrorKind string

const (
	KindTimeout  ErrorKind = "timeout"
	KindDNS      ErrorKind = "dns"
	KindRefused  ErrorKind = "refused"
	KindAuth     ErrorKind = "authentication"
	KindTLS      ErrorKind = "tls"
	KindProtocol ErrorKind = "protocol"
	KindConfig   ErrorKind = "configuration"
	KindInternal ErrorKind = "internal"
	KindNetwork  ErrorKind = "network"
)

const detailErrorKind = "error_kind"

func success(format string, args ...any) *Result {
	return &Result{Success: true, Message: fmt.Sprintf(format, args...), Details: map[string]any{}}
}

func failure(kind ErrorKind, format string, args ...any) *Result {
	return &Result{
		Success: false,
		Message: fmt.Sprintf(format, args...),
		Details: map[string]any{detailErrorKind: kind},
	}
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Failed builds a failed Result for callers that reject a test before it
// reaches a probe.
func Failed(kind ErrorKind, format string, args ...any) *Result {
	return failure(kind, format, args...)
}
