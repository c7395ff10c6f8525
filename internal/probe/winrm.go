package probe

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/masterzen/winrm"

	"github.com/HerbHall/opsconductor/pkg/models"
)

const winrmHTTPSPort = 5986

func (p *Prober) probeWinRM(ctx context.Context, req *Request, _ Mode) *Result {
	if res := requireCredential(req); res != nil {
		return res
	}

	https := req.Port == winrmHTTPSPort ||
		strings.EqualFold(models.ConfigString(req.Config, "protocol"), "https")
	insecure := !models.ConfigBool(req.Config, "verify_ssl", false)

	endpoint := winrm.NewEndpoint(req.Host, req.Port, https, insecure, nil, nil, nil, req.Timeout)
	client, err := winrm.NewClient(endpoint, req.Credential.Username, req.Credential.Secret())
	if err != nil {
		return failure(KindConfig, "WinRM client setup failed: %v", err)
	}

	canary := "opsconductor-" + uuid.NewString()[:8]
	start := time.Now()
	stdout, stderr, code, err := client.RunWithContextWithString(ctx, "echo "+canary, "")
	if err != nil {
		return classifyWinRMError(err, req.Credential.Username).withLatency(start)
	}
	if code != 0 {
		return failure(KindProtocol, "WinRM canary command exited with code %d: %s", code, truncate(stderr, 128)).withLatency(start)
	}
	if !strings.Contains(stdout, canary) {
		return failure(KindProtocol, "WinRM shell did not echo the canary (got %q)", truncate(stdout, 64)).withLatency(start)
	}

	scheme := "http"
	if https {
		scheme = "https"
	}
	return success("WinRM connection successful, authenticated as %s", req.Credential.Username).
		withLatency(start).
		with("endpoint", scheme+"://"+hostPort(req)+"/wsman")
}

func classifyWinRMError(err error, user string) *Result {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "401"), strings.Contains(strings.ToLower(msg), "unauthorized"):
		return failure(KindAuth, "WinRM authentication failed for user %s (401 unauthorized)", user)
	case strings.Contains(msg, "x509:"), strings.Contains(msg, "tls:"):
		return failure(KindTLS, "WinRM TLS handshake failed: %v", err)
	}
	return netFailure("WinRM connection failed", err)
}
