package probe

import (
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zaptest"

	"github.com/HerbHall/opsconductor/pkg/models"
)

func newTestProber(t *testing.T, cfg Config) (*Prober, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return New(cfg, zaptest.NewLogger(t), reg), reg
}

func splitAddr(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("SplitHostPort(%q) error = %v", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("Atoi(%q) error = %v", portStr, err)
	}
	return host, port
}

// closedPort returns a loopback address nothing listens on.
func closedPort(t *testing.T) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return splitAddr(t, addr)
}

func TestProber_UnknownMethodType(t *testing.T) {
	p, _ := newTestProber(t, Config{})

	res := p.Test(context.Background(), Request{MethodType: "gopher", Host: "10.0.0.1"})
	if res.Success {
		t.Fatal("Test() Success = true for unknown method type")
	}
	if res.Kind() != KindConfig {
		t.Errorf("Kind() = %q, want %q", res.Kind(), KindConfig)
	}
	if !strings.Contains(res.Message, "gopher") {
		t.Errorf("Message = %q, want it to name the method type", res.Message)
	}
	if res.TestedAt.IsZero() {
		t.Error("TestedAt is zero")
	}
}

func TestProber_NonPositiveTimeout(t *testing.T) {
	p, _ := newTestProber(t, Config{})

	res := p.Test(context.Background(), Request{MethodType: models.MethodWinRM, Host: "10.0.0.1", Timeout: -time.Second})
	if res.Success || res.Kind() != KindConfig {
		t.Fatalf("Test() = %+v, want configuration failure", res)
	}
	if !strings.Contains(res.Message, "internal configuration error") {
		t.Errorf("Message = %q", res.Message)
	}
}

func TestProber_RecoversPanics(t *testing.T) {
	p, _ := newTestProber(t, Config{})
	p.probes[models.MethodSSH] = func(context.Context, *Request, Mode) *Result {
		panic("boom")
	}

	res := p.Test(context.Background(), Request{MethodType: models.MethodSSH, Host: "10.0.0.1"})
	if res.Success {
		t.Fatal("Test() Success = true after panic")
	}
	if res.Kind() != KindInternal || !strings.Contains(res.Message, "boom") {
		t.Errorf("Test() = %q (%s), want internal error mentioning panic", res.Message, res.Kind())
	}
}

func TestProber_FillsDefaultsAndEnriches(t *testing.T) {
	p, _ := newTestProber(t, DefaultConfig())

	var seen Request
	p.probes[models.MethodSSH] = func(_ context.Context, req *Request, _ Mode) *Result {
		seen = *req
		return success("ok")
	}

	res := p.Test(context.Background(), Request{MethodType: models.MethodSSH, Host: "10.0.0.9"})
	if !res.Success {
		t.Fatalf("Test() = %+v", res)
	}
	if seen.Port != 22 {
		t.Errorf("probe saw port %d, want 22", seen.Port)
	}
	if seen.Timeout != 30*time.Second {
		t.Errorf("probe saw timeout %s, want 30s", seen.Timeout)
	}
	if res.IPAddress != "10.0.0.9" || res.MethodType != models.MethodSSH {
		t.Errorf("result not enriched: %+v", res)
	}
}

func TestProber_HealthCheckDropsRecipient(t *testing.T) {
	p, _ := newTestProber(t, Config{})

	var (
		seen Request
		mode Mode
	)
	p.probes[models.MethodSMTP] = func(_ context.Context, req *Request, m Mode) *Result {
		seen, mode = *req, m
		return success("ok")
	}

	p.HealthCheck(context.Background(), Request{MethodType: models.MethodSMTP, Host: "mx", TestRecipient: "ops@example.com"})
	if seen.TestRecipient != "" {
		t.Errorf("health probe saw recipient %q", seen.TestRecipient)
	}
	if mode != ModeHealth {
		t.Errorf("mode = %s, want health", mode)
	}
}

func TestProber_CancelledBeforeStart(t *testing.T) {
	p, _ := newTestProber(t, Config{RateLimit: 1, Burst: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := p.Test(ctx, Request{MethodType: models.MethodMongoDB, Host: "127.0.0.1", Port: 1})
	if res.Success || res.Kind() != KindInternal {
		t.Errorf("Test() = %+v, want cancelled failure", res)
	}
}

func TestProber_Metrics(t *testing.T) {
	p, reg := newTestProber(t, Config{})
	p.probes[models.MethodRedis] = func(context.Context, *Request, Mode) *Result { return success("ok") }
	p.probes[models.MethodMySQL] = func(context.Context, *Request, Mode) *Result { return failure(KindAuth, "no") }

	p.Test(context.Background(), Request{MethodType: models.MethodRedis, Host: "h"})
	p.Test(context.Background(), Request{MethodType: models.MethodRedis, Host: "h"})
	p.Test(context.Background(), Request{MethodType: models.MethodMySQL, Host: "h"})

	if got := promtest.ToFloat64(p.metrics.attempts.WithLabelValues("redis", "success")); got != 2 {
		t.Errorf("redis success = %v, want 2", got)
	}
	if got := promtest.ToFloat64(p.metrics.attempts.WithLabelValues("mysql", "failure")); got != 1 {
		t.Errorf("mysql failure = %v, want 1", got)
	}

	// A second prober on the same registry reuses the collectors.
	p2 := New(Config{}, zaptest.NewLogger(t), reg)
	if p2.metrics.attempts != p.metrics.attempts {
		t.Error("second prober did not reuse registered collectors")
	}
}

func TestConfig_TimeoutFor(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		mt        models.MethodType
		requested time.Duration
		want      time.Duration
	}{
		{models.MethodSSH, 0, 30 * time.Second},
		{models.MethodSNMP, 0, 5 * time.Second},
		{models.MethodRedis, 0, 10 * time.Second},
		{models.MethodSSH, 2 * time.Second, 2 * time.Second},
	}
	for _, tt := range tests {
		if got := cfg.timeoutFor(tt.mt, tt.requested); got != tt.want {
			t.Errorf("timeoutFor(%s, %s) = %s, want %s", tt.mt, tt.requested, got, tt.want)
		}
	}
}
