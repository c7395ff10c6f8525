package probe

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/HerbHall/opsconductor/pkg/models"
)

func TestProbeTCP_Success(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	host, port := splitAddr(t, ln.Addr().String())
	p, _ := newTestProber(t, Config{})

	res := p.Test(context.Background(), Request{MethodType: models.MethodMongoDB, Host: host, Port: port, Timeout: 2 * time.Second})
	if !res.Success {
		t.Fatalf("Test() = %+v, want success", res)
	}
	if res.LatencyMs < 0 {
		t.Errorf("LatencyMs = %v", res.LatencyMs)
	}
}

func TestProbeTCP_Refused(t *testing.T) {
	host, port := closedPort(t)
	p, _ := newTestProber(t, Config{})

	res := p.Test(context.Background(), Request{MethodType: models.MethodOracle, Host: host, Port: port, Timeout: 2 * time.Second})
	if res.Success {
		t.Fatal("Test() Success = true against closed port")
	}
	if res.Kind() != KindRefused {
		t.Errorf("Kind() = %q, want %q (%s)", res.Kind(), KindRefused, res.Message)
	}
	if _, ok := res.Details["icmp_reachable"]; ok {
		t.Error("icmp hint present with fallback disabled")
	}
}

func TestProbeTCP_ICMPHint(t *testing.T) {
	host, port := closedPort(t)
	p, _ := newTestProber(t, Config{ICMPFallback: true})

	var pinged string
	p.ping = func(h string, _ time.Duration, _ bool) bool {
		pinged = h
		return true
	}

	res := p.Test(context.Background(), Request{MethodType: models.MethodMSSQL, Host: host, Port: port, Timeout: 2 * time.Second})
	if res.Success {
		t.Fatal("Test() Success = true against closed port")
	}
	if pinged != host {
		t.Errorf("pinged %q, want %q", pinged, host)
	}
	if res.Details["icmp_reachable"] != true {
		t.Errorf("icmp_reachable = %v, want true", res.Details["icmp_reachable"])
	}
	if !strings.Contains(res.Message, "ICMP") {
		t.Errorf("Message = %q, want ICMP note", res.Message)
	}
}

func TestProbeTelnet_Banner(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		// IAC DO ECHO followed by a login prompt.
		conn.Write(append([]byte{255, 253, 1}, "router01 login: "...))
		time.Sleep(100 * time.Millisecond)
	}()

	host, port := splitAddr(t, ln.Addr().String())
	p, _ := newTestProber(t, Config{})

	res := p.Test(context.Background(), Request{MethodType: models.MethodTelnet, Host: host, Port: port, Timeout: 2 * time.Second})
	if !res.Success {
		t.Fatalf("Test() = %+v", res)
	}
	banner, _ := res.Details["banner"].(string)
	if !strings.Contains(banner, "router01 login:") {
		t.Errorf("banner = %q", banner)
	}
}

func TestPrintable(t *testing.T) {
	if got := printable([]byte{255, 251, 1, 'o', 'k', '\r', '\n'}); got != "ok" {
		t.Errorf("printable() = %q, want ok", got)
	}
}
