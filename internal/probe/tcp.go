package probe

import (
	"context"
	"net"
	"strings"
	"time"
	"unicode"

	probing "github.com/prometheus-community/pro-bing"
	"go.uber.org/zap"
)

const (
	icmpTimeout   = 2 * time.Second
	bannerTimeout = 2 * time.Second
	bannerMax     = 256
)

// probeTCP checks plain TCP reachability. Used for protocols without an
// authenticated handshake.
func (p *Prober) probeTCP(ctx context.Context, req *Request, _ Mode) *Result {
	conn, res := p.dialTCP(ctx, req)
	if res != nil {
		return res
	}
	conn.Close()
	return success("TCP port %d on %s is reachable", req.Port, req.Host)
}

// probeTelnet connects and reads whatever banner the server offers.
func (p *Prober) probeTelnet(ctx context.Context, req *Request, _ Mode) *Result {
	start := time.Now()
	conn, res := p.dialTCP(ctx, req)
	if res != nil {
		return res
	}
	defer conn.Close()
	latency := ms(time.Since(start))

	deadline := time.Now().Add(bannerTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)

	buf := make([]byte, bannerMax)
	n, _ := conn.Read(buf)

	res = success("Telnet port %d on %s is reachable", req.Port, req.Host)
	res.LatencyMs = latency
	if banner := printable(buf[:n]); banner != "" {
		res.with("banner", banner)
	}
	return res
}

// dialTCP opens a TCP connection, returning a failed Result (with an
// optional ICMP hint) when it cannot.
func (p *Prober) dialTCP(ctx context.Context, req *Request) (net.Conn, *Result) {
	addr := hostPort(req)
	start := time.Now()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		res := netFailure("TCP connect to "+addr, err).withLatency(start)
		p.icmpHint(req.Host, res)
		return nil, res
	}
	return conn, nil
}

// icmpHint adds details.icmp_reachable to a failed TCP result when the
// fallback is enabled, so operators can tell a closed port from a dead host.
func (p *Prober) icmpHint(host string, res *Result) {
	if !p.cfg.ICMPFallback || p.ping == nil {
		return
	}
	alive := p.ping(host, icmpTimeout, p.cfg.ICMPPrivileged)
	res.with("icmp_reachable", alive)
	if alive {
		res.Message += " (host answers ICMP echo)"
	}
}

func icmpPing(host string, timeout time.Duration, privileged bool) bool {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		return false
	}
	pinger.Count = 1
	pinger.Timeout = timeout
	pinger.SetPrivileged(privileged)
	if err := pinger.Run(); err != nil {
		return false
	}
	return pinger.Statistics().PacketsRecv > 0
}

// printable strips telnet option negotiation and control bytes.
func printable(b []byte) string {
	var sb strings.Builder
	for _, r := range string(b) {
		if r == '\n' || r == ' ' || (unicode.IsPrint(r) && r != unicode.ReplacementChar) {
			sb.WriteRune(r)
		}
	}
	return strings.TrimSpace(sb.String())
}

// logOnErr logs a close/cleanup error at debug level.
func (p *Prober) logOnErr(what string, err error) {
	if err != nil {
		p.logger.Debug(what, zap.Error(err))
	}
}
