// Package probe performs live connectivity and authentication tests against
// communication methods and reduces every outcome to a uniform Result.
package probe

import (
	"context"
	"net"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/time/rate"

	"github.com/HerbHall/opsconductor/internal/methods"
	"github.com/HerbHall/opsconductor/pkg/models"
)

// Mode selects between a full connection test and a side-effect-free
// health check.
type Mode int

const (
	// ModeTest is the operator-triggered connection test. An SMTP test may
	// send a real message when the request names a recipient.
	ModeTest Mode = iota
	// ModeHealth is routine polling. It never sends mail or changes
	// remote state.
	ModeHealth
)

func (m Mode) String() string {
	if m == ModeHealth {
		return "health"
	}
	return "test"
}

type probeFunc func(ctx context.Context, req *Request, mode Mode) *Result

// Prober dispatches connection tests by method type. It is safe for
// concurrent use.
type Prober struct {
	cfg     Config
	logger  *zap.Logger
	limiter *rate.Limiter
	metrics *metrics
	probes  map[models.MethodType]probeFunc

	// sshDial establishes SSH connections. Overridden in tests.
	sshDial func(ctx context.Context, network, addr string, cfg *ssh.ClientConfig) (*ssh.Client, error)
	// ping reports ICMP reachability for the TCP fallback hint.
	ping func(host string, timeout time.Duration, privileged bool) bool
}

// New creates a Prober. reg may be nil to skip metric registration.
func New(cfg Config, logger *zap.Logger, reg prometheus.Registerer) *Prober {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	if cfg.SMTPFrom == "" {
		cfg.SMTPFrom = DefaultConfig().SMTPFrom
	}

	p := &Prober{
		cfg:     cfg,
		logger:  logger,
		limiter: rate.NewLimiter(limit, burst),
		metrics: newMetrics(reg),
		sshDial: dialSSH,
		ping:    icmpPing,
	}
	p.probes = map[models.MethodType]probeFunc{
		models.MethodSSH:           p.probeSSH,
		models.MethodWinRM:         p.probeWinRM,
		models.MethodSNMP:          p.probeSNMP,
		models.MethodTelnet:        p.probeTelnet,
		models.MethodRESTAPI:       p.probeREST,
		models.MethodSMTP:          p.probeSMTP,
		models.MethodMySQL:         p.probeMySQL,
		models.MethodPostgreSQL:    p.probePostgreSQL,
		models.MethodMSSQL:         p.probeTCP,
		models.MethodOracle:        p.probeTCP,
		models.MethodSQLite:        p.probeSQLite,
		models.MethodMongoDB:       p.probeTCP,
		models.MethodRedis:         p.probeRedis,
		models.MethodElasticsearch: p.probeElasticsearch,
	}
	return p
}

// Test runs the general-purpose connection test for req.
func (p *Prober) Test(ctx context.Context, req Request) *Result {
	return p.run(ctx, req, ModeTest)
}

// HealthCheck runs the same probe as Test without side effects: SMTP stops
// after authentication whatever recipient the request or config carries.
func (p *Prober) HealthCheck(ctx context.Context, req Request) *Result {
	req.TestRecipient = ""
	return p.run(ctx, req, ModeHealth)
}

func (p *Prober) run(ctx context.Context, req Request, mode Mode) *Result {
	start := time.Now()

	fn, ok := p.probes[req.MethodType]
	if !ok {
		return p.finish(&req, mode, start,
			failure(KindConfig, "unsupported method type %q", req.MethodType))
	}

	if req.Port == 0 {
		if s, ok := methods.Lookup(req.MethodType); ok {
			req.Port = s.DefaultPort
		}
	}
	req.Timeout = p.cfg.timeoutFor(req.MethodType, req.Timeout)
	if req.Timeout <= 0 {
		return p.finish(&req, mode, start,
			failure(KindConfig, "internal configuration error: %s probe timeout must be positive, got %s", req.MethodType, req.Timeout))
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return p.finish(&req, mode, start,
			failure(KindInternal, "probe cancelled before it started: %v", err))
	}

	probeCtx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	res := p.call(probeCtx, fn, &req, mode)
	return p.finish(&req, mode, start, res)
}

// call invokes fn, converting a panic into a failed Result.
func (p *Prober) call(ctx context.Context, fn probeFunc, req *Request, mode Mode) (res *Result) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("probe panicked",
				zap.String("method_type", string(req.MethodType)),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			res = failure(KindInternal, "internal error during %s probe: %v", req.MethodType, r)
		}
	}()
	res = fn(ctx, req, mode)
	if res == nil {
		res = failure(KindInternal, "%s probe returned no result", req.MethodType)
	}
	return res
}

func (p *Prober) finish(req *Request, mode Mode, start time.Time, res *Result) *Result {
	elapsed := time.Since(start)
	if res.LatencyMs == 0 {
		res.LatencyMs = ms(elapsed)
	}
	if res.Details == nil {
		res.Details = map[string]any{}
	}
	res.MethodType = req.MethodType
	res.IPAddress = req.Host
	res.TestedAt = time.Now().UTC()

	p.metrics.observe(string(req.MethodType), res.Success, elapsed.Seconds())
	p.logger.Debug("probe finished",
		zap.String("method_type", string(req.MethodType)),
		zap.String("host", req.Host),
		zap.Int("port", req.Port),
		zap.Stringer("mode", mode),
		zap.Bool("success", res.Success),
		zap.String("message", res.Message),
		zap.Duration("elapsed", elapsed),
	)
	return res
}

func hostPort(req *Request) string {
	return net.JoinHostPort(req.Host, strconv.Itoa(req.Port))
}

func requireCredential(req *Request) *Result {
	if req.Credential == nil {
		return failure(KindConfig, "%s probe requires a credential", req.MethodType)
	}
	return nil
}

func (r *Result) withLatency(start time.Time) *Result {
	r.LatencyMs = ms(time.Since(start))
	return r
}

func (r *Result) with(key string, value any) *Result {
	if r.Details == nil {
		r.Details = map[string]any{}
	}
	r.Details[key] = value
	return r
}
