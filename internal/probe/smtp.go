package probe

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/HerbHall/opsconductor/pkg/models"
)

// SMTP encryption modes accepted in config["encryption"].
const (
	smtpSSL      = "ssl"
	smtpSTARTTLS = "starttls"
	smtpNone     = "none"
)

var errNoSTARTTLS = errors.New("server does not advertise STARTTLS")

func (p *Prober) probeSMTP(ctx context.Context, req *Request, mode Mode) *Result {
	enc := smtpEncryption(req)
	start := time.Now()

	client, verified, err := p.smtpConnect(ctx, req, enc, true)
	if err != nil && enc == smtpSTARTTLS && isTLSFailure(err) {
		// Self-signed test relays are common; retry once without verification.
		client, verified, err = p.smtpConnect(ctx, req, enc, false)
	}
	if err != nil {
		if errors.Is(err, errNoSTARTTLS) {
			return failure(KindProtocol, "SMTP server %s does not support STARTTLS", hostPort(req)).withLatency(start)
		}
		return netFailure("SMTP connection failed", err).withLatency(start)
	}
	defer client.Close()

	authenticated := false
	if cred := req.Credential; cred != nil && cred.Username != "" && cred.Password != "" {
		auth := smtp.PlainAuth("", cred.Username, cred.Password, req.Host)
		if err := client.Auth(auth); err != nil {
			return classifySMTPAuthError(err, cred.Username).withLatency(start)
		}
		authenticated = true
	}

	res := success("SMTP connection successful (%s)", enc)
	res.with("encryption", enc)
	res.with("authenticated", authenticated)
	if enc != smtpNone {
		res.with("tls_verified", verified)
	}

	if mode == ModeTest && req.TestRecipient != "" {
		if err := p.sendTestMessage(client, req); err != nil {
			return failure(KindProtocol, "SMTP connected but sending the test message failed: %v", err).withLatency(start)
		}
		res.Message = fmt.Sprintf("SMTP connection successful (%s); test message sent to %s", enc, req.TestRecipient)
		res.with("test_message_sent", true)
	}

	p.logOnErr("smtp quit", client.Quit())
	return res.withLatency(start)
}

func smtpEncryption(req *Request) string {
	switch strings.ToLower(strings.TrimSpace(models.ConfigString(req.Config, "encryption"))) {
	case "ssl", "tls", "implicit":
		return smtpSSL
	case "none", "plain":
		return smtpNone
	case "":
		if req.Port == 465 {
			return smtpSSL
		}
		return smtpSTARTTLS
	default:
		return smtpSTARTTLS
	}
}

// smtpConnect dials, optionally wraps or upgrades TLS, and returns a client
// ready for AUTH. The connection deadline follows ctx.
func (p *Prober) smtpConnect(ctx context.Context, req *Request, enc string, verify bool) (*smtp.Client, bool, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", hostPort(req))
	if err != nil {
		return nil, false, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	tlsCfg := &tls.Config{
		ServerName:         req.Host,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: !verify, //nolint:gosec // G402: only after a verified attempt failed
	}

	if enc == smtpSSL {
		tc := tls.Client(conn, tlsCfg)
		if err := tc.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, false, err
		}
		conn = tc
	}

	client, err := smtp.NewClient(conn, req.Host)
	if err != nil {
		conn.Close()
		return nil, false, err
	}
	if err := client.Hello("opsconductor"); err != nil {
		client.Close()
		return nil, false, err
	}

	if enc == smtpSTARTTLS {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			client.Close()
			return nil, false, errNoSTARTTLS
		}
		if err := client.StartTLS(tlsCfg); err != nil {
			client.Close()
			return nil, false, err
		}
	}
	return client, verify, nil
}

func (p *Prober) sendTestMessage(client *smtp.Client, req *Request) error {
	from := models.ConfigString(req.Config, "from_address")
	if from == "" {
		from = p.cfg.SMTPFrom
	}
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	if err := client.Rcpt(req.TestRecipient); err != nil {
		return fmt.Errorf("RCPT TO: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	msg := strings.Join([]string{
		"From: " + from,
		"To: " + req.TestRecipient,
		"Subject: OpsConductor SMTP connection test",
		"Date: " + time.Now().UTC().Format(time.RFC1123Z),
		"",
		"This message confirms that OpsConductor can deliver mail through " + hostPort(req) + ".",
		"",
	}, "\r\n")
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return w.Close()
}

func isTLSFailure(err error) bool {
	kind, _ := classifyNetError(err)
	if kind == KindTLS {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "x509:") || strings.Contains(msg, "tls:")
}

func classifySMTPAuthError(err error, user string) *Result {
	msg := err.Error()
	if strings.Contains(msg, "unencrypted connection") {
		return failure(KindConfig, "SMTP refused to send credentials over an unencrypted connection; use ssl or starttls")
	}
	if strings.HasPrefix(msg, "535") || strings.HasPrefix(msg, "534") || strings.Contains(strings.ToLower(msg), "auth") {
		return failure(KindAuth, "SMTP authentication failed for user %s: %s", user, msg)
	}
	return netFailure("SMTP authentication failed", err)
}
