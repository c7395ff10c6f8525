package probe

import (
	"context"
	"encoding/base64"
	"net"
	"net/textproto"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/HerbHall/opsconductor/internal/vault"
	"github.com/HerbHall/opsconductor/pkg/models"
)

// fakeSMTP is a scripted SMTP server that records the verbs it receives.
type fakeSMTP struct {
	user, pass string
	starttls   bool

	mu       sync.Mutex
	verbs    []string
	messages []string
}

func (f *fakeSMTP) start(t *testing.T) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go f.serve(conn)
		}
	}()
	return splitAddr(t, ln.Addr().String())
}

func (f *fakeSMTP) serve(conn net.Conn) {
	defer conn.Close()
	tp := textproto.NewConn(conn)
	tp.PrintfLine("220 fake.local ESMTP")

	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		verb := strings.ToUpper(strings.Fields(line + " x")[0])
		f.mu.Lock()
		f.verbs = append(f.verbs, verb)
		f.mu.Unlock()

		switch verb {
		case "EHLO":
			tp.PrintfLine("250-fake.local")
			if f.starttls {
				tp.PrintfLine("250-STARTTLS")
			}
			tp.PrintfLine("250 AUTH PLAIN")
		case "AUTH":
			want := base64.StdEncoding.EncodeToString([]byte("\x00" + f.user + "\x00" + f.pass))
			if fields := strings.Fields(line); len(fields) == 3 && fields[2] == want {
				tp.PrintfLine("235 2.7.0 Authentication successful")
			} else {
				tp.PrintfLine("535 5.7.8 Authentication credentials invalid")
			}
		case "MAIL", "RCPT", "RSET", "NOOP":
			tp.PrintfLine("250 OK")
		case "DATA":
			tp.PrintfLine("354 End data with <CR><LF>.<CR><LF>")
			lines, err := tp.ReadDotLines()
			if err != nil {
				return
			}
			f.mu.Lock()
			f.messages = append(f.messages, strings.Join(lines, "\n"))
			f.mu.Unlock()
			tp.PrintfLine("250 queued")
		case "QUIT":
			tp.PrintfLine("221 bye")
			return
		default:
			tp.PrintfLine("502 command not implemented")
		}
	}
}

func (f *fakeSMTP) seen() ([]string, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.verbs), slices.Clone(f.messages)
}

func smtpRequest(host string, port int, password, recipient string) Request {
	return Request{
		MethodType: models.MethodSMTP,
		Host:       host,
		Port:       port,
		Timeout:    5 * time.Second,
		Credential: &vault.Payload{Type: models.CredentialPassword, Username: "mailer", Password: password},
		Config: map[string]any{
			"encryption":     "none",
			"test_recipient": "configured@example.com",
		},
		TestRecipient: recipient,
	}
}

func TestProbeSMTP_HealthCheckNeverSendsMail(t *testing.T) {
	srv := &fakeSMTP{user: "mailer", pass: "pw"}
	host, port := srv.start(t)
	p, _ := newTestProber(t, Config{})

	res := p.HealthCheck(context.Background(), smtpRequest(host, port, "pw", "ops@example.com"))
	if !res.Success {
		t.Fatalf("HealthCheck() = %+v", res)
	}

	verbs, messages := srv.seen()
	for _, v := range []string{"MAIL", "RCPT", "DATA"} {
		if slices.Contains(verbs, v) {
			t.Errorf("health check sent %s (verbs %v)", v, verbs)
		}
	}
	if len(messages) != 0 {
		t.Errorf("health check delivered %d messages", len(messages))
	}
	if !slices.Contains(verbs, "AUTH") {
		t.Errorf("health check did not authenticate (verbs %v)", verbs)
	}
}

func TestProbeSMTP_TestSendsMailOnlyWithRecipient(t *testing.T) {
	srv := &fakeSMTP{user: "mailer", pass: "pw"}
	host, port := srv.start(t)
	p, _ := newTestProber(t, Config{SMTPFrom: "noreply@example.com"})

	res := p.Test(context.Background(), smtpRequest(host, port, "pw", ""))
	if !res.Success {
		t.Fatalf("Test() without recipient = %+v", res)
	}
	if _, messages := srv.seen(); len(messages) != 0 {
		t.Fatalf("Test() without recipient delivered %d messages", len(messages))
	}

	res = p.Test(context.Background(), smtpRequest(host, port, "pw", "ops@example.com"))
	if !res.Success {
		t.Fatalf("Test() with recipient = %+v", res)
	}
	if res.Details["test_message_sent"] != true {
		t.Errorf("details = %v, want test_message_sent", res.Details)
	}
	_, messages := srv.seen()
	if len(messages) != 1 {
		t.Fatalf("delivered %d messages, want 1", len(messages))
	}
	if !strings.Contains(messages[0], "Subject: OpsConductor SMTP connection test") ||
		!strings.Contains(messages[0], "To: ops@example.com") {
		t.Errorf("message = %q", messages[0])
	}
}

func TestProbeSMTP_AuthFailure(t *testing.T) {
	srv := &fakeSMTP{user: "mailer", pass: "pw"}
	host, port := srv.start(t)
	p, _ := newTestProber(t, Config{})

	res := p.Test(context.Background(), smtpRequest(host, port, "wrong", ""))
	if res.Success {
		t.Fatal("Test() Success = true with wrong password")
	}
	if res.Kind() != KindAuth {
		t.Errorf("Kind() = %q, want %q (%s)", res.Kind(), KindAuth, res.Message)
	}
}

func TestProbeSMTP_MissingSTARTTLS(t *testing.T) {
	srv := &fakeSMTP{user: "mailer", pass: "pw"}
	host, port := srv.start(t)
	p, _ := newTestProber(t, Config{})

	req := smtpRequest(host, port, "pw", "")
	req.Config["encryption"] = "starttls"
	res := p.Test(context.Background(), req)
	if res.Success {
		t.Fatal("Test() Success = true without STARTTLS support")
	}
	if !strings.Contains(res.Message, "STARTTLS") {
		t.Errorf("Message = %q", res.Message)
	}
}

func TestSMTPEncryption(t *testing.T) {
	tests := []struct {
		enc  string
		port int
		want string
	}{
		{"", 587, smtpSTARTTLS},
		{"", 465, smtpSSL},
		{"SSL", 587, smtpSSL},
		{"none", 25, smtpNone},
		{"starttls", 587, smtpSTARTTLS},
	}
	for _, tt := range tests {
		req := &Request{Port: tt.port, Config: map[string]any{"encryption": tt.enc}}
		if got := smtpEncryption(req); got != tt.want {
			t.Errorf("smtpEncryption(%q, %d) = %q, want %q", tt.enc, tt.port, got, tt.want)
		}
	}
}
