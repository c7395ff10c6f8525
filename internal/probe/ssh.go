package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"

	"github.com/HerbHall/opsconductor/internal/vault"
)

func (p *Prober) probeSSH(ctx context.Context, req *Request, _ Mode) *Result {
	if res := requireCredential(req); res != nil {
		return res
	}
	auth, err := sshAuthMethods(req.Credential)
	if err != nil {
		return failure(KindConfig, "SSH credential unusable: %v", err)
	}

	cfg := &ssh.ClientConfig{
		User:            req.Credential.Username,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // G106: probing arbitrary managed hosts, keys are not pinned
		Timeout:         req.Timeout,
	}

	start := time.Now()
	client, err := p.sshDial(ctx, "tcp", hostPort(req), cfg)
	if err != nil {
		return classifySSHError(err, req.Credential.Username).withLatency(start)
	}
	defer client.Close()
	latency := ms(time.Since(start))

	canary := "opsconductor-" + uuid.NewString()[:8]
	out, err := runSSH(ctx, client, "echo "+canary)
	if err != nil {
		return netFailure("SSH canary command failed", err).withLatency(start)
	}
	if !strings.Contains(out, canary) {
		return failure(KindProtocol, "SSH authenticated but the shell did not echo the canary (got %q)", truncate(out, 64)).withLatency(start)
	}

	res := success("SSH connection successful, authenticated as %s", req.Credential.Username)
	res.LatencyMs = latency
	res.with("server_version", string(client.ServerVersion()))
	return res
}

// sshAuthMethods builds auth methods from a decrypted payload. A key wins
// over a password; passwords are offered both as "password" and
// "keyboard-interactive" since many servers only enable the latter.
func sshAuthMethods(cred *vault.Payload) ([]ssh.AuthMethod, error) {
	if cred.PrivateKey != "" {
		signer, err := parsePrivateKey(cred.PrivateKey, cred.Passphrase)
		if err != nil {
			return nil, err
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	if cred.Password == "" {
		return nil, errors.New("neither a password nor a private key is stored")
	}
	pw := cred.Password
	return []ssh.AuthMethod{
		ssh.Password(pw),
		ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
			answers := make([]string, len(questions))
			for i := range answers {
				answers[i] = pw
			}
			return answers, nil
		}),
	}, nil
}

// parsePrivateKey accepts PEM/OpenSSH keys, including keys pasted with
// literal "\n" escapes, optionally protected by a passphrase.
func parsePrivateKey(raw, passphrase string) (ssh.Signer, error) {
	key := strings.TrimSpace(raw)
	if !strings.Contains(key, "\n") && strings.Contains(key, `\n`) {
		key = strings.ReplaceAll(key, `\n`, "\n")
	}
	key = strings.ReplaceAll(key, "\r\n", "\n") + "\n"

	if passphrase != "" {
		signer, err := ssh.ParsePrivateKeyWithPassphrase([]byte(key), []byte(passphrase))
		if err == nil {
			return signer, nil
		}
		// Some operators store a passphrase for an unencrypted key.
		if plain, plainErr := ssh.ParsePrivateKey([]byte(key)); plainErr == nil {
			return plain, nil
		}
		return nil, fmt.Errorf("parse private key with passphrase: %w", err)
	}

	signer, err := ssh.ParsePrivateKey([]byte(key))
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, errors.New("private key is passphrase-protected but no passphrase is stored")
		}
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return signer, nil
}

func classifySSHError(err error, user string) *Result {
	msg := err.Error()
	if strings.Contains(msg, "unable to authenticate") || strings.Contains(msg, "no supported methods remain") {
		return failure(KindAuth, "SSH authentication failed for user %s", user)
	}
	if strings.Contains(msg, "handshake failed") && !isNetError(err) {
		return failure(KindProtocol, "SSH handshake failed: %v", err)
	}
	return netFailure("SSH connection failed", err)
}

func isNetError(err error) bool {
	var ne net.Error
	return errors.As(err, &ne)
}

// dialSSH dials with ctx and bounds the whole session by ctx's deadline.
func dialSSH(ctx context.Context, network, addr string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
	d := net.Dialer{Timeout: cfg.Timeout}
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return ssh.NewClient(c, chans, reqs), nil
}

func runSSH(ctx context.Context, client *ssh.Client, cmd string) (string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("open session: %w", err)
	}
	defer session.Close()

	var stdout bytes.Buffer
	session.Stdout = &stdout

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case err := <-done:
		return stdout.String(), err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
