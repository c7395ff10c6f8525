package probe

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/HerbHall/opsconductor/internal/vault"
	"github.com/HerbHall/opsconductor/pkg/models"
)

const maxBodyRead = 64 << 10

func (p *Prober) probeREST(ctx context.Context, req *Request, _ Mode) *Result {
	scheme := models.ConfigString(req.Config, "protocol")
	if scheme == "" {
		scheme = "https"
		if req.Port == 80 {
			scheme = "http"
		}
	}
	url := buildURL(scheme, req, models.ConfigString(req.Config, "base_path"))

	resp, res := p.httpGet(ctx, req, url, func(r *http.Request) {
		applyAPIAuth(r, req.Credential, req.Config)
	})
	if res != nil {
		return res
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyRead))

	return httpVerdict("API", resp.StatusCode).with("url", url)
}

func (p *Prober) probeElasticsearch(ctx context.Context, req *Request, _ Mode) *Result {
	scheme := models.ConfigString(req.Config, "protocol")
	if scheme == "" {
		scheme = "http"
	}
	url := buildURL(scheme, req, "/")

	resp, res := p.httpGet(ctx, req, url, func(r *http.Request) {
		if cred := req.Credential; cred != nil {
			if cred.Type == models.CredentialAPIToken {
				r.Header.Set("Authorization", "ApiKey "+cred.PrivateKey)
			} else if cred.Password != "" {
				r.SetBasicAuth(cred.Username, cred.Password)
			}
		}
	})
	if res != nil {
		return res
	}
	defer resp.Body.Close()

	var info struct {
		ClusterName string `json:"cluster_name"`
		Version     struct {
			Number string `json:"number"`
		} `json:"version"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, maxBodyRead)).Decode(&info)

	res = httpVerdict("Elasticsearch", resp.StatusCode)
	if info.ClusterName != "" {
		res.with("cluster_name", info.ClusterName)
	}
	if info.Version.Number != "" {
		res.with("version", info.Version.Number)
	}
	return res
}

// httpGet performs a single GET honoring config["verify_ssl"] (default true).
func (p *Prober) httpGet(ctx context.Context, req *Request, url string, auth func(*http.Request)) (*http.Response, *Result) {
	verify := models.ConfigBool(req.Config, "verify_ssl", true)
	client := &http.Client{
		Timeout: req.Timeout,
		Transport: &http.Transport{
			TLSClientConfig:   &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: !verify}, //nolint:gosec // G402: operator opt-out via verify_ssl
			DisableKeepAlives: true,
		},
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, failure(KindConfig, "invalid URL %q: %v", url, err)
	}
	httpReq.Header.Set("User-Agent", "opsconductor-probe")
	auth(httpReq)

	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, netFailure("GET "+url, err).withLatency(start)
	}
	return resp, nil
}

// applyAPIAuth sets the header for the stored credential type: api_key in a
// configurable header, api_token as a bearer token, password as basic auth.
func applyAPIAuth(r *http.Request, cred *vault.Payload, cfg map[string]any) {
	if cred == nil {
		return
	}
	switch cred.Type {
	case models.CredentialAPIKey:
		header := models.ConfigString(cfg, "api_key_header")
		if header == "" {
			header = "X-API-Key"
		}
		r.Header.Set(header, cred.Password)
	case models.CredentialAPIToken:
		r.Header.Set("Authorization", "Bearer "+cred.PrivateKey)
	default:
		if cred.Password != "" {
			r.SetBasicAuth(cred.Username, cred.Password)
		}
	}
}

func buildURL(scheme string, req *Request, path string) string {
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return fmt.Sprintf("%s://%s%s", strings.ToLower(scheme), hostPort(req), path)
}

// httpVerdict treats any status below 500 as a responding service.
func httpVerdict(what string, status int) *Result {
	text := fmt.Sprintf("HTTP %d %s", status, http.StatusText(status))
	if status >= 500 {
		return failure(KindProtocol, "%s returned %s", what, text).with("status_code", status)
	}
	return success("%s responding (%s)", what, text).with("status_code", status)
}
