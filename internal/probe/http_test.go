package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/HerbHall/opsconductor/internal/vault"
	"github.com/HerbHall/opsconductor/pkg/models"
)

func serverHostPort(t *testing.T, srv *httptest.Server) (string, int) {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse %q: %v", srv.URL, err)
	}
	return splitAddr(t, u.Host)
}

func TestProbeREST_Auth(t *testing.T) {
	tests := []struct {
		name       string
		cred       *vault.Payload
		config     map[string]any
		header     string
		wantHeader string
	}{
		{
			name:       "api key default header",
			cred:       &vault.Payload{Type: models.CredentialAPIKey, Username: "svc", Password: "k1"},
			header:     "X-API-Key",
			wantHeader: "k1",
		},
		{
			name:       "api key custom header",
			cred:       &vault.Payload{Type: models.CredentialAPIKey, Username: "svc", Password: "k2"},
			config:     map[string]any{"api_key_header": "X-Auth"},
			header:     "X-Auth",
			wantHeader: "k2",
		},
		{
			name:       "bearer token",
			cred:       &vault.Payload{Type: models.CredentialAPIToken, Username: "svc", PrivateKey: "tok"},
			header:     "Authorization",
			wantHeader: "Bearer tok",
		},
		{
			name:       "basic auth",
			cred:       &vault.Payload{Type: models.CredentialPassword, Username: "u", Password: "p"},
			header:     "Authorization",
			wantHeader: "Basic dTpw",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := make(chan http.Header, 1)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/health" {
					t.Errorf("path = %q, want /api/health", r.URL.Path)
				}
				got <- r.Header.Clone()
				w.WriteHeader(http.StatusOK)
			}))
			defer srv.Close()

			host, port := serverHostPort(t, srv)
			cfg := map[string]any{"protocol": "http", "base_path": "api/health"}
			for k, v := range tt.config {
				cfg[k] = v
			}

			p, _ := newTestProber(t, Config{})
			res := p.Test(context.Background(), Request{
				MethodType: models.MethodRESTAPI, Host: host, Port: port,
				Credential: tt.cred, Config: cfg, Timeout: 5 * time.Second,
			})
			if !res.Success {
				t.Fatalf("Test() = %+v", res)
			}
			h := <-got
			if h.Get(tt.header) != tt.wantHeader {
				t.Errorf("%s = %q, want %q", tt.header, h.Get(tt.header), tt.wantHeader)
			}
		})
	}
}

func TestProbeREST_StatusVerdict(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{http.StatusOK, true},
		{http.StatusUnauthorized, true},
		{http.StatusNotFound, true},
		{http.StatusInternalServerError, false},
		{http.StatusServiceUnavailable, false},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.status)
		}))
		host, port := serverHostPort(t, srv)
		p, _ := newTestProber(t, Config{})

		res := p.Test(context.Background(), Request{
			MethodType: models.MethodRESTAPI, Host: host, Port: port,
			Config: map[string]any{"protocol": "http"}, Timeout: 5 * time.Second,
		})
		srv.Close()

		if res.Success != tt.want {
			t.Errorf("status %d: Success = %v, want %v (%s)", tt.status, res.Success, tt.want, res.Message)
		}
		if res.Details["status_code"] != tt.status {
			t.Errorf("status %d: details.status_code = %v", tt.status, res.Details["status_code"])
		}
	}
}

func TestProbeREST_VerifySSL(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	host, port := serverHostPort(t, srv)
	p, _ := newTestProber(t, Config{})

	res := p.Test(context.Background(), Request{
		MethodType: models.MethodRESTAPI, Host: host, Port: port,
		Config: map[string]any{"protocol": "https", "verify_ssl": true}, Timeout: 5 * time.Second,
	})
	if res.Success {
		t.Fatal("Test() with verify_ssl succeeded against a self-signed server")
	}
	if res.Kind() != KindTLS {
		t.Errorf("Kind() = %q, want %q (%s)", res.Kind(), KindTLS, res.Message)
	}

	res = p.Test(context.Background(), Request{
		MethodType: models.MethodRESTAPI, Host: host, Port: port,
		Config: map[string]any{"protocol": "https", "verify_ssl": false}, Timeout: 5 * time.Second,
	})
	if !res.Success {
		t.Errorf("Test() without verify_ssl = %+v", res)
	}
}

func TestProbeElasticsearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "elastic" || pass != "changeme" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"cluster_name":"logs","version":{"number":"8.13.0"}}`))
	}))
	defer srv.Close()
	host, port := serverHostPort(t, srv)
	p, _ := newTestProber(t, Config{})

	res := p.Test(context.Background(), Request{
		MethodType: models.MethodElasticsearch, Host: host, Port: port,
		Credential: &vault.Payload{Type: models.CredentialPassword, Username: "elastic", Password: "changeme"},
		Timeout:    5 * time.Second,
	})
	if !res.Success {
		t.Fatalf("Test() = %+v", res)
	}
	if res.Details["cluster_name"] != "logs" || res.Details["version"] != "8.13.0" {
		t.Errorf("details = %v", res.Details)
	}
}
