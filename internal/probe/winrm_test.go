package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/HerbHall/opsconductor/internal/vault"
	"github.com/HerbHall/opsconductor/pkg/models"
)

func TestProbeWinRM_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	host, port := serverHostPort(t, srv)
	p, _ := newTestProber(t, Config{})

	res := p.Test(context.Background(), Request{
		MethodType: models.MethodWinRM, Host: host, Port: port, Timeout: 5 * time.Second,
		Credential: &vault.Payload{Type: models.CredentialPassword, Username: "Administrator", Password: "x"},
		Config:     map[string]any{"protocol": "http"},
	})
	if res.Success {
		t.Fatal("Test() Success = true against 401 endpoint")
	}
	if res.Kind() != KindAuth {
		t.Errorf("Kind() = %q, want %q (%s)", res.Kind(), KindAuth, res.Message)
	}
}

func TestProbeWinRM_Refused(t *testing.T) {
	host, port := closedPort(t)
	p, _ := newTestProber(t, Config{})

	res := p.Test(context.Background(), Request{
		MethodType: models.MethodWinRM, Host: host, Port: port, Timeout: 2 * time.Second,
		Credential: &vault.Payload{Type: models.CredentialPassword, Username: "Administrator", Password: "x"},
	})
	if res.Success {
		t.Fatal("Test() Success = true against closed port")
	}
	if res.Kind() == KindAuth || res.Kind() == KindConfig {
		t.Errorf("Kind() = %q, want a transport failure (%s)", res.Kind(), res.Message)
	}
}
