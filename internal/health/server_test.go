package health

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

func TestPingWithValidKey(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	server := NewServer(0, "s3cret", logrus.NewEntry(logger))

	req := httptest.NewRequest(http.MethodGet, "/ping?key=s3cret", nil)
	rr := httptest.NewRecorder()

	server.server.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected HTTP 200, got %d", rr.Code)
	}

	if body := rr.Body.String(); body != livenessBody {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestPingWithWrongKey(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	server := NewServer(0, "s3cret", logrus.NewEntry(logger))

	req := httptest.NewRequest(http.MethodGet, "/ping?key=guess", nil)
	rr := httptest.NewRecorder()

	server.server.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected HTTP 403, got %d", rr.Code)
	}

	if !strings.Contains(rr.Body.String(), "access denied") {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}
}

func TestPingWithMissingKey(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	server := NewServer(0, "s3cret", logrus.NewEntry(logger))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rr := httptest.NewRecorder()

	server.server.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected HTTP 403, got %d", rr.Code)
	}
}

func TestPingRejectsWhenKeyUnconfigured(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	server := NewServer(0, "", logrus.NewEntry(logger))

	req := httptest.NewRequest(http.MethodGet, "/ping?key=", nil)
	rr := httptest.NewRecorder()

	server.server.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected HTTP 403 when no key is configured, got %d", rr.Code)
	}
}
