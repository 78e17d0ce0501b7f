package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"app/internal/util"

	"github.com/rs/zerolog"
)

func dispatchHandler(secret string) http.Handler {
	mw := DispatchAuthMiddleware(false, secret, zerolog.Nop())
	return mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestDispatchAuthAcceptsSignedRequest(t *testing.T) {
	secret := "s3cret"
	body := []byte(`{"scheduled_item_id":"item-1"}`)
	sig, err := util.SignDispatch(body, secret, time.Now())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/internal/scheduled/execute", bytes.NewReader(body))
	req.Header.Set(SignatureHeader, sig)
	rr := httptest.NewRecorder()
	dispatchHandler(secret).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestDispatchAuthRejectsMissingSignature(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/internal/scheduled/execute", bytes.NewReader([]byte(`{}`)))
	rr := httptest.NewRecorder()
	dispatchHandler("s3cret").ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestDispatchAuthRejectsTamperedBody(t *testing.T) {
	secret := "s3cret"
	sig, _ := util.SignDispatch([]byte(`{"scheduled_item_id":"item-1"}`), secret, time.Now())

	req := httptest.NewRequest(http.MethodPost, "/internal/scheduled/execute", bytes.NewReader([]byte(`{"scheduled_item_id":"item-2"}`)))
	req.Header.Set(SignatureHeader, sig)
	rr := httptest.NewRecorder()
	dispatchHandler(secret).ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestDispatchAuthLocalBypass(t *testing.T) {
	mw := DispatchAuthMiddleware(true, "", zerolog.Nop())
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodPost, "/internal/scheduled/execute", bytes.NewReader([]byte(`{}`)))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 in local dev, got %d", rr.Code)
	}
}
