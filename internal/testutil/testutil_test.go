package testutil

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLocalRequest(t *testing.T) {
	req := LocalRequest(http.MethodGet, "/debug/", nil)
	if req.RemoteAddr != "127.0.0.1:12345" {
		t.Errorf("RemoteAddr = %q", req.RemoteAddr)
	}
	AssertNoError(t, nil)
}

func TestDecodeJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	rec.WriteHeader(http.StatusAccepted)
	rec.Body.WriteString(`{"cycles": 3}`)

	AssertStatusCode(t, rec.Code, http.StatusAccepted)
	got := DecodeJSON[map[string]int](t, rec)
	if got["cycles"] != 3 {
		t.Errorf("cycles = %d, want 3", got["cycles"])
	}
}
