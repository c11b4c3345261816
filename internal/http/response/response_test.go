package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type decoded struct {
	Success bool `json:"success"`
	Data    struct {
		Status string `json:"status"`
	} `json:"data"`
	Error *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
	Meta struct {
		RequestID string `json:"request_id"`
	} `json:"meta"`
}

func TestJSONEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "req-123")

	JSON(rec, req, http.StatusOK, map[string]string{"status": "ok"})

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	var body decoded
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !body.Success || body.Data.Status != "ok" || body.Error != nil {
		t.Fatalf("unexpected envelope %+v", body)
	}
	if body.Meta.RequestID != "req-123" {
		t.Fatalf("unexpected request id %q", body.Meta.RequestID)
	}
}

func TestErrorEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)

	Error(rec, req, http.StatusBadRequest, "WEAK_PASSWORD", "too weak", map[string]string{"rule": "length"})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var body decoded
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Success || body.Error == nil {
		t.Fatalf("unexpected envelope %+v", body)
	}
	if body.Error.Code != "WEAK_PASSWORD" || body.Error.Message != "too weak" {
		t.Fatalf("unexpected error %+v", body.Error)
	}
	var details map[string]string
	if err := json.Unmarshal(body.Error.Details, &details); err != nil || details["rule"] != "length" {
		t.Fatalf("unexpected details %s", body.Error.Details)
	}
}
