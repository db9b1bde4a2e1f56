package httpc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewClient_Timeout(t *testing.T) {
	if got := NewClient(5 * time.Second).Timeout; got != 5*time.Second {
		t.Errorf("Timeout: got %v", got)
	}
	if got := NewClient(0).Timeout; got != DefaultTimeout {
		t.Errorf("zero timeout: got %v, want %v", got, DefaultTimeout)
	}
}

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"ok":true,"api":"online"}`))
		case "/bad":
			w.Write([]byte(`{not json`))
		default:
			http.Error(w, "nope", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	var out struct {
		OK  bool   `json:"ok"`
		API string `json:"api"`
	}
	if err := GetJSON(context.Background(), nil, srv.URL+"/ok", &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if !out.OK || out.API != "online" {
		t.Errorf("decoded %+v", out)
	}

	err := GetJSON(context.Background(), srv.Client(), srv.URL+"/missing", &out)
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		t.Errorf("missing: got %v, want StatusError 404", err)
	}

	if err := GetJSON(context.Background(), srv.Client(), srv.URL+"/bad", &out); err == nil {
		t.Error("bad body: expected decode error")
	}
}
