package transcription

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dontdude/vedit/internal/domain"
)

func TestTranscribeSendsRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/transcribe" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var req domain.TranscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.URL != "http://store/v.mp4" || req.Language != "vi" {
			t.Errorf("request = %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","srt":[{"start":"00:00:01,000","end":"00:00:02,000","text":"xin chao"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", 5*time.Second)
	segs, err := c.Transcribe(context.Background(), domain.TranscriptionRequest{URL: "http://store/v.mp4", Language: "vi"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(segs) != 1 || segs[0].Text != "xin chao" {
		t.Fatalf("segments = %+v", segs)
	}
}

func TestTranscribeEmptyIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"srt":[]}`))
	}))
	defer srv.Close()

	segs, err := NewClient(srv.URL, time.Second).Transcribe(context.Background(), domain.TranscriptionRequest{URL: "u"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(segs) != 0 {
		t.Fatalf("segments = %+v", segs)
	}
}

func TestTranscribeServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"model not loaded"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Transcribe(context.Background(), domain.TranscriptionRequest{URL: "u"})
	if err == nil || !strings.Contains(err.Error(), "model not loaded") {
		t.Fatalf("err = %v, want service error", err)
	}
}

func TestTranscribeNonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Transcribe(context.Background(), domain.TranscriptionRequest{URL: "u"})
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("err = %v, want status error", err)
	}
}
