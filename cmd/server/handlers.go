package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/dontdude/vedit/internal/jobs"
	"github.com/dontdude/vedit/internal/pipeline"
	"github.com/dontdude/vedit/internal/worker"
)

// Request body caps: a multipart video upload, and a JSON submission
// (subtitle documents included).
const (
	maxUploadBytes = 1 << 30
	maxJSONBytes   = 8 << 20
)

// api exposes job submission over HTTP. Every submission answers at once with
// the job id; progress is read from the WebSocket or history endpoints.
type api struct {
	runner     *jobs.Runner
	upload     jobs.Job[pipeline.UploadInput]
	burn       jobs.Job[pipeline.SubtitleInput]
	transcribe jobs.Job[pipeline.TranscriptionInput]
	logger     *slog.Logger
}

// handleUpload accepts multipart/form-data with a "file" field.
func (a *api) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	jobID, err := jobs.Submit(a.runner, "upload", a.upload, pipeline.UploadInput{
		ProjectID: r.PathValue("id"),
		FileName:  filepath.Base(header.Filename),
		Data:      data,
	})
	a.accepted(w, jobID, err)
}

// handleSubtitles accepts {"subtitles": "...", "format": "ass"|"srt"}.
func (a *api) handleSubtitles(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Subtitles string `json:"subtitles"`
		Format    string `json:"format"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	// Emptiness is reported by the job as SUB_EMPTY, not rejected here.
	jobID, err := jobs.Submit(a.runner, "subtitle-burn", a.burn, pipeline.SubtitleInput{
		ProjectID: r.PathValue("id"),
		Subtitles: []byte(req.Subtitles),
		Format:    req.Format,
	})
	a.accepted(w, jobID, err)
}

// handleTranscription accepts {"url", "language", "translate", "project_id"}.
func (a *api) handleTranscription(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL       string `json:"url"`
		Language  string `json:"language"`
		Translate bool   `json:"translate"`
		ProjectID string `json:"project_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.URL == "" && req.ProjectID == "" {
		writeError(w, http.StatusBadRequest, "url or project_id is required")
		return
	}

	jobID, err := jobs.Submit(a.runner, "transcription", a.transcribe, pipeline.TranscriptionInput{
		URL:       req.URL,
		Language:  req.Language,
		Translate: req.Translate,
		ProjectID: req.ProjectID,
	})
	a.accepted(w, jobID, err)
}

func (a *api) accepted(w http.ResponseWriter, jobID string, err error) {
	if errors.Is(err, worker.ErrPoolStopped) {
		writeError(w, http.StatusServiceUnavailable, "Server is shutting down")
		return
	}
	if err != nil {
		a.logger.Error("Failed to submit job", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"job_id": jobID,
		"status": "queued",
	})
}

// decodeJSON reads a capped JSON body into v. On failure it writes the error
// response and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// enableCORS adds headers to allow requests from the editor frontend.
func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
