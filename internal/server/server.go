package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gifforge/internal/config"
	"gifforge/internal/ledger"
	"gifforge/internal/logging"
	"gifforge/internal/mediatypes"
	"gifforge/internal/pipeline"
	"gifforge/internal/source"
)

// Server exposes the conversion pipeline over HTTP: uploads in, job status
// and artifacts out, live progress over websockets.
type Server struct {
	cfg      *config.Config
	jobs     *JobManager
	led      *ledger.Ledger
	upgrader websocket.Upgrader
}

// New wires a server. led may be nil.
func New(cfg *config.Config, pipe *pipeline.Pipeline, led *ledger.Ledger) *Server {
	return &Server{
		cfg:  cfg,
		jobs: NewJobManager(pipe, led, time.Hour),
		led:  led,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Jobs exposes the job manager for lifecycle wiring (the reap loop).
func (s *Server) Jobs() *JobManager { return s.jobs }

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", s.HealthCheck).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/convert", s.StartConversion).Methods("POST")
	api.HandleFunc("/jobs", s.ListJobs).Methods("GET")
	api.HandleFunc("/jobs/{id}", s.GetJob).Methods("GET")
	api.HandleFunc("/jobs/{id}", s.CancelJob).Methods("DELETE")
	api.HandleFunc("/jobs/{id}/artifact", s.GetArtifact).Methods("GET")
	api.HandleFunc("/jobs/{id}/poster", s.GetPoster).Methods("GET")

	r.HandleFunc("/ws/jobs/{id}", s.JobProgressWS).Methods("GET")

	return Logging(Metrics(r))
}

// HealthCheck reports service liveness.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// StartConversion accepts a multipart upload plus conversion parameters and
// starts an asynchronous job.
func (s *Server) StartConversion(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Limits.MaxSourceBytes+1024)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "upload too large or malformed")
		return
	}

	file, header, err := r.FormFile("video")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing video file")
		return
	}
	defer file.Close()

	req, err := parseRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ext := mediatypes.NormalizeExt(header.Filename)
	path := filepath.Join(s.cfg.WorkDir, fmt.Sprintf("upload-%s%s", uuid.NewString(), ext))
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not store upload")
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		os.Remove(path)
		writeError(w, http.StatusInternalServerError, "could not store upload")
		return
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		writeError(w, http.StatusInternalServerError, "could not store upload")
		return
	}

	job := s.jobs.Start(path, header.Header.Get("Content-Type"), req)
	logging.Info("Job %s queued: %s -> %s", job.ID, header.Filename, req.Format)
	writeJSON(w, http.StatusAccepted, job.snapshot())
}

// ListJobs returns all in-memory jobs plus recent ledger history.
func (s *Server) ListJobs(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		Jobs    []Snapshot      `json:"jobs"`
		History []ledger.Record `json:"history,omitempty"`
	}{Jobs: s.jobs.List()}

	if s.led != nil {
		history, err := s.led.List()
		if err != nil {
			logging.Warn("ledger list failed: %v", err)
		} else {
			resp.History = history
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetJob returns one job's status, falling back to the ledger for jobs that
// aged out of memory.
func (s *Server) GetJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if job, ok := s.jobs.Get(id); ok {
		writeJSON(w, http.StatusOK, job.snapshot())
		return
	}

	if s.led != nil {
		rec, err := s.led.Get(id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "ledger lookup failed")
			return
		}
		if rec != nil {
			writeJSON(w, http.StatusOK, rec)
			return
		}
	}
	writeError(w, http.StatusNotFound, "unknown job")
}

// CancelJob requests cancellation of a running job.
func (s *Server) CancelJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job, ok := s.jobs.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown job")
		return
	}
	job.Cancel()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "canceling"})
}

// GetArtifact serves a finished job's output bytes.
func (s *Server) GetArtifact(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job, ok := s.jobs.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown job")
		return
	}
	res := job.Result()
	if res == nil || len(res.Bytes) == 0 {
		writeError(w, http.StatusConflict, "job has no artifact")
		return
	}

	contentType := "image/gif"
	ext := ".gif"
	if res.Format == source.FormatMP4 {
		contentType = "video/mp4"
		ext = ".mp4"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(res.Size))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+ext))
	if _, err := w.Write(res.Bytes); err != nil {
		logging.Debug("artifact write aborted for job %s: %v", id, err)
	}
}

// GetPoster serves the preview image captured from the first frame.
func (s *Server) GetPoster(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job, ok := s.jobs.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown job")
		return
	}
	res := job.Result()
	if res == nil || len(res.Poster) == 0 {
		writeError(w, http.StatusConflict, "job has no poster")
		return
	}
	w.Header().Set("Content-Type", "image/webp")
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Poster)))
	if _, err := w.Write(res.Poster); err != nil {
		logging.Debug("poster write aborted for job %s: %v", id, err)
	}
}

// parseRequest builds a conversion request from form values, applying the
// defaults the API documents.
func parseRequest(r *http.Request) (source.Request, error) {
	req := source.Request{
		FPS:     10,
		Quality: 80,
		Format:  source.FormatGIF,
	}

	if v := r.FormValue("format"); v != "" {
		req.Format = source.Format(v)
	}
	var err error
	if req.FPS, err = formInt(r, "fps", req.FPS); err != nil {
		return req, err
	}
	if req.Quality, err = formInt(r, "quality", req.Quality); err != nil {
		return req, err
	}
	if req.TargetWidth, err = formInt(r, "width", 0); err != nil {
		return req, err
	}
	if req.TargetHeight, err = formInt(r, "height", 0); err != nil {
		return req, err
	}
	if req.StartTime, err = formFloat(r, "start", 0); err != nil {
		return req, err
	}
	if req.Duration, err = formFloat(r, "duration", 0); err != nil {
		return req, err
	}
	req.TrimEnabled = r.FormValue("trim") == "true" || req.Duration > 0

	if err := req.Validate(); err != nil {
		return req, err
	}
	return req, nil
}

func formInt(r *http.Request, name string, def int) (int, error) {
	v := r.FormValue(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, v)
	}
	return n, nil
}

func formFloat(r *http.Request, name string, def float64) (float64, error) {
	v := r.FormValue(name)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, v)
	}
	return f, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("response encode failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
