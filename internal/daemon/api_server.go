package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"slidewright/internal/api"
	"slidewright/internal/config"
	"slidewright/internal/ledger"
	"slidewright/internal/logging"
	"slidewright/internal/services"
	"slidewright/internal/store"
	"slidewright/internal/textutil"
)

const (
	maxUploadBytes    = 64 << 20
	maxConfigBytes    = 1 << 20
	retryAfterSeconds = 5
)

var deckContentTypes = map[string]string{
	"pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"pdf":  "application/pdf",
}

type apiServer struct {
	bind   string
	token  string
	logger *slog.Logger
	daemon *Daemon
	router chi.Router

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   cfg.Paths.APIBind,
		token:  cfg.Paths.APIToken,
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}
	srv.router = srv.routes()
	srv.server = &http.Server{
		Handler:           srv.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestContext)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware(s.token))

		r.Get("/status", s.handleStatus)
		r.Get("/templates", s.handleTemplates)
		r.Get("/tasks/{taskID}", s.handleTask)

		r.Route("/documents", func(r chi.Router) {
			r.Post("/", s.handleUpload)
			r.Get("/", s.handleListDocuments)
			r.Route("/{documentID}", func(r chi.Router) {
				r.Get("/", s.handleDocument)
				r.Delete("/", s.handleDeleteDocument)
				r.Get("/tasks", s.handleDocumentTasks)
				r.Post("/stages/{stage}", s.handleRequestStage)
				r.Get("/results/slides/file", s.handleSlidesFile)
				r.Get("/results/{kind}", s.handleResult)
			})
		})
	})
	return r
}

// requestContext copies the chi request id onto the context under the key
// the logging helpers read, and logs each request at debug level.
func (s *apiServer) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := middleware.GetReqID(ctx); id != "" {
			ctx = services.WithRequestID(ctx, id)
		}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))
		logging.WithContext(ctx, s.logger).Debug("http request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", ww.Status()),
			logging.Duration("elapsed", time.Since(start)),
		)
	})
}

func (s *apiServer) handler() http.Handler {
	return s.router
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.stop()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

func (s *apiServer) address() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		DatabasePath: status.DatabasePath,
		LockFilePath: status.LockFilePath,
		OutputDir:    status.OutputDir,
		Workflow:     api.FromStatusSummary(status.Workflow),
	})
}

func (s *apiServer) handleTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.daemon.Templates()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.TemplateListResponse{Templates: api.FromTemplates(templates)})
}

func (s *apiServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		s.writeBadRequest(w, fmt.Sprintf("invalid upload: %v", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeBadRequest(w, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	doc, err := s.daemon.store.CreateDocument(r.Context(), header.Filename, r.FormValue("title"), file)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	logging.WithContext(services.WithDocumentID(r.Context(), doc.ID), s.logger).Info("document uploaded",
		logging.String(logging.FieldEventType, "document_uploaded"),
		logging.String("filename", doc.Filename),
	)
	s.writeJSON(w, http.StatusCreated, api.FromDocument(doc))
}

func (s *apiServer) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	var statuses []store.DocumentStatus
	for _, value := range r.URL.Query()["status"] {
		status := store.DocumentStatus(strings.TrimSpace(value))
		if status == "" {
			continue
		}
		if !status.Valid() {
			s.writeBadRequest(w, fmt.Sprintf("unknown status %q", value))
			return
		}
		statuses = append(statuses, status)
	}
	docs, err := s.daemon.query.ListDocuments(r.Context(), statuses...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.DocumentListResponse{Documents: docs})
}

func (s *apiServer) handleDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.daemon.query.GetDocumentStatus(r.Context(), chi.URLParam(r, "documentID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

func (s *apiServer) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.scheduler.DeleteDocument(r.Context(), chi.URLParam(r, "documentID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleDocumentTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.daemon.query.ListTasks(r.Context(), chi.URLParam(r, "documentID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.TaskListResponse{Tasks: tasks})
}

func (s *apiServer) handleRequestStage(w http.ResponseWriter, r *http.Request) {
	taskType, err := ledger.ParseType(chi.URLParam(r, "stage"))
	if err != nil {
		s.writeBadRequest(w, err.Error())
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxConfigBytes+1))
	if err != nil {
		s.writeBadRequest(w, fmt.Sprintf("read body: %v", err))
		return
	}
	if len(body) > maxConfigBytes {
		s.writeBadRequest(w, "stage config too large")
		return
	}
	var config json.RawMessage
	if trimmed := strings.TrimSpace(string(body)); trimmed != "" {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &fields); err != nil {
			s.writeBadRequest(w, "stage config must be a JSON object")
			return
		}
		config = json.RawMessage(trimmed)
	}

	task, err := s.daemon.scheduler.RequestStage(r.Context(), chi.URLParam(r, "documentID"), taskType, config)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.FromTask(task))
}

func (s *apiServer) handleTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.daemon.query.GetTaskStatus(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, task)
}

func (s *apiServer) handleResult(w http.ResponseWriter, r *http.Request) {
	kind, err := store.ParseArtifactKind(chi.URLParam(r, "kind"))
	if err != nil {
		s.writeBadRequest(w, err.Error())
		return
	}
	artifact, err := s.daemon.query.GetResult(r.Context(), chi.URLParam(r, "documentID"), kind)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, artifact)
}

func (s *apiServer) handleSlidesFile(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")
	doc, err := s.daemon.query.GetDocumentStatus(r.Context(), documentID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	artifact, err := s.daemon.query.GetResult(r.Context(), documentID, store.ArtifactSlides)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	slides := artifact.Slides
	file, err := os.Open(slides.Path)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: deck file for document %s: %v", api.ErrNotFound, documentID, err))
		return
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	name := textutil.Slug(doc.Title) + "." + slides.Format
	if contentType, ok := deckContentTypes[slides.Format]; ok {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(w, r, name, info.ModTime(), file)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeBadRequest(w http.ResponseWriter, message string) {
	s.writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: api.ErrorBody{
		Code:    api.CodeInvalidRequest,
		Message: message,
	}})
}

func (s *apiServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := api.Classify(err)
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	if status >= http.StatusInternalServerError {
		logging.WithContext(r.Context(), s.logger).Error("api request failed",
			logging.String("path", r.URL.Path),
			logging.Error(err),
		)
	}
	s.writeJSON(w, status, api.ErrorResponse{Error: api.ErrorBody{Code: code, Message: err.Error()}})
}
