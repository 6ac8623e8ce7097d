package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	apperrors "whatsbot/internal/errors"
	"whatsbot/internal/models"
	"whatsbot/internal/privacy"
	"whatsbot/internal/tracing"
	"whatsbot/pkg/adapter"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// sessionStatus is the part of the adapter the status server reads.
type sessionStatus interface {
	State() adapter.ConnState
	GetLoginCode() (string, error)
}

type Server struct {
	router      *mux.Router
	logger      *logrus.Logger
	status      sessionStatus
	sessionName string
	cfg         models.ServerConfig
	server      *http.Server
}

type healthResponse struct {
	Status     string `json:"status"`
	Connection string `json:"connection"`
	Session    string `json:"session"`
}

func NewServer(cfg models.ServerConfig, sessionName string, status sessionStatus, logger *logrus.Logger) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		logger:      logger,
		status:      status,
		sessionName: sessionName,
		cfg:         cfg,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/login-code", s.handleLoginCode()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = tracing.GenerateRequestID()
		}
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(tracing.WithRequestID(r.Context(), requestID)))
	})
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.IdleTimeoutSec) * time.Second,
	}

	s.logger.Infof("Starting status server on port %d", s.cfg.Port)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// handleHealth reports the connection state. A session that will not
// reconnect is unhealthy.
func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := s.status.State()
		response := healthResponse{
			Status:     "ok",
			Connection: state.String(),
			Session:    privacy.MaskSessionName(s.sessionName),
		}
		code := http.StatusOK
		if state == adapter.StateTerminated {
			response.Status = "unavailable"
			code = http.StatusServiceUnavailable
		}
		s.writeJSON(w, r, code, response)
	}
}

func (s *Server) handleLoginCode() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code, err := s.status.GetLoginCode()
		if err != nil {
			if errors.Is(err, adapter.ErrNoLoginCode) {
				err = apperrors.NewNotFoundError("Login code", privacy.MaskSessionName(s.sessionName))
			}
			s.writeError(w, r, err)
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(code))
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		s.logger.WithField("request_id", tracing.GetRequestID(r.Context())).WithError(err).Error("Request failed")
	}
	s.writeJSON(w, r, status, apperrors.ToHTTPResponse(err))
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithField("request_id", tracing.GetRequestID(r.Context())).WithError(err).Error("Failed to encode response")
	}
}
