package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"proctorhub/internal/query"
	"proctorhub/internal/violation"
	"proctorhub/pkg/types"
)

// Narrow local interfaces keep the API layer decoupled from the concrete
// relay and archive implementations.
type ViolationRelay interface {
	BroadcastViolation(record types.ViolationRecord) int
}

type Archive interface {
	SaveScreenshot(ctx context.Context, studentID string, data []byte) (types.Screenshot, error)
	ListScreenshots(ctx context.Context) (map[string][]string, error)
	HealthCheck(ctx context.Context) error
}

type Registry interface {
	Stats() map[string]int
}

// Server is the HTTP boundary: violation intake from detectors, raw log
// views, the monitoring queries, and the screenshot archive. It holds no
// business logic; parameters are validated here so out-of-range values never
// reach the core.
type Server struct {
	log      *violation.Log
	relay    ViolationRelay
	queries  *query.Service
	archive  Archive
	registry Registry
	router   *http.ServeMux
	logger   *zap.Logger
}

func NewServer(log *violation.Log, relay ViolationRelay, queries *query.Service, archive Archive, registry Registry, logger *zap.Logger) *Server {
	s := &Server{
		log:      log,
		relay:    relay,
		queries:  queries,
		archive:  archive,
		registry: registry,
		router:   http.NewServeMux(),
		logger:   logger,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/notify", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleNotify))))
	s.router.Handle("/violations", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleViolations))))
	s.router.Handle("/violations/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleStudentViolations))))
	s.router.Handle("/api/monitor/overview", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleOverview))))
	s.router.Handle("/api/monitor/leaderboard", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleLeaderboard))))
	s.router.Handle("/api/monitor/timeline", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleTimeline))))
	s.router.Handle("/api/monitor/student/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleStudentInsight))))
	s.router.Handle("/upload", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleUpload))))
	s.router.Handle("/api/screenshots/list", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleScreenshotList))))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
}

// ServeHTTP implements http.Handler for integration with the standard server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type NotifyResponse struct {
	Status            string `json:"status"`
	ObserversNotified int    `json:"observers_notified"`
}

type ViolationsResponse struct {
	Violations []types.ViolationRecord `json:"violations"`
}

type LeaderboardResponse struct {
	Leaderboard []types.StudentRiskSummary `json:"leaderboard"`
}

type UploadResponse struct {
	Status     string           `json:"status"`
	Screenshot types.Screenshot `json:"screenshot"`
}

type ScreenshotListResponse struct {
	Students map[string][]string `json:"students"`
}

type HealthResponse struct {
	Status           string         `json:"status"`
	Timestamp        time.Time      `json:"timestamp"`
	Archive          string         `json:"archive"`
	Connections      map[string]int `json:"connections"`
	ViolationsLogged int            `json:"violations_logged"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// handleNotify is the detector intake. The timestamp field may be absent or
// malformed; it degrades to "now" instead of rejecting the event. But a
// violation without a student or a type is unusable and gets a 400.
func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	studentID := r.FormValue("student_id")
	violationType := r.FormValue("violation_type")
	detail := r.FormValue("detail")
	timestamp := r.FormValue("timestamp")

	probe := types.ViolationRecord{StudentID: studentID, ViolationType: violationType}
	if err := probe.Validate(); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	record := s.log.Ingest(studentID, violationType, detail, timestamp)
	notified := s.relay.BroadcastViolation(record)

	json.NewEncoder(w).Encode(NotifyResponse{
		Status:            "ok",
		ObserversNotified: notified,
	})
}

// handleViolations returns the whole log in arrival order.
func (s *Server) handleViolations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	records := s.log.Snapshot()
	if records == nil {
		records = []types.ViolationRecord{}
	}
	json.NewEncoder(w).Encode(ViolationsResponse{Violations: records})
}

// handleStudentViolations returns one student's records in arrival order.
func (s *Server) handleStudentViolations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	studentID := strings.TrimPrefix(r.URL.Path, "/violations/")
	if studentID == "" || strings.Contains(studentID, "/") {
		s.sendError(w, "Student ID required", http.StatusBadRequest)
		return
	}

	records := s.log.ByStudent(studentID)
	if records == nil {
		records = []types.ViolationRecord{}
	}
	json.NewEncoder(w).Encode(ViolationsResponse{Violations: records})
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	json.NewEncoder(w).Encode(s.queries.Overview())
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit, err := intParam(r, "limit", query.LeaderboardDefault, query.LeaderboardLimitMin, query.LeaderboardLimitMax)
	if err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	board := s.queries.Leaderboard(limit)
	if board == nil {
		board = []types.StudentRiskSummary{}
	}
	json.NewEncoder(w).Encode(LeaderboardResponse{Leaderboard: board})
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	minutes, err := intParam(r, "minutes", query.TimelineWindowDefault, query.TimelineWindowMin, query.TimelineWindowMax)
	if err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	json.NewEncoder(w).Encode(s.queries.Timeline(minutes))
}

// handleStudentInsight serves /api/monitor/student/{id}/insights.
func (s *Server) handleStudentInsight(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/monitor/student/")
	studentID := strings.TrimSuffix(path, "/insights")
	if studentID == "" || studentID == path || strings.Contains(studentID, "/") {
		s.sendError(w, "Expected /api/monitor/student/{id}/insights", http.StatusBadRequest)
		return
	}

	json.NewEncoder(w).Encode(s.queries.StudentInsight(studentID))
}

// handleUpload archives a multipart screenshot upload from a student agent.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		s.sendError(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}

	studentID := r.FormValue("student_id")
	if !types.IsValidStudentID(studentID) {
		s.sendError(w, types.ErrInvalidStudentID.Error(), http.StatusBadRequest)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		s.sendError(w, "Screenshot file is required", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		s.sendError(w, "Failed to read upload", http.StatusBadRequest)
		return
	}

	shot, err := s.archive.SaveScreenshot(r.Context(), studentID, data)
	if err != nil {
		s.logger.Error("screenshot archive failed",
			zap.String("student_id", studentID), zap.Error(err))
		s.sendError(w, "Failed to archive screenshot", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(UploadResponse{Status: "ok", Screenshot: shot})
}

func (s *Server) handleScreenshotList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	listing, err := s.archive.ListScreenshots(r.Context())
	if err != nil {
		s.logger.Error("screenshot listing failed", zap.Error(err))
		s.sendError(w, "Failed to list screenshots", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(ScreenshotListResponse{Students: listing})
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	archiveStatus := "healthy"
	if err := s.archive.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		archiveStatus = fmt.Sprintf("error: %v", err)
	}

	response := HealthResponse{
		Status:           status,
		Timestamp:        time.Now(),
		Archive:          archiveStatus,
		Connections:      s.registry.Stats(),
		ViolationsLogged: s.log.Len(),
	}

	if status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(response)
}

// intParam parses an integer query parameter with a default, rejecting
// values outside [min, max] so they never reach the query core.
func intParam(r *http.Request, name string, def, min, max int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	if value < min || value > max {
		return 0, fmt.Errorf("%s must be between %d and %d", name, min, max)
	}
	return value, nil
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		next.ServeHTTP(w, r)
	})
}
