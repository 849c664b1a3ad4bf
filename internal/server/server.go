package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/audiolibrelab/voicememo/internal/audio"
	"github.com/audiolibrelab/voicememo/internal/config"
	"github.com/audiolibrelab/voicememo/internal/recorder"
	"github.com/audiolibrelab/voicememo/internal/recording"
	"github.com/audiolibrelab/voicememo/internal/service"
	"github.com/audiolibrelab/voicememo/internal/waveform"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

// Server represents the web server for controlling the voice memo screen
type Server struct {
	service    service.Service
	configFile string
	port       string
	hub        *Hub
	engine     *gin.Engine
}

// GenericResponse represents a generic API response
type GenericResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// RecordingsResponse represents the JSON response for the recordings endpoint
type RecordingsResponse struct {
	Recordings []recording.Recording `json:"recordings"`
	TotalCount int                   `json:"total_count"`
}

// ProfilesResponse lists configuration profiles
type ProfilesResponse struct {
	Profiles      []string `json:"profiles"`
	ActiveProfile string   `json:"active_profile"`
}

// ProfileSelectRequest represents a request to switch profiles
type ProfileSelectRequest struct {
	Profile string `json:"profile" binding:"required"`
}

// New creates a new web server instance around svc
func New(svc service.Service, configFile, port string) *Server {
	s := &Server{
		service:    svc,
		configFile: configFile,
		port:       port,
	}

	s.hub = NewHub(func() Event {
		session := svc.Session()
		return Event{Type: "snapshot", Recordings: svc.Recordings(), Session: &session}
	})
	svc.Subscribe(s.hub.BroadcastRecording)

	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/", s.handleIndex)
	r.GET("/status", s.handleStatus)
	r.GET("/ws", s.hub.ServeWS)

	record := r.Group("/record")
	{
		record.POST("/start", s.handleStartRecording)
		record.POST("/stop", s.handleStopRecording)
		record.POST("/delete", s.handleDeleteRecording)
	}

	recordings := r.Group("/recordings")
	{
		recordings.GET("", s.handleRecordings)
		recordings.GET("/:id", s.handleRecording)
		recordings.POST("/:id/toggle", s.handleToggle)
		recordings.GET("/:id/waveform", s.handleWaveform)
		recordings.GET("/:id/waveform.svg", s.handleWaveformSVG)
		recordings.GET("/:id/audio", s.handleAudio)
	}

	cfg := r.Group("/config")
	{
		cfg.GET("/profiles", s.handleProfiles)
		cfg.POST("/select", s.handleSelectProfile)
	}

	return r
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	localIP := getLocalIP()
	slog.Info("Starting voice memo web server",
		"port", s.port,
		"local_url", fmt.Sprintf("http://%s:%s", localIP, s.port),
		"localhost_url", fmt.Sprintf("http://localhost:%s", s.port))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("web server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down web server")
		s.hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func (s *Server) handleIndex(c *gin.Context) {
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(indexHTML))
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, service.GetStatus(s.service))
}

func (s *Server) handleStartRecording(c *gin.Context) {
	if err := s.service.StartRecording(c.Request.Context()); err != nil {
		s.sendErrorResponse(c, errorStatus(err), fmt.Sprintf("Failed to start recording: %v", err), "operation", "start_recording")
		return
	}

	s.broadcastSession()
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Recording started"})
}

func (s *Server) handleStopRecording(c *gin.Context) {
	rec, err := s.service.StopRecording(c.Request.Context())
	if err != nil {
		s.sendErrorResponse(c, errorStatus(err), fmt.Sprintf("Failed to stop recording: %v", err), "operation", "stop_recording")
		return
	}

	s.broadcastSession()
	if rec == nil {
		c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Not recording"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "Recording stopped",
		"recording": rec,
	})
}

func (s *Server) handleDeleteRecording(c *gin.Context) {
	if err := s.service.DeleteRecording(c.Request.Context()); err != nil {
		s.sendErrorResponse(c, errorStatus(err), fmt.Sprintf("Failed to discard recording: %v", err), "operation", "delete_recording")
		return
	}

	s.broadcastSession()
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Recording discarded"})
}

func (s *Server) broadcastSession() {
	session := s.service.Session()
	s.hub.Broadcast(Event{Type: "session", Session: &session})
}

func (s *Server) handleRecordings(c *gin.Context) {
	recs := s.service.Recordings()
	c.JSON(http.StatusOK, RecordingsResponse{Recordings: recs, TotalCount: len(recs)})
}

// lookup writes a 404 and returns false when the id is unknown
func (s *Server) lookup(c *gin.Context) (recording.Recording, bool) {
	id := c.Param("id")
	rec, ok := s.service.Recording(id)
	if !ok {
		s.sendErrorResponse(c, http.StatusNotFound, fmt.Sprintf("Recording not found: %s", id), "id", id)
	}
	return rec, ok
}

func (s *Server) handleRecording(c *gin.Context) {
	if rec, ok := s.lookup(c); ok {
		c.JSON(http.StatusOK, rec)
	}
}

func (s *Server) handleToggle(c *gin.Context) {
	rec, ok := s.lookup(c)
	if !ok {
		return
	}

	if err := s.service.TogglePlayback(c.Request.Context(), rec.ID); err != nil {
		s.sendErrorResponse(c, errorStatus(err), fmt.Sprintf("Failed to toggle playback: %v", err), "id", rec.ID)
		return
	}

	updated, _ := s.service.Recording(rec.ID)
	c.JSON(http.StatusOK, updated)
}

func (s *Server) handleWaveform(c *gin.Context) {
	rec, ok := s.lookup(c)
	if !ok {
		return
	}
	spec, _ := s.service.Waveform(rec.ID)
	c.JSON(http.StatusOK, spec)
}

func (s *Server) handleWaveformSVG(c *gin.Context) {
	rec, ok := s.lookup(c)
	if !ok {
		return
	}
	spec, _ := s.service.Waveform(rec.ID)
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "image/svg+xml", waveform.SVG(spec))
}

func (s *Server) handleAudio(c *gin.Context) {
	rec, ok := s.lookup(c)
	if !ok {
		return
	}
	if rec.Asset == nil {
		s.sendErrorResponse(c, http.StatusNotFound, "Recording has no audio", "id", rec.ID)
		return
	}

	if contentType := mime.TypeByExtension(filepath.Ext(rec.Asset.Path)); contentType != "" {
		c.Header("Content-Type", contentType)
	}
	c.File(rec.Asset.Path)
}

func (s *Server) handleProfiles(c *gin.Context) {
	names, err := config.ProfileNames(s.configFile)
	if err != nil {
		s.sendErrorResponse(c, http.StatusInternalServerError, fmt.Sprintf("Failed to read profiles: %v", err), "config_file", s.configFile)
		return
	}
	c.JSON(http.StatusOK, ProfilesResponse{Profiles: names, ActiveProfile: s.service.Config().Profile})
}

func (s *Server) handleSelectProfile(c *gin.Context) {
	var req ProfileSelectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.sendErrorResponse(c, http.StatusBadRequest, "Profile name is required", "operation", "select_profile")
		return
	}

	if err := s.service.LoadProfile(c.Request.Context(), req.Profile); err != nil {
		s.sendErrorResponse(c, errorStatus(err), err.Error(), "profile", req.Profile)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: fmt.Sprintf("Profile %s loaded", req.Profile)})
}

// errorStatus maps service errors onto HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, audio.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, recorder.ErrNotIdle), errors.Is(err, service.ErrBusy):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// sendErrorResponse logs the error and sends a JSON error response to the client
func (s *Server) sendErrorResponse(c *gin.Context, statusCode int, errorMsg string, logContext ...interface{}) {
	logFields := []interface{}{"error_message", errorMsg, "status_code", statusCode}
	if len(logContext) > 0 {
		logFields = append(logFields, logContext...)
	}
	slog.Error("Sending error response to client", logFields...)

	c.AbortWithStatusJSON(statusCode, GenericResponse{Success: false, Error: errorMsg})
}

func getLocalIP() string {
	// Dialing UDP sends nothing; it only selects the outbound interface
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
