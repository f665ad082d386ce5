package server

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/stickynotes/internal/backup"
	"github.com/MarcoPoloResearchLab/stickynotes/internal/notes"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	requestIDHeader     = "X-Request-ID"
	requestIDContextKey = "stickynotes_request_id"
	importFormField     = "file"
	maxImportBytes      = 16 << 20
	jsonContentType     = "application/json"

	reasonCreate  = "create"
	reasonUpdate  = "update"
	reasonDelete  = "delete"
	reasonRestore = "restore"
	reasonImport  = "import"
)

var (
	errMissingNotesStore     = errors.New("notes store dependency required")
	errMissingBackupPipeline = errors.New("backup pipeline dependency required")
)

// DefaultAllowedOrigins lists the browser origins served when none are configured.
var DefaultAllowedOrigins = []string{"http://localhost:8080", "http://127.0.0.1:8080"}

// Dependencies wires the HTTP surface to the persistence layer.
type Dependencies struct {
	NotesStore     *notes.Store
	BackupPipeline *backup.Pipeline
	Realtime       *RealtimeDispatcher
	Logger         *zap.Logger
	// AllowedOrigins are the only browser origins allowed to call the API.
	AllowedOrigins []string
}

// NewHTTPHandler builds the gin engine serving notes, backup and event routes.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.NotesStore == nil {
		return nil, errMissingNotesStore
	}
	if deps.BackupPipeline == nil {
		return nil, errMissingBackupPipeline
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}
	allowedOrigins := normalizeOrigins(deps.AllowedOrigins)
	if len(allowedOrigins) == 0 {
		allowedOrigins = DefaultAllowedOrigins
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(corsMiddleware(allowedOrigins))

	handler := &httpHandler{
		notesStore:        deps.NotesStore,
		backupPipeline:    deps.BackupPipeline,
		realtime:          realtime,
		logger:            logger,
		heartbeatInterval: realtimeHeartbeatInterval,
	}

	// Writes are refused for unlisted origins even when the browser skips preflight.
	requireOrigin := originGuard(allowedOrigins)

	router.GET("/notes", handler.handleListNotes)
	router.POST("/notes", requireOrigin, handler.handleCreateNote)
	router.GET("/notes/:id", handler.handleGetNote)
	router.PATCH("/notes/:id", requireOrigin, handler.handleUpdateNote)
	router.DELETE("/notes/:id", requireOrigin, handler.handleDeleteNote)

	router.POST("/backup", requireOrigin, handler.handleBackup)
	router.GET("/backup", handler.handleBackupStatus)
	router.POST("/backup/restore", requireOrigin, handler.handleRestore)
	router.GET("/export", handler.handleExport)
	router.POST("/import", requireOrigin, handler.handleImport)

	router.GET("/events", handler.handleEventStream)

	return router, nil
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:  allowedOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Content-Type", requestIDHeader},
		ExposeHeaders: []string{"Content-Disposition", requestIDHeader},
		MaxAge:        12 * time.Hour,
	})
}

// originGuard rejects browser requests whose Origin is not listed.
// Requests without an Origin header come from non-browser clients and pass.
func originGuard(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := strings.TrimSpace(c.GetHeader("Origin"))
		if origin == "" || slices.Contains(allowedOrigins, strings.TrimRight(origin, "/")) {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "origin_not_allowed"})
	}
}

func normalizeOrigins(origins []string) []string {
	normalized := make([]string, 0, len(origins))
	for _, origin := range origins {
		trimmed := strings.TrimRight(strings.TrimSpace(origin), "/")
		if trimmed == "" || slices.Contains(normalized, trimmed) {
			continue
		}
		normalized = append(normalized, trimmed)
	}
	return normalized
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			if generated, err := uuid.NewV7(); err == nil {
				requestID = generated.String()
			}
		}
		c.Set(requestIDContextKey, requestID)
		c.Header(requestIDHeader, requestID)

		started := time.Now()
		c.Next()

		logger.Info("http request",
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(started)))
	}
}

type httpHandler struct {
	notesStore        *notes.Store
	backupPipeline    *backup.Pipeline
	realtime          *RealtimeDispatcher
	logger            *zap.Logger
	heartbeatInterval time.Duration
}

type notePayload struct {
	Content  *string `json:"content"`
	Color    *string `json:"color" binding:"omitempty,max=64"`
	FontSize *int    `json:"fontSize" binding:"omitempty,min=1,max=512"`
	Theme    *string `json:"theme" binding:"omitempty,max=64"`
}

func (p notePayload) fields() notes.NoteFields {
	return notes.NoteFields{
		Content:  p.Content,
		Color:    p.Color,
		FontSize: p.FontSize,
		Theme:    p.Theme,
	}
}

type snapshotResponsePayload struct {
	Version   string `json:"version"`
	Timestamp int64  `json:"timestamp"`
	NoteCount int    `json:"noteCount"`
}

type backupStatusPayload struct {
	Exists    bool   `json:"exists"`
	Version   string `json:"version,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
	NoteCount int    `json:"noteCount"`
}

func (h *httpHandler) handleListNotes(c *gin.Context) {
	listed, err := h.notesStore.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listed)
}

func (h *httpHandler) handleCreateNote(c *gin.Context) {
	var payload notePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	note, err := h.notesStore.Create(c.Request.Context(), payload.fields())
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publishChange(reasonCreate, []int64{note.ID})
	c.JSON(http.StatusCreated, note)
}

func (h *httpHandler) handleGetNote(c *gin.Context) {
	noteID, ok := parseNoteIDParam(c)
	if !ok {
		return
	}

	note, err := h.notesStore.Get(c.Request.Context(), noteID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, note)
}

func (h *httpHandler) handleUpdateNote(c *gin.Context) {
	noteID, ok := parseNoteIDParam(c)
	if !ok {
		return
	}

	var payload notePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	fields := payload.fields()
	if fields.IsEmpty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty_update"})
		return
	}

	note, err := h.notesStore.Update(c.Request.Context(), noteID, fields)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publishChange(reasonUpdate, []int64{note.ID})
	c.JSON(http.StatusOK, note)
}

func (h *httpHandler) handleDeleteNote(c *gin.Context) {
	noteID, ok := parseNoteIDParam(c)
	if !ok {
		return
	}

	deleted, err := h.notesStore.Delete(c.Request.Context(), noteID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publishChange(reasonDelete, []int64{noteID})
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (h *httpHandler) handleBackup(c *gin.Context) {
	snapshot, err := h.backupPipeline.Backup(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshotResponsePayload{
		Version:   snapshot.Version,
		Timestamp: snapshot.Timestamp,
		NoteCount: len(snapshot.Notes),
	})
}

func (h *httpHandler) handleBackupStatus(c *gin.Context) {
	exists, err := h.backupPipeline.HasBackup(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !exists {
		c.JSON(http.StatusOK, backupStatusPayload{Exists: false})
		return
	}

	info, err := h.backupPipeline.Info(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, backupStatusPayload{
		Exists:    true,
		Version:   info.Version,
		Timestamp: info.Timestamp,
		NoteCount: info.NoteCount,
	})
}

func (h *httpHandler) handleRestore(c *gin.Context) {
	restored, err := h.backupPipeline.Restore(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publishChange(reasonRestore, nil)
	c.JSON(http.StatusOK, gin.H{"restored": restored})
}

func (h *httpHandler) handleExport(c *gin.Context) {
	artifact, err := h.backupPipeline.Export(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.Filename))
	c.Data(http.StatusOK, artifact.ContentType, artifact.Data)
}

func (h *httpHandler) handleImport(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImportBytes)

	var (
		imported int
		err      error
	)
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		fileHeader, formErr := c.FormFile(importFormField)
		if formErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing_file"})
			return
		}
		file, openErr := fileHeader.Open()
		if openErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable_file"})
			return
		}
		defer file.Close()
		imported, err = h.backupPipeline.ImportFrom(c.Request.Context(), file)
	} else {
		if c.ContentType() != jsonContentType {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported_media_type"})
			return
		}
		imported, err = h.backupPipeline.ImportFrom(c.Request.Context(), c.Request.Body)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publishChange(reasonImport, nil)
	c.JSON(http.StatusOK, gin.H{"imported": imported})
}

func (h *httpHandler) publishChange(reason string, noteIDs []int64) {
	h.realtime.Publish(RealtimeMessage{
		EventType: RealtimeEventNotesChanged,
		Reason:    reason,
		NoteIDs:   noteIDs,
		Timestamp: time.Now().UTC(),
	})
}

func (h *httpHandler) respondError(c *gin.Context, err error) {
	status, reason := classifyError(err)
	body := gin.H{"error": reason}

	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		body["code"] = coded.Code()
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("request_id", c.GetString(requestIDContextKey)),
			zap.String("reason", reason),
			zap.Error(err))
	}
	c.JSON(status, body)
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, notes.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, backup.ErrNoBackupFound):
		return http.StatusNotFound, "no_backup_found"
	case errors.Is(err, backup.ErrInvalidFormat):
		return http.StatusBadRequest, "invalid_format"
	case errors.Is(err, backup.ErrCorruptBackup):
		return http.StatusUnprocessableEntity, "corrupt_backup"
	case errors.Is(err, notes.ErrStoreUnavailable):
		return http.StatusInternalServerError, "store_unavailable"
	case errors.Is(err, notes.ErrWriteFailed):
		return http.StatusInternalServerError, "write_failed"
	case errors.Is(err, backup.ErrSerializationFailed):
		return http.StatusInternalServerError, "serialization_failed"
	case errors.Is(err, backup.ErrStorageFailed):
		return http.StatusInternalServerError, "storage_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func parseNoteIDParam(c *gin.Context) (int64, bool) {
	noteID, err := notes.ParseNoteID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_note_id"})
		return 0, false
	}
	return noteID, true
}
