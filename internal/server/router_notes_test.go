package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/MarcoPoloResearchLab/stickynotes/internal/backup"
	"github.com/MarcoPoloResearchLab/stickynotes/internal/database"
	"github.com/MarcoPoloResearchLab/stickynotes/internal/notes"
	"github.com/MarcoPoloResearchLab/stickynotes/internal/storage"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type testServer struct {
	handler  http.Handler
	store    *notes.Store
	pipeline *backup.Pipeline
	keyValue *storage.SQLiteStore
	realtime *RealtimeDispatcher
}

func newTestServer(testContext *testing.T) testServer {
	testContext.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(filepath.Join(testContext.TempDir(), "notes.db"), zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}
	testContext.Cleanup(func() {
		_ = database.Close(db)
	})

	store, err := notes.NewStore(notes.StoreConfig{Database: db})
	if err != nil {
		testContext.Fatalf("failed to construct store: %v", err)
	}
	keyValueStore, err := storage.NewSQLiteStore(db, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to construct key-value store: %v", err)
	}
	pipeline, err := backup.NewPipeline(backup.PipelineConfig{Notes: store, Storage: keyValueStore})
	if err != nil {
		testContext.Fatalf("failed to construct pipeline: %v", err)
	}

	dispatcher := NewRealtimeDispatcher()
	handler, err := NewHTTPHandler(Dependencies{
		NotesStore:     store,
		BackupPipeline: pipeline,
		Realtime:       dispatcher,
		Logger:         zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to construct http handler: %v", err)
	}
	return testServer{handler: handler, store: store, pipeline: pipeline, keyValue: keyValueStore, realtime: dispatcher}
}

func (s testServer) do(testContext *testing.T, method, path, body string) *httptest.ResponseRecorder {
	testContext.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	request := httptest.NewRequest(method, path, reader)
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeJSON[T any](testContext *testing.T, recorder *httptest.ResponseRecorder) T {
	testContext.Helper()
	var payload T
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		testContext.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return payload
}

func TestNewHTTPHandlerRequiresDependencies(testContext *testing.T) {
	if _, err := NewHTTPHandler(Dependencies{}); err == nil {
		testContext.Fatalf("expected error for missing notes store")
	}
	if _, err := NewHTTPHandler(Dependencies{NotesStore: &notes.Store{}}); err == nil {
		testContext.Fatalf("expected error for missing backup pipeline")
	}
}

func TestHandleListNotesIncludesServiceErrorCode(testContext *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ginContext, _ := gin.CreateTestContext(recorder)
	ginContext.Request = httptest.NewRequest(http.MethodGet, "/notes", http.NoBody)

	handler := &httpHandler{
		notesStore: &notes.Store{},
		realtime:   NewRealtimeDispatcher(),
		logger:     zap.NewNop(),
	}

	handler.handleListNotes(ginContext)

	if recorder.Code != http.StatusInternalServerError {
		testContext.Fatalf("expected internal server error status, got %d", recorder.Code)
	}
	payload := decodeJSON[map[string]any](testContext, recorder)
	if payload["code"] != "notes.list.missing_database" {
		testContext.Fatalf("expected list notes error code, got %v", payload["code"])
	}
	if payload["error"] != "store_unavailable" {
		testContext.Fatalf("expected store_unavailable reason, got %v", payload["error"])
	}
}

func TestHandleNoteValidationFailures(testContext *testing.T) {
	server := newTestServer(testContext)
	testCases := []struct {
		name       string
		method     string
		path       string
		body       string
		wantError  string
		wantStatus int
	}{
		{
			name:       "malformed-json",
			method:     http.MethodPost,
			path:       "/notes",
			body:       `{"content":`,
			wantError:  "invalid_request",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "non-positive-font-size",
			method:     http.MethodPost,
			path:       "/notes",
			body:       `{"content":"x","fontSize":0}`,
			wantError:  "invalid_request",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "empty-update",
			method:     http.MethodPatch,
			path:       "/notes/1",
			body:       `{}`,
			wantError:  "empty_update",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "non-numeric-id",
			method:     http.MethodGet,
			path:       "/notes/abc",
			wantError:  "invalid_note_id",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "negative-id",
			method:     http.MethodDelete,
			path:       "/notes/-4",
			wantError:  "invalid_note_id",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing-note",
			method:     http.MethodGet,
			path:       "/notes/404",
			wantError:  "not_found",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "update-missing-note",
			method:     http.MethodPatch,
			path:       "/notes/404",
			body:       `{"content":"ghost"}`,
			wantError:  "not_found",
			wantStatus: http.StatusNotFound,
		},
	}

	for _, testCase := range testCases {
		testContext.Run(testCase.name, func(testContext *testing.T) {
			recorder := server.do(testContext, testCase.method, testCase.path, testCase.body)
			if recorder.Code != testCase.wantStatus {
				testContext.Fatalf("unexpected status: got %d want %d", recorder.Code, testCase.wantStatus)
			}
			payload := decodeJSON[map[string]any](testContext, recorder)
			if payload["error"] != testCase.wantError {
				testContext.Fatalf("expected error %s, got %v", testCase.wantError, payload["error"])
			}
		})
	}
}

func TestNotesLifecycleOverHTTP(testContext *testing.T) {
	server := newTestServer(testContext)

	created := server.do(testContext, http.MethodPost, "/notes", `{"content":"hi"}`)
	if created.Code != http.StatusCreated {
		testContext.Fatalf("expected created status, got %d: %s", created.Code, created.Body.String())
	}
	if created.Header().Get(requestIDHeader) == "" {
		testContext.Fatalf("expected a generated request id header")
	}
	note := decodeJSON[notes.Note](testContext, created)
	if note.Color != notes.DefaultColor || note.FontSize != notes.DefaultFontSize || note.Theme != notes.DefaultTheme {
		testContext.Fatalf("expected style defaults, got %+v", note)
	}
	if note.CreatedAtMillis != note.UpdatedAtMillis {
		testContext.Fatalf("expected equal timestamps on creation, got %+v", note)
	}

	second := decodeJSON[notes.Note](testContext, server.do(testContext, http.MethodPost, "/notes", `{"content":"second","theme":"dark"}`))

	patched := server.do(testContext, http.MethodPatch, "/notes/"+itoa(note.ID), `{"color":"#c8e6c9"}`)
	if patched.Code != http.StatusOK {
		testContext.Fatalf("expected ok status, got %d", patched.Code)
	}
	updated := decodeJSON[notes.Note](testContext, patched)
	if updated.Content != "hi" || updated.Color != "#c8e6c9" || updated.CreatedAtMillis != note.CreatedAtMillis {
		testContext.Fatalf("unexpected merge result %+v", updated)
	}

	fetched := decodeJSON[notes.Note](testContext, server.do(testContext, http.MethodGet, "/notes/"+itoa(note.ID), ""))
	if fetched != updated {
		testContext.Fatalf("expected fetched note %+v to equal updated %+v", fetched, updated)
	}

	listed := decodeJSON[[]notes.Note](testContext, server.do(testContext, http.MethodGet, "/notes", ""))
	if len(listed) != 2 || listed[0].ID != note.ID || listed[1].ID != second.ID {
		testContext.Fatalf("unexpected listing %+v", listed)
	}

	for attempt := 0; attempt < 2; attempt++ {
		deleted := server.do(testContext, http.MethodDelete, "/notes/"+itoa(second.ID), "")
		if deleted.Code != http.StatusOK {
			testContext.Fatalf("delete attempt %d: expected ok, got %d", attempt, deleted.Code)
		}
		if !decodeJSON[map[string]bool](testContext, deleted)["deleted"] {
			testContext.Fatalf("delete attempt %d: expected deleted=true", attempt)
		}
	}

	listed = decodeJSON[[]notes.Note](testContext, server.do(testContext, http.MethodGet, "/notes", ""))
	if len(listed) != 1 || listed[0].ID != note.ID {
		testContext.Fatalf("expected only the first note to remain, got %+v", listed)
	}
}

func TestRequestIDIsEchoed(testContext *testing.T) {
	server := newTestServer(testContext)

	request := httptest.NewRequest(http.MethodGet, "/notes", http.NoBody)
	request.Header.Set(requestIDHeader, "req-123")
	recorder := httptest.NewRecorder()
	server.handler.ServeHTTP(recorder, request)

	if recorder.Header().Get(requestIDHeader) != "req-123" {
		testContext.Fatalf("expected request id to be echoed, got %q", recorder.Header().Get(requestIDHeader))
	}
}

func TestMutationsPublishChangeEvents(testContext *testing.T) {
	server := newTestServer(testContext)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := server.realtime.Subscribe(ctx)
	defer cleanup()

	created := decodeJSON[notes.Note](testContext, server.do(testContext, http.MethodPost, "/notes", `{"content":"watched"}`))

	select {
	case message := <-stream:
		if message.Reason != reasonCreate || len(message.NoteIDs) != 1 || message.NoteIDs[0] != created.ID {
			testContext.Fatalf("unexpected change message %+v", message)
		}
	default:
		testContext.Fatalf("expected a change message after create")
	}

	server.do(testContext, http.MethodGet, "/notes", "")
	select {
	case message := <-stream:
		testContext.Fatalf("did not expect a change message after a read, got %+v", message)
	default:
	}
}

func itoa(value int64) string {
	return strconv.FormatInt(value, 10)
}
