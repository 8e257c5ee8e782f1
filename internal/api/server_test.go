package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zulandar/lifeline/internal/channel"
	"github.com/zulandar/lifeline/internal/db"
	"github.com/zulandar/lifeline/internal/dispatch"
	"github.com/zulandar/lifeline/internal/models"
	"github.com/zulandar/lifeline/internal/sos"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(gdb))
	return gdb
}

// stubService returns canned results and records the last request.
type stubService struct {
	triggerRes *sos.TriggerResult
	err        error
	events     []models.SOSEvent
	resolved   *models.SOSEvent

	lastTrigger sos.TriggerRequest
	lastUser    string
	lastEvent   string
}

func (s *stubService) Trigger(_ context.Context, req sos.TriggerRequest) (*sos.TriggerResult, error) {
	s.lastTrigger = req
	return s.triggerRes, s.err
}

func (s *stubService) Resolve(_ context.Context, eventID, userID string) (*models.SOSEvent, error) {
	s.lastEvent, s.lastUser = eventID, userID
	return s.resolved, s.err
}

func (s *stubService) History(_ context.Context, userID string) ([]models.SOSEvent, error) {
	s.lastUser = userID
	return s.events, s.err
}

type stubClient struct {
	name   string
	usable bool
}

func (c stubClient) Name() string { return c.name }
func (c stubClient) Usable() bool { return c.usable }
func (c stubClient) Send(context.Context, channel.Recipient, channel.Message) (string, error) {
	return "", nil
}

func newTestRouter(t *testing.T, svc Service, feed *sos.Feed) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gdb := openTestDB(t)
	router, err := NewRouter(StartOpts{
		Service:  svc,
		DB:       gdb,
		Feed:     feed,
		Channels: []channel.Client{stubClient{"sms", true}, stubClient{"push", false}},
	})
	require.NoError(t, err)
	return router, gdb
}

func do(router http.Handler, method, path, user, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// --- NewRouter ---

func TestNewRouter_RequiresService(t *testing.T) {
	_, err := NewRouter(StartOpts{})
	assert.ErrorContains(t, err, "service is required")
}

func TestNewRouter_RequiresDB(t *testing.T) {
	_, err := NewRouter(StartOpts{Service: &stubService{}})
	assert.ErrorContains(t, err, "db is required")
}

// --- identity ---

func TestAPI_MissingIdentityIs401(t *testing.T) {
	router, _ := newTestRouter(t, &stubService{}, nil)
	w := do(router, http.MethodGet, "/api/sos", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, false, decode(t, w)["success"])
}

// --- POST /api/sos ---

func TestTrigger_Success(t *testing.T) {
	svc := &stubService{triggerRes: &sos.TriggerResult{
		Event: &models.SOSEvent{
			ID: "evt-1", UserID: "u1", Latitude: 37.7749, Longitude: -122.4194,
			Status: models.StatusPartiallySent, TotalContacts: 4, Successful: 2, Failed: 1, Skipped: 1,
		},
		Batch:    &dispatch.BatchResult{},
		MapsLink: "https://www.google.com/maps?q=37.774900,-122.419400",
	}}
	router, _ := newTestRouter(t, svc, nil)

	w := do(router, http.MethodPost, "/api/sos", "u1", `{"latitude":37.7749,"longitude":-122.4194,"userPhone":"555-123-4567"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "evt-1", body["sosEventId"])
	assert.Equal(t, "partially_sent", body["status"])
	assert.EqualValues(t, 4, body["totalContacts"])
	assert.EqualValues(t, 2, body["successful"])
	assert.EqualValues(t, 1, body["failed"])
	assert.EqualValues(t, 1, body["skipped"])
	loc := body["location"].(map[string]any)
	assert.Equal(t, "https://www.google.com/maps?q=37.774900,-122.419400", loc["mapsLink"])

	assert.Equal(t, "u1", svc.lastTrigger.UserID)
	assert.Equal(t, "555-123-4567", svc.lastTrigger.UserPhone)
}

func TestTrigger_ZeroCoordinatesAccepted(t *testing.T) {
	svc := &stubService{triggerRes: &sos.TriggerResult{Event: &models.SOSEvent{ID: "e", Status: models.StatusSent}}}
	router, _ := newTestRouter(t, svc, nil)

	w := do(router, http.MethodPost, "/api/sos", "u1", `{"latitude":0,"longitude":0}`)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestTrigger_MalformedBody(t *testing.T) {
	for name, body := range map[string]string{
		"not json":          `{`,
		"missing latitude":  `{"longitude":1}`,
		"missing longitude": `{"latitude":1}`,
		"wrong type":        `{"latitude":"north","longitude":1}`,
	} {
		t.Run(name, func(t *testing.T) {
			svc := &stubService{}
			router, _ := newTestRouter(t, svc, nil)
			w := do(router, http.MethodPost, "/api/sos", "u1", body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Empty(t, svc.lastTrigger.UserID, "service not called")
		})
	}
}

func TestTrigger_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"validation", &sos.ValidationError{Field: "latitude", Message: "must be between -90 and 90"}, http.StatusBadRequest},
		{"no contacts", sos.ErrNoContacts, http.StatusNotFound},
		{"no user", &sos.NotFoundError{Resource: "user", ID: "u1"}, http.StatusNotFound},
		{"lookup", &sos.LookupError{UserID: "u1", Err: errors.New("db down")}, http.StatusInternalServerError},
		{"storage", &sos.StorageError{Op: "create event", Err: errors.New("disk full")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newTestRouter(t, &stubService{err: tt.err}, nil)
			w := do(router, http.MethodPost, "/api/sos", "u1", `{"latitude":95,"longitude":0}`)
			assert.Equal(t, tt.code, w.Code)
			body := decode(t, w)
			assert.Equal(t, false, body["success"])
			assert.NotEmpty(t, body["error"])
			if tt.code == http.StatusInternalServerError {
				assert.NotContains(t, w.Body.String(), "disk full")
				assert.NotContains(t, w.Body.String(), "db down")
			}
		})
	}
}

// --- GET /api/sos ---

func TestHistory(t *testing.T) {
	svc := &stubService{events: []models.SOSEvent{{ID: "b"}, {ID: "a"}}}
	router, _ := newTestRouter(t, svc, nil)

	w := do(router, http.MethodGet, "/api/sos", "u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	events := body["events"].([]any)
	require.Len(t, events, 2)
	assert.Equal(t, "b", events[0].(map[string]any)["id"])
	assert.Equal(t, "u1", svc.lastUser)
}

// --- POST /api/sos/:id/resolve ---

func TestResolve(t *testing.T) {
	svc := &stubService{resolved: &models.SOSEvent{ID: "evt-1", Status: models.StatusResolved}}
	router, _ := newTestRouter(t, svc, nil)

	w := do(router, http.MethodPost, "/api/sos/evt-1/resolve", "u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	event := decode(t, w)["event"].(map[string]any)
	assert.Equal(t, "resolved", event["status"])
	assert.Equal(t, "evt-1", svc.lastEvent)
	assert.Equal(t, "u1", svc.lastUser)
}

func TestResolve_NotFound(t *testing.T) {
	router, _ := newTestRouter(t, &stubService{err: &sos.NotFoundError{Resource: "event", ID: "x"}}, nil)
	w := do(router, http.MethodPost, "/api/sos/x/resolve", "u1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// --- POST /api/devices ---

func TestRegisterDevice(t *testing.T) {
	router, gdb := newTestRouter(t, &stubService{}, nil)

	w := do(router, http.MethodPost, "/api/devices", "u1", `{"token":"tok-1","platform":"ios"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var dev models.DeviceToken
	require.NoError(t, gdb.Where("token = ?", "tok-1").First(&dev).Error)
	assert.Equal(t, "u1", dev.UserID)
	assert.Equal(t, "ios", dev.Platform)

	w = do(router, http.MethodPost, "/api/devices", "u2", `{"token":"tok-1","platform":"ios"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var count int64
	require.NoError(t, gdb.Model(&models.DeviceToken{}).Count(&count).Error)
	assert.EqualValues(t, 1, count, "token re-registration updates in place")
}

func TestRegisterDevice_Invalid(t *testing.T) {
	router, _ := newTestRouter(t, &stubService{}, nil)
	for _, body := range []string{`{}`, `{"token":"   "}`, `{"token":"t","platform":"fax"}`} {
		w := do(router, http.MethodPost, "/api/devices", "u1", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

// --- /healthz, /metrics ---

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t, &stubService{}, nil)
	w := do(router, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "ok", body["status"])
	channels := body["channels"].([]any)
	require.Len(t, channels, 2)
	assert.Equal(t, map[string]any{"name": "push", "usable": false}, channels[1])
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, &stubService{}, nil)
	w := do(router, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "lifeline_dispatch_duration_seconds")
}

// --- GET /api/sos/stream ---

func TestStream_Unavailable(t *testing.T) {
	router, _ := newTestRouter(t, &stubService{}, nil)
	w := do(router, http.MethodGet, "/api/sos/stream", "u1", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStream_RelaysOwnStatusChanges(t *testing.T) {
	feed := sos.NewFeed()
	defer feed.Close()
	router, _ := newTestRouter(t, &stubService{}, feed)
	srv := httptest.NewServer(router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/sos/stream", nil)
	require.NoError(t, err)
	req.Header.Set("X-User-ID", "u1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	next := func() string {
		for lines.Scan() {
			if l := lines.Text(); strings.HasPrefix(l, "event: ") {
				return strings.TrimPrefix(l, "event: ")
			}
		}
		return ""
	}
	require.Equal(t, "connected", next())

	feed.Publish(statusChangeFor("u2", "other"))
	feed.Publish(statusChangeFor("u1", "mine"))

	require.Equal(t, "status", next())
	require.True(t, lines.Scan())
	assert.Contains(t, lines.Text(), `"eventId":"mine"`)
}

func statusChangeFor(userID, eventID string) sos.StatusChange {
	return sos.StatusChange{EventID: eventID, UserID: userID, Status: models.StatusSent, At: time.Now().UTC()}
}
