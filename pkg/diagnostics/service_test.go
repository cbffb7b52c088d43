package diagnostics

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/NotCoffee418/sml_smart_meter/pkg/types"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	last        types.MeterReading
	hasLast     bool
	complete    types.MeterReading
	completeAt  time.Time
	hasComplete bool
	frame       []byte
	stats       types.Stats
}

func (f *fakeSource) LastReading() (types.MeterReading, bool) { return f.last, f.hasLast }

func (f *fakeSource) LastComplete() (types.MeterReading, time.Time, bool) {
	return f.complete, f.completeAt, f.hasComplete
}

func (f *fakeSource) LastRawFrame() []byte { return f.frame }

func (f *fakeSource) Stats() types.Stats { return f.stats }

func testReading() types.MeterReading {
	return types.MeterReading{
		Validity:         types.ValidAll,
		MeterID:          [3]byte{'I', 'S', 'K'},
		SerialNumber:     [10]byte{0x0a, 0x01, 0x49, 0x53, 0x4b, 0x00, 0x04, 0x7c, 0x2e, 0x11},
		RecordID:         9,
		UptimeSeconds:    77,
		EnergyImported:   123456,
		EnergyExported:   42,
		IsFineResolution: true,
	}
}

func testMeta() Meta {
	return Meta{
		Device:  "meter-pi",
		Program: "SML Smart Meter",
		Version: "test",
		Started: time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC),
	}
}

func readySource() *fakeSource {
	r := testReading()
	return &fakeSource{
		last:        r,
		hasLast:     true,
		complete:    r,
		completeAt:  time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC),
		hasComplete: true,
		frame:       []byte{0x76, 0x05, 0x01},
		stats:       types.Stats{FramesCompleted: 3, Published: 1},
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestRoot(t *testing.T) {
	s := NewServer(&fakeSource{}, testMeta(), nil)

	rec := get(t, s.Handler(), "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"running"`)

	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), "/nope").Code)
}

func TestStatusBeforeFirstFrame(t *testing.T) {
	s := NewServer(&fakeSource{}, testMeta(), nil)

	rec := get(t, s.Handler(), "/json")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Complete)
	assert.Empty(t, resp.Meta.Received)
	assert.Empty(t, resp.Meta.Posted)
	assert.Equal(t, "2026-10-19T08:00:00Z", resp.Meta.Started)
}

func TestStatus(t *testing.T) {
	src := readySource()
	// the most recent frame was incomplete
	src.last.Validity &^= types.ValidExported
	s := NewServer(src, testMeta(), nil)
	s.MarkPosted(time.Date(2026, 10, 19, 9, 0, 1, 0, time.UTC))

	rec := get(t, s.Handler(), "/json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "meter-pi", resp.Meta.Device)
	assert.Equal(t, "2026-10-19T09:00:01Z", resp.Meta.Posted)
	assert.Equal(t, "2026-10-19T09:00:00Z", resp.Meta.Received)
	assert.Equal(t, "ISK", resp.Energy.ID)
	assert.Equal(t, "0a-01-49-53-4b-00-04-7c-2e-11", resp.Energy.Serial)
	assert.Equal(t, uint64(123456), resp.Energy.APlus)
	assert.Equal(t, uint64(42), resp.Energy.AMinus)
	assert.True(t, resp.Energy.Detailed)
	assert.False(t, resp.Complete)
	assert.Equal(t, uint64(3), resp.Stats.FramesCompleted)
}

func TestLatest(t *testing.T) {
	s := NewServer(&fakeSource{}, testMeta(), nil)
	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), "/latest").Code)

	s = NewServer(readySource(), testMeta(), nil)
	rec := get(t, s.Handler(), "/latest")
	require.Equal(t, http.StatusOK, rec.Code)

	report := types.ReadingReportFromJsonBytes(rec.Body.Bytes())
	require.NotNil(t, report)
	assert.Equal(t, uint64(9), report.RecordID)
	assert.Equal(t, "2026-10-19T09:00:00Z", report.Timestamp)
	assert.True(t, report.Complete)
}

func TestRawFrame(t *testing.T) {
	s := NewServer(&fakeSource{}, testMeta(), nil)
	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), "/sml").Code)

	s = NewServer(readySource(), testMeta(), nil)
	rec := get(t, s.Handler(), "/sml")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
	body, _ := io.ReadAll(rec.Body)
	assert.Equal(t, []byte{0x76, 0x05, 0x01}, body)
}

func TestWebSocketFeed(t *testing.T) {
	s := NewServer(readySource(), testMeta(), nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	// current reading on connect
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	report := types.ReadingReportFromJsonBytes(msg)
	require.NotNil(t, report)
	assert.Equal(t, uint64(9), report.RecordID)
	assert.Equal(t, 1, s.Hub().Len())

	next := testReading()
	next.RecordID = 10
	s.Broadcast(next, time.Now())

	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	report = types.ReadingReportFromJsonBytes(msg)
	require.NotNil(t, report)
	assert.Equal(t, uint64(10), report.RecordID)

	conn.Close()
	assert.Eventually(t, func() bool { return s.Hub().Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}
