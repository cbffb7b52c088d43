package diagnostics

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/NotCoffee418/sml_smart_meter/pkg/types"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins, the feed is read only
	},
}

// Server exposes the sampler state over HTTP and a websocket live feed.
type Server struct {
	source ReadingSource
	meta   Meta
	hub    *Hub
	mux    *http.ServeMux
	logger *logrus.Entry

	// unix nanoseconds of the last successful publish, zero if none
	posted atomic.Int64
}

func NewServer(source ReadingSource, meta Meta, logger *logrus.Entry) *Server {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Server{
		source: source,
		meta:   meta,
		hub:    NewHub(),
		mux:    http.NewServeMux(),
		logger: logger.WithField("component", "diagnostics"),
	}
	s.mux.HandleFunc("/", s.handleRoot)
	s.mux.HandleFunc("/json", s.handleStatus)
	s.mux.HandleFunc("/latest", s.handleLatest)
	s.mux.HandleFunc("/sml", s.handleRawFrame)
	s.mux.HandleFunc("/ws", s.handleWebSocket)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) Hub() *Hub {
	return s.hub
}

// Broadcast pushes a reading to every live feed client.
func (s *Server) Broadcast(reading types.MeterReading, at time.Time) {
	s.hub.Broadcast(types.NewReadingReport(reading, formatTime(at)).ToJsonBytes())
}

// MarkPosted records a successful telemetry publish.
func (s *Server) MarkPosted(at time.Time) {
	s.posted.Store(at.UnixNano())
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	writeJson(w, http.StatusOK, map[string]string{
		"message": s.meta.Program,
		"device":  s.meta.Device,
		"version": s.meta.Version,
		"status":  "running",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	reading, _ := s.source.LastReading()
	_, received, hasComplete := s.source.LastComplete()

	resp := statusResponse{
		Meta: statusMeta{
			Device:  s.meta.Device,
			Program: s.meta.Program,
			Version: s.meta.Version,
			Started: formatTime(s.meta.Started),
		},
		Energy: statusEnergy{
			ID:       string(reading.MeterID[:]),
			Serial:   reading.SerialHex(),
			Detailed: reading.IsFineResolution,
			Uptime:   reading.UptimeSeconds,
			APlus:    reading.EnergyImported,
			AMinus:   reading.EnergyExported,
		},
		Complete: reading.Complete(),
		Stats:    s.source.Stats(),
	}
	if posted := s.posted.Load(); posted != 0 {
		resp.Meta.Posted = formatTime(time.Unix(0, posted))
	}
	if hasComplete {
		resp.Meta.Received = formatTime(received)
	}
	writeJson(w, http.StatusOK, resp)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	reading, at, ok := s.source.LastComplete()
	if !ok {
		writeError(w, http.StatusNotFound, "No readings available yet")
		return
	}
	writeJson(w, http.StatusOK, types.NewReadingReport(reading, formatTime(at)))
}

func (s *Server) handleRawFrame(w http.ResponseWriter, r *http.Request) {
	frame := s.source.LastRawFrame()
	if frame == nil {
		writeError(w, http.StatusNotFound, "No frame received yet")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="meter.sml"`)
	w.WriteHeader(http.StatusOK)
	w.Write(frame)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("WebSocket upgrade error")
		return
	}

	s.hub.Add(conn)

	// Send current reading immediately if available
	if reading, at, ok := s.source.LastComplete(); ok {
		s.hub.Send(conn, types.NewReadingReport(reading, formatTime(at)).ToJsonBytes())
	}

	// Keep connection alive, answers pings through the default handler
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.hub.Remove(conn)
			break
		}
	}
}

func writeJson(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJson(w, status, map[string]string{"error": message})
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
