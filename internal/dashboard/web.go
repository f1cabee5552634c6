package dashboard

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/fEst1ck/coverage-playground/internal/stats"
)

// snapshotPayload is what the web dashboard pushes over the websocket and
// serves from /api/stats: the same numbers the TUI renders and the Writer
// persists, so all three views of a run agree (§4.6).
type snapshotPayload struct {
	RunID      string                 `json:"run_id"`
	Elapsed    string                 `json:"elapsed"`
	Execs      int64                  `json:"execs"`
	Crashes    int64                  `json:"crashes"`
	QueueSize  int                    `json:"queue_size"`
	Level      int                    `json:"level"`
	Cumulative map[string]int         `json:"cumulative"`
}

// Server is the optional `fuzzer --web :9090` live monitoring endpoint
// (SPEC_FULL §3). It has no write path into Corpus or Scheduler: it only
// reads through stats.Source and stats.Counters on a timer, adapted from
// the teacher's internal/web.Server broadcast loop.
type Server struct {
	app   *fiber.App
	runID string
	start time.Time

	counters *stats.Counters
	source   stats.Source

	clientsMu sync.Mutex
	clients   map[*websocket.Conn]bool

	broadcast chan []byte
	stop      chan struct{}
}

// NewServer creates a web dashboard server bound to a run's live counters.
func NewServer(runID string, counters *stats.Counters, source stats.Source) *Server {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	s := &Server{
		app:       app,
		runID:     runID,
		start:     time.Now(),
		counters:  counters,
		source:    source,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan []byte, 16),
		stop:      make(chan struct{}),
	}

	app.Use(cors.New())
	app.Get("/api/stats", s.handleStats)
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(s.handleWebSocket))

	go s.handleBroadcast()
	go s.tickLoop()

	return s
}

func (s *Server) snapshot() snapshotPayload {
	cumulative := make(map[string]int)
	for metric, n := range s.source.Cumulative() {
		cumulative[string(metric)] = n
	}
	return snapshotPayload{
		RunID:      s.runID,
		Elapsed:    time.Since(s.start).Round(time.Second).String(),
		Execs:      s.counters.Execs(),
		Crashes:    s.source.CrashCount(),
		QueueSize:  s.source.QueueSize(),
		Level:      s.source.CurrentLevel(),
		Cumulative: cumulative,
	}
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	return c.JSON(s.snapshot())
}

func (s *Server) handleWebSocket(c *websocket.Conn) {
	s.clientsMu.Lock()
	s.clients[c] = true
	s.clientsMu.Unlock()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, c)
		s.clientsMu.Unlock()
		c.Close()
	}()

	data, _ := json.Marshal(s.snapshot())
	c.WriteMessage(websocket.TextMessage, data)

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) handleBroadcast() {
	for {
		var msg []byte
		select {
		case <-s.stop:
			return
		case msg = <-s.broadcast:
		}
		s.clientsMu.Lock()
		for client := range s.clients {
			if err := client.WriteMessage(websocket.TextMessage, msg); err != nil {
				client.Close()
				delete(s.clients, client)
			}
		}
		s.clientsMu.Unlock()
	}
}

func (s *Server) tickLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			data, err := json.Marshal(s.snapshot())
			if err != nil {
				continue
			}
			select {
			case s.broadcast <- data:
			default:
			}
		}
	}
}

// Start listens on addr; it blocks until Stop is called.
func (s *Server) Start(addr string) error {
	return s.app.Listen(addr)
}

// Stop shuts the server and its background loops down.
func (s *Server) Stop() error {
	close(s.stop)
	return s.app.Shutdown()
}
