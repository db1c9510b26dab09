package controlapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aqa-systems/brain/internal/orchestrator"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsInbound is one client->server message over /ws/execute.
type wsInbound struct {
	Action      string          `json:"action"`
	Plan        json.RawMessage `json:"plan,omitempty"`
	PlanFile    string          `json:"plan_file,omitempty"`
	Requirement string          `json:"requirement,omitempty"`
	OpenAPI     json.RawMessage `json:"openapi,omitempty"`
	BaseURL     string          `json:"base_url,omitempty"`
}

// wsOutbound is one server->client event.
type wsOutbound struct {
	Type      string                     `json:"type"`
	StepID    string                     `json:"step_id,omitempty"`
	StepIndex int                        `json:"step_index,omitempty"`
	StepCount int                        `json:"step_count,omitempty"`
	Result    *orchestrator.StepResult   `json:"result,omitempty"`
	Summary   *orchestrator.RunnerResult `json:"summary,omitempty"`
	Message   string                     `json:"message,omitempty"`
}

type wsClient struct {
	conn   *websocket.Conn
	send   chan wsOutbound
	mu     sync.Mutex
	closed bool
	cancel context.CancelFunc
}

func (c *wsClient) sendEvent(ev wsOutbound) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- ev:
	default:
	}
}

func (c *wsClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// handleWSExecute upgrades the connection and serves a single long-lived
// execution channel: "execute" starts a streamed run, "cancel" terminates
// it early, "ping" is answered with "pong". Only one execution runs at a
// time per connection; a second "execute" while one is in flight is an
// error rather than queued.
func (s *Server) handleWSExecute(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &wsClient{conn: conn, send: make(chan wsOutbound, 32)}
	go client.writePump()

	client.sendEvent(wsOutbound{Type: "connected"})
	s.wsReadLoop(client)
}

func (s *Server) wsReadLoop(client *wsClient) {
	defer func() {
		if client.cancel != nil {
			client.cancel()
		}
		client.close()
	}()

	client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	var runMu sync.Mutex
	running := false

	for {
		var msg wsInbound
		if err := client.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Action {
		case "ping":
			client.sendEvent(wsOutbound{Type: "pong"})

		case "cancel":
			runMu.Lock()
			if client.cancel != nil {
				client.cancel()
			}
			runMu.Unlock()

		case "execute":
			runMu.Lock()
			if running {
				runMu.Unlock()
				client.sendEvent(wsOutbound{Type: "error", Message: "an execution is already in progress on this connection"})
				continue
			}
			running = true
			ctx, cancel := context.WithCancel(context.Background())
			client.cancel = cancel
			runMu.Unlock()

			go func(msg wsInbound) {
				s.runWSExecution(ctx, client, msg)
				runMu.Lock()
				running = false
				client.cancel = nil
				runMu.Unlock()
			}(msg)

		default:
			client.sendEvent(wsOutbound{Type: "error", Message: "unknown action: " + msg.Action})
		}
	}
}

func (s *Server) runWSExecution(ctx context.Context, client *wsClient, msg wsInbound) {
	if s.Orchestrator == nil {
		client.sendEvent(wsOutbound{Type: "error", Message: "orchestrator not configured"})
		return
	}

	req := executeRequest{
		Plan:        msg.Plan,
		PlanFile:    msg.PlanFile,
		Requirement: msg.Requirement,
		OpenAPI:     msg.OpenAPI,
		BaseURL:     msg.BaseURL,
	}
	plan, err := s.resolvePlan(ctx, req)
	if err != nil {
		client.sendEvent(wsOutbound{Type: "error", Message: err.Error()})
		return
	}

	events := make(chan orchestrator.Event, 16)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for ev := range events {
			select {
			case <-ctx.Done():
				return
			default:
			}
			client.sendEvent(wsOutbound{
				Type:      ev.Type,
				StepID:    ev.StepID,
				StepIndex: ev.StepIndex,
				StepCount: ev.StepCount,
				Result:    ev.Result,
				Summary:   ev.Summary,
			})
		}
	}()

	result, err := s.Orchestrator.RunPlanStreaming(ctx, plan, orchestrator.Options{}, events)
	<-done

	if ctx.Err() == context.Canceled {
		client.sendEvent(wsOutbound{Type: "execution_cancelled"})
		return
	}
	if err != nil {
		client.sendEvent(wsOutbound{Type: "error", Message: err.Error()})
		return
	}
	if s.metrics != nil {
		s.metrics.recordExecution(result.Status)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
