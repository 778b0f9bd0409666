package web

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/se302/webtest/pkg/runner"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// handleWS upgrades the request and serves one client until it disconnects.
// run events go to the client that issued run:tests, catalog updates go to everyone.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WARN] websocket upgrade from %s: %v", r.RemoteAddr, err)
		return
	}
	log.Printf("[DEBUG] client connected from %s", r.RemoteAddr)

	ch := s.hub.Subscribe()
	done := make(chan struct{})
	go s.writePump(conn, ch, done)

	s.readPump(conn, ch)
	s.hub.Unsubscribe(ch)
	<-done
	log.Printf("[DEBUG] client disconnected from %s", r.RemoteAddr)
}

// readPump reads client commands until the connection fails or is closed.
func (s *Server) readPump(conn *websocket.Conn, ch chan Event) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WARN] websocket read: %v", err)
			}
			return
		}
		s.handleCommand(ch, msg)
	}
}

// writePump drains the client channel to the connection and keeps it alive with pings.
// exits when the channel is closed or a write fails, closing the connection either way.
func (s *Server) writePump(conn *websocket.Conn, ch chan Event, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
		close(done)
	}()

	for {
		select {
		case e, ok := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			data, err := e.JSON()
			if err != nil {
				log.Printf("[WARN] %v", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("[DEBUG] websocket write: %v", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleCommand dispatches one inbound message. malformed and unknown messages are
// logged and ignored.
func (s *Server) handleCommand(ch chan Event, msg []byte) {
	cmd, err := ParseCommand(msg)
	if err != nil {
		log.Printf("[WARN] %v", err)
		return
	}

	switch cmd.Name {
	case CommandRunTests:
		var req runner.Request
		if len(cmd.Data) > 0 {
			if err := json.Unmarshal(cmd.Data, &req); err != nil {
				log.Printf("[WARN] decode %s: %v", cmd.Name, err)
				return
			}
		}
		if err := s.runs.Start(req, s.emitter(ch)); err != nil {
			text := err.Error()
			if errors.Is(err, runner.ErrAlreadyRunning) {
				text = runner.AlreadyRunningMessage
			}
			s.hub.Send(ch, NewEvent(runner.EventError, runner.ErrorData{Error: text}))
		}
	case CommandStopTests:
		s.stopRun(ch)
	default:
		log.Printf("[DEBUG] unknown command %q", cmd.Name)
	}
}

// stopRun stops the active run. the client that started it gets test:stopped through
// the run's emitter, a different stopping client gets its own acknowledgement.
func (s *Server) stopRun(ch chan Event) {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()

	s.setStoppedOwner(nil)
	if _, ok := s.runs.Stop(); !ok {
		return
	}
	if s.stoppedOwner() != ch {
		s.hub.Send(ch, NewEvent(runner.EventStopped, runner.StoppedData{Message: runner.StoppedMessage}))
	}
}

// emitter returns the run event sink of one client, mirrored to observers when enabled.
func (s *Server) emitter(ch chan Event) runner.Emitter {
	return func(name string, data any) {
		e := NewEvent(name, data)
		s.hub.Send(ch, e)
		s.publish(e)
		if name == runner.EventStopped {
			s.setStoppedOwner(ch)
		}
	}
}

func (s *Server) setStoppedOwner(ch chan Event) {
	s.ownerMu.Lock()
	s.owner = ch
	s.ownerMu.Unlock()
}

// stoppedOwner returns the client that received the run's own test:stopped, nil if none.
func (s *Server) stoppedOwner() chan Event {
	s.ownerMu.Lock()
	defer s.ownerMu.Unlock()
	return s.owner
}
