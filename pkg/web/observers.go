package web

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/tmaxmax/go-sse"
)

// Observers is the read-only SSE feed mirroring every run event to all subscribers.
// the websocket sender stays the only client able to start or stop runs.
type Observers struct {
	srv *sse.Server
}

// NewObservers creates an observer feed with the default in-memory provider.
func NewObservers() *Observers {
	return &Observers{srv: &sse.Server{}}
}

// ServeHTTP subscribes the request to the feed until it disconnects.
func (o *Observers) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering
	o.srv.ServeHTTP(w, r)
}

// Publish sends an event to all observers.
func (o *Observers) Publish(e Event) {
	msg, err := e.ToSSEMessage()
	if err != nil {
		log.Printf("[WARN] %v", err)
		return
	}
	if err := o.srv.Publish(msg); err != nil {
		log.Printf("[DEBUG] observer publish: %v", err)
	}
}

// Shutdown disconnects all observers.
func (o *Observers) Shutdown(ctx context.Context) error {
	if err := o.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown observers: %w", err)
	}
	return nil
}
