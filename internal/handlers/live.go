package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"tides/internal/models"
	"tides/internal/services"
)

const (
	liveWriteBuffer  = 64
	liveReadTimeout  = 90 * time.Second
	livePingInterval = 30 * time.Second
	liveWriteTimeout = 10 * time.Second
)

var (
	errListenerClosed = errors.New("listener closed")
	errListenerSlow   = errors.New("listener write buffer full")
)

// liveListener adapts a WebSocket connection to services.Listener. Send never
// blocks the actor: a full buffer fails the send and the actor prunes it.
type liveListener struct {
	id        string
	writeChan chan models.LiveEvent
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
}

func newLiveListener() *liveListener {
	return &liveListener{
		id:        uuid.New().String(),
		writeChan: make(chan models.LiveEvent, liveWriteBuffer),
		done:      make(chan struct{}),
	}
}

func (l *liveListener) ID() string { return l.id }

func (l *liveListener) Closed() bool { return l.closed.Load() }

func (l *liveListener) Send(event models.LiveEvent) error {
	if l.closed.Load() {
		return errListenerClosed
	}
	select {
	case l.writeChan <- event:
		return nil
	default:
		return errListenerSlow
	}
}

// reply queues a handler-originated event, logging when it cannot be queued
func (l *liveListener) reply(event models.LiveEvent) bool {
	if err := l.Send(event); err != nil {
		log.Printf("⚠️ [LIVE] Dropped %s event for listener %s: %v", event.Type, l.id, err)
		return false
	}
	return true
}

func (l *liveListener) close() {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		close(l.done)
	})
}

// LiveHandler streams an owner's live events over WebSocket
type LiveHandler struct {
	service *services.TideService
}

// NewLiveHandler creates a new live-update handler
func NewLiveHandler(service *services.TideService) *LiveHandler {
	return &LiveHandler{service: service}
}

// Handle handles a new WebSocket connection
// GET /ws/tides
func (h *LiveHandler) Handle(c *websocket.Conn) {
	owner, _ := c.Locals("user_id").(string)
	listener := newLiveListener()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	err := h.service.Subscribe(ctx, owner, listener)
	cancel()
	if err != nil {
		log.Printf("❌ [LIVE] Subscribe failed for owner %s: %v", owner, err)
		if werr := c.WriteJSON(models.NewLiveEvent("error", owner, "", err.Error())); werr != nil {
			log.Printf("⚠️ [LIVE] Failed to report subscribe error to owner %s: %v", owner, werr)
		}
		c.Close()
		return
	}

	log.Printf("✅ [LIVE] Listener %s attached for owner %s", listener.id, owner)
	defer func() {
		listener.close()
		h.service.Unsubscribe(owner, listener.id)
		log.Printf("❌ [LIVE] Listener %s detached for owner %s", listener.id, owner)
	}()

	if err := c.SetReadDeadline(time.Now().Add(liveReadTimeout)); err != nil {
		log.Printf("⚠️ [LIVE] Failed to set read deadline for %s: %v", listener.id, err)
		return
	}
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(liveReadTimeout))
	})

	// A broadcast can fill the buffer between Subscribe and here
	listener.reply(models.NewLiveEvent("connected", owner, "", map[string]string{"listener_id": listener.id}))

	go h.writeLoop(c, listener)
	h.readLoop(c, listener, owner)
}

// writeLoop is the only writer on the connection
func (h *LiveHandler) writeLoop(c *websocket.Conn, listener *liveListener) {
	ticker := time.NewTicker(livePingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-listener.done:
			return
		case event := <-listener.writeChan:
			if err := c.SetWriteDeadline(time.Now().Add(liveWriteTimeout)); err != nil {
				log.Printf("⚠️ [LIVE] Failed to set write deadline for %s: %v", listener.id, err)
				listener.close()
				c.Close()
				return
			}
			if err := c.WriteJSON(event); err != nil {
				log.Printf("⚠️ [LIVE] Write failed for %s: %v", listener.id, err)
				listener.close()
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteTimeout)); err != nil {
				listener.close()
				c.Close()
				return
			}
		}
	}
}

// readLoop answers client heartbeats until the connection drops
func (h *LiveHandler) readLoop(c *websocket.Conn, listener *liveListener, owner string) {
	for {
		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}
		if err := c.SetReadDeadline(time.Now().Add(liveReadTimeout)); err != nil {
			log.Printf("⚠️ [LIVE] Failed to extend read deadline for %s: %v", listener.id, err)
			return
		}

		var clientMsg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg, &clientMsg); err != nil {
			listener.reply(models.NewLiveEvent("error", owner, "", "invalid message format"))
			continue
		}

		switch clientMsg.Type {
		case "ping":
			listener.reply(models.NewLiveEvent("pong", owner, "", nil))
		default:
			log.Printf("⚠️ [LIVE] Unknown message type from %s: %s", listener.id, clientMsg.Type)
		}
	}
}
