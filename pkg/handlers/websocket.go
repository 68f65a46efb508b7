package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime/debug"
	"time"

	"resume-editor/pkg/session"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// inbound is what clients send over the socket
type inbound struct {
	Type    string  `json:"type"`
	Content *string `json:"content"`
	Text    string  `json:"text"`
	Seq     uint64  `json:"seq"`
}

// HandleWebSocket streams a session's state to the client and accepts edits
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s, err := h.manager.Get(vars["sessionId"])
	if err != nil {
		status, message := statusFor(err)
		writeError(w, status, message)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Warningf("[ws]upgrade = %s", err)
		return
	}

	client := session.NewClient(uuid.New().String(), conn, s)

	go h.writePump(client)
	if !s.Register(client) {
		return
	}
	go h.readPump(client)
}

// readPump handles reading messages from the WebSocket
func (h *Handlers) readPump(c *session.Client) {
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("[ws]panic in readPump for %s: %v\n%s", c.ID, r, debug.Stack())
		}
		c.Session.Unregister(c)
		c.Conn.Close()
		glog.V(1).Infof("[ws]readPump exiting for %s", c.ID)
	}()

	c.Conn.SetReadLimit(h.maxMessageBytes)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				glog.Warningf("[ws]unexpected close for %s: %s", c.ID, err)
			}
			break
		}

		var msg inbound
		if err := json.Unmarshal(message, &msg); err != nil {
			glog.V(1).Infof("[ws]bad message from %s: %s", c.ID, err)
			c.Session.SendTo(c, session.Message{Type: "error", Error: "Invalid JSON"})
			continue
		}

		switch msg.Type {
		case "edit":
			h.handleEdit(c, msg)
		case "recompile":
			if err := c.Session.Recompile(context.Background()); err != nil {
				h.replyError(c, msg.Seq, err)
			}
		case "instruction":
			// instructions take seconds; keep reading while the service works
			go h.handleInstruction(c, msg)
		case "ping":
			c.Session.SendTo(c, session.Message{Type: "pong", Seq: msg.Seq})
		default:
			glog.V(1).Infof("[ws]unknown message type from %s: %q", c.ID, msg.Type)
			c.Session.SendTo(c, session.Message{Type: "error", Error: "Unknown message type", Seq: msg.Seq})
		}
	}
}

// writePump handles writing messages to the WebSocket
func (h *Handlers) writePump(c *session.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Session.Unregister(c)
		c.Conn.Close()
		glog.V(1).Infof("[ws]writePump exiting for %s", c.ID)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// channel closed: send close and return
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				glog.V(1).Infof("[ws]write error for %s: %s", c.ID, err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				glog.V(1).Infof("[ws]ping error for %s: %s", c.ID, err)
				return
			}
		}
	}
}

func (h *Handlers) handleEdit(c *session.Client, msg inbound) {
	if msg.Content == nil {
		c.Session.SendTo(c, session.Message{Type: "error", Error: "Missing content", Seq: msg.Seq})
		return
	}
	if _, err := c.Session.Edit(context.Background(), *msg.Content); err != nil {
		h.replyError(c, msg.Seq, err)
	}
}

func (h *Handlers) handleInstruction(c *session.Client, msg inbound) {
	out, err := c.Session.ApplyInstruction(context.Background(), msg.Text)
	reply := session.Message{Type: "instruction_result", Seq: msg.Seq}
	if err != nil {
		_, reply.Error = statusFor(err)
	} else {
		reply.Revision = out.Mutation.Revision
	}
	c.Session.SendTo(c, reply)
}

func (h *Handlers) replyError(c *session.Client, seq uint64, err error) {
	_, message := statusFor(err)
	c.Session.SendTo(c, session.Message{Type: "error", Error: message, Seq: seq})
}
