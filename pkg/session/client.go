package session

import (
	"context"
	"encoding/json"

	"resume-editor/pkg/view"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

// Client is a websocket connection watching a session
type Client struct {
	ID      string          `json:"id"`
	Conn    *websocket.Conn `json:"-"`
	Session *Session        `json:"-"`
	Send    chan []byte     `json:"-"`
}

// Message is the envelope of everything pushed to clients
type Message struct {
	Type     string         `json:"type"`
	State    *view.Snapshot `json:"state,omitempty"`
	Revision int64          `json:"revision,omitempty"`
	PDF      string         `json:"pdf,omitempty"`
	Error    string         `json:"error,omitempty"`
	Seq      uint64         `json:"seq,omitempty"` // correlation id
}

func stateMessage(snap view.Snapshot) []byte {
	data, _ := json.Marshal(Message{Type: "state", State: &snap})
	return data
}

func artifactMessage(a view.Artifact) []byte {
	data, _ := json.Marshal(Message{Type: "artifact", Revision: a.Revision, PDF: a.Payload})
	return data
}

// NewClient creates a client with a buffered send queue
func NewClient(id string, conn *websocket.Conn, s *Session) *Client {
	return &Client{
		ID:      id,
		Conn:    conn,
		Session: s,
		Send:    make(chan []byte, 256),
	}
}

// Register adds c to the session and sends it the current state and artifact.
// It returns false if the session is closed. The session owns c.Send from
// here on and closes it exactly once; callers never do.
func (s *Session) Register(c *Client) bool {
	s.joinMutex.Lock()
	s.joining[c] = struct{}{}
	s.joinMutex.Unlock()

	posted := s.loop.Post(func() {
		if !s.claim(c) {
			return
		}
		if s.closed {
			close(c.Send)
			return
		}
		s.clients[c.ID] = c
		glog.V(1).Infof("[session]%s client %s joined (%d)", s.ID, c.ID, len(s.clients))

		s.deliver(c, stateMessage(s.view.Snapshot()))
		if a, ok := s.view.Artifact(); ok {
			s.deliver(c, artifactMessage(a))
		}
	})
	if !posted {
		if s.claim(c) {
			close(c.Send)
		}
		return false
	}
	return true
}

// claim takes c out of the joining set. Only the caller that gets true may
// touch c.Send.
func (s *Session) claim(c *Client) bool {
	s.joinMutex.Lock()
	defer s.joinMutex.Unlock()
	if _, ok := s.joining[c]; !ok {
		return false
	}
	delete(s.joining, c)
	return true
}

// Unregister removes c and closes its send queue. Safe to call more than once.
func (s *Session) Unregister(c *Client) {
	s.loop.Post(func() {
		if _, ok := s.clients[c.ID]; ok {
			delete(s.clients, c.ID)
			close(c.Send)
			glog.V(1).Infof("[session]%s client %s left (%d)", s.ID, c.ID, len(s.clients))
		}
	})
}

// SendTo queues msg for c alone, if it is still registered
func (s *Session) SendTo(c *Client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		glog.Errorf("[session]marshal %s = %s", msg.Type, err)
		return
	}
	s.loop.Post(func() {
		if _, ok := s.clients[c.ID]; ok {
			s.deliver(c, data)
		}
	})
}

// ClientCount returns the number of registered clients
func (s *Session) ClientCount(ctx context.Context) (int, error) {
	n := 0
	err := s.loop.Do(ctx, func() {
		n = len(s.clients)
	})
	return n, err
}

func (s *Session) broadcast(data []byte) {
	for _, c := range s.clients {
		s.deliver(c, data)
	}
}

// deliver drops a client whose queue is full rather than block the loop
func (s *Session) deliver(c *Client, data []byte) {
	select {
	case c.Send <- data:
	default:
		glog.Warningf("[session]%s client %s too slow, dropped", s.ID, c.ID)
		delete(s.clients, c.ID)
		close(c.Send)
	}
}
