// Package wiretest provides an in-process gateway speaking the wire protocol
// for transport and supervisor tests.
package wiretest

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Gateway is a scriptable single-connection gateway. Configure the exported
// fields before the client dials.
type Gateway struct {
	// LinkAfterChallenges completes pairing by sending a linked message right
	// after the Nth challenge has been issued. Zero means never link.
	LinkAfterChallenges int
	// LinkWithStaleSeq issues two challenges, then a scan of the superseded
	// first challenge, then a scan of the current one.
	LinkWithStaleSeq bool
	// RejectResume answers any resume attempt with auth_rejected.
	RejectResume bool
	// ChallengeOnResume answers a resume attempt with a pairing challenge, the
	// way a gateway that lost the registration tries to restart pairing.
	ChallengeOnResume bool

	upgrader websocket.Upgrader

	mu            sync.Mutex
	conn          *websocket.Conn
	failAckReason string

	readyOnce sync.Once
	ready     chan struct{}
}

// NewGateway creates a gateway with default behaviour: challenges on demand,
// successful resumes, successful acks.
func NewGateway() *Gateway {
	return &Gateway{ready: make(chan struct{})}
}

// FailAcks makes subsequent sends fail with the given reason.
func (g *Gateway) FailAcks(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failAckReason = reason
}

// PushMessage delivers an inbound message to the connected client. Blocks
// until a client is connected.
func (g *Gateway) PushMessage(id, contentType string, payload []byte) {
	<-g.ready
	g.write(map[string]any{
		"op":           "message",
		"id":           id,
		"content_type": contentType,
		"payload":      base64.StdEncoding.EncodeToString(payload),
		"timestamp":    time.Now().UTC(),
	})
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	g.mu.Lock()
	g.conn = conn
	g.mu.Unlock()
	g.readyOnce.Do(func() { close(g.ready) })

	defer conn.Close()
	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		g.handle(msg)
	}
}

func (g *Gateway) handle(msg map[string]any) {
	switch msg["op"] {
	case "pair":
		g.issueChallenge(1)
	case "pair_refresh":
		seq := int(msg["seq"].(float64))
		g.issueChallenge(seq)
	case "resume":
		if g.ChallengeOnResume {
			g.issueChallenge(1)
			return
		}
		if g.RejectResume {
			g.write(map[string]any{
				"op":      "error",
				"code":    "auth_rejected",
				"message": "credential revoked",
			})
			return
		}
		g.write(map[string]any{"op": "resumed"})
	case "send":
		g.mu.Lock()
		reason := g.failAckReason
		g.mu.Unlock()
		g.write(map[string]any{
			"op":      "ack",
			"id":      msg["id"],
			"ok":      reason == "",
			"message": reason,
		})
	}
}

func (g *Gateway) issueChallenge(seq int) {
	g.write(map[string]any{
		"op":  "challenge",
		"ref": fmt.Sprintf("ref-%d", seq),
		"seq": seq,
	})

	if g.LinkWithStaleSeq && seq == 2 {
		g.sendLinked(1)
		g.sendLinked(2)
		return
	}
	if g.LinkAfterChallenges > 0 && seq >= g.LinkAfterChallenges {
		g.sendLinked(seq)
	}
}

func (g *Gateway) sendLinked(seq int) {
	g.write(map[string]any{
		"op":              "linked",
		"seq":             seq,
		"credential":      base64.StdEncoding.EncodeToString([]byte("linked-key-material")),
		"registration_id": 7,
	})
}

func (g *Gateway) write(msg map[string]any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn != nil {
		_ = g.conn.WriteJSON(msg)
	}
}
