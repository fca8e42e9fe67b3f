package collab

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dyluth/deck/internal/session"
	"github.com/dyluth/deck/pkg/deck"
)

// Dispatch decodes one inbound frame and routes it to its handler.
// Malformed frames and unknown events are answered with an error event.
func (h *Handlers) Dispatch(ctx context.Context, conn session.Conn, raw []byte) {
	defer h.recoverPanic("dispatch", conn)

	var env deck.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.reject(conn, "", "malformed message")
		return
	}
	if env.Event == "" {
		h.reject(conn, "", "message has no event name")
		return
	}

	switch env.Event {
	case deck.EventJoin:
		var p deck.JoinPayload
		if h.decode(conn, env, &p) {
			h.Join(ctx, conn, p)
		}
	case deck.EventLeave:
		var p deck.LeavePayload
		if h.decode(conn, env, &p) {
			h.Leave(ctx, conn, p)
		}
	case deck.EventChangeRole:
		var p deck.ChangeRolePayload
		if h.decode(conn, env, &p) {
			h.ChangeRole(ctx, conn, p)
		}
	case deck.EventUpdateSlide:
		var p deck.UpdateSlidePayload
		if h.decode(conn, env, &p) {
			h.UpdateSlide(ctx, conn, p)
		}
	case deck.EventAddSlide:
		var p deck.AddSlidePayload
		if h.decode(conn, env, &p) {
			h.AddSlide(ctx, conn, p)
		}
	case deck.EventRemoveSlide:
		var p deck.RemoveSlidePayload
		if h.decode(conn, env, &p) {
			h.RemoveSlide(ctx, conn, p)
		}
	default:
		h.reject(conn, env.Event, fmt.Sprintf("unknown event: %s", env.Event))
	}
}

func (h *Handlers) decode(conn session.Conn, env deck.Envelope, v interface{}) bool {
	if len(env.Data) == 0 || string(env.Data) == "null" {
		h.reject(conn, env.Event, fmt.Sprintf("%s requires data", env.Event))
		return false
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		h.reject(conn, env.Event, fmt.Sprintf("invalid %s payload: %v", env.Event, err))
		return false
	}
	return true
}

// Disconnect removes conn from every channel. Participants stay on their
// rosters.
func (h *Handlers) Disconnect(conn session.Conn) {
	left := h.registry.LeaveAll(conn)
	if len(left) == 0 {
		return
	}
	h.logEvent("connection_closed", map[string]interface{}{
		"conn_id":   conn.ID(),
		"documents": left,
	})
}
