// Package collab implements the mutation handlers behind the real-time
// protocol. Each handler validates its payload, applies one store operation
// and broadcasts the outcome to the document's channel.
package collab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/dyluth/deck/internal/retry"
	"github.com/dyluth/deck/internal/session"
	"github.com/dyluth/deck/pkg/deck"
)

// RoleChangePolicy decides who may change a participant's role.
type RoleChangePolicy string

const (
	// RoleChangeOwner only honours role changes from a connection that
	// joined the document as its owner.
	RoleChangeOwner RoleChangePolicy = "owner"

	// RoleChangeTrusted honours every role change request.
	RoleChangeTrusted RoleChangePolicy = "trusted"
)

// Validate checks if the policy is a known value.
func (p RoleChangePolicy) Validate() error {
	switch p {
	case RoleChangeOwner, RoleChangeTrusted:
		return nil
	default:
		return fmt.Errorf("unknown role change policy: %q", p)
	}
}

// Options configures Handlers.
type Options struct {
	InstanceName string
	Retry        retry.Policy
	RoleChange   RoleChangePolicy
}

// Handlers owns the mutation handlers for one server.
type Handlers struct {
	store      *deck.Store
	registry   *session.Registry
	fanout     *session.Fanout
	retry      retry.Policy
	roleChange RoleChangePolicy
	instance   string
}

// New creates the handlers. The fanout's registry is the channel table the
// handlers subscribe connections to.
func New(store *deck.Store, fanout *session.Fanout, opts Options) *Handlers {
	if opts.RoleChange == "" {
		opts.RoleChange = RoleChangeOwner
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.DefaultPolicy()
	}

	return &Handlers{
		store:      store,
		registry:   fanout.Registry(),
		fanout:     fanout,
		retry:      opts.Retry,
		roleChange: opts.RoleChange,
		instance:   opts.InstanceName,
	}
}

// Join subscribes conn to the document's channel and adds the user to the
// roster. The whole channel learns the new roster; only the joining
// connection receives the document snapshot.
func (h *Handlers) Join(ctx context.Context, conn session.Conn, p deck.JoinPayload) {
	defer h.recoverPanic(deck.EventJoin, conn)

	if p.PresentationID == "" || p.UserID == "" || p.Nickname == "" {
		h.reject(conn, deck.EventJoin, "presentationId, userId and nickname are required")
		return
	}

	// Subscribe before writing so no broadcast committed after the snapshot
	// is missed; broadcasts are held until the snapshot is sent.
	h.registry.JoinPending(p.PresentationID, conn)
	h.registry.Bind(p.PresentationID, conn, p.UserID)
	admitted := false
	defer func() {
		if !admitted {
			h.registry.Leave(p.PresentationID, conn)
		}
	}()

	doc, changed, err := h.store.UpsertParticipant(ctx, p.PresentationID, deck.Participant{
		ID:       p.UserID,
		Nickname: p.Nickname,
	})
	if deck.IsNotFound(err) {
		h.reject(conn, deck.EventJoin, "presentation not found")
		return
	}
	if err != nil {
		h.fail(conn, deck.EventJoin, p.PresentationID, err)
		h.reject(conn, deck.EventJoin, "failed to join presentation")
		return
	}

	h.logEvent("participant_joined", map[string]interface{}{
		"document_id": p.PresentationID,
		"user_id":     p.UserID,
		"conn_id":     conn.ID(),
		"new_entry":   changed,
		"channel":     h.registry.Count(p.PresentationID),
	})

	h.emit(ctx, p.PresentationID, deck.EventParticipantsChanged, doc.Users)
	err = h.fanout.Admit(p.PresentationID, conn, deck.EventDocumentChanged, doc)
	admitted = true
	if err != nil {
		log.Printf("[Collab] Failed to send snapshot: %v", err)
	}
}

// Leave unsubscribes conn from the document's channel. The roster keeps the
// participant.
func (h *Handlers) Leave(ctx context.Context, conn session.Conn, p deck.LeavePayload) {
	defer h.recoverPanic(deck.EventLeave, conn)

	if p.PresentationID == "" {
		h.reject(conn, deck.EventLeave, "presentationId is required")
		return
	}

	h.registry.Leave(p.PresentationID, conn)

	h.logEvent("participant_left", map[string]interface{}{
		"document_id": p.PresentationID,
		"user_id":     p.UserID,
		"conn_id":     conn.ID(),
		"channel":     h.registry.Count(p.PresentationID),
	})
}

// ChangeRole sets the role of a participant. Broadcasts the roster only when
// the role actually changed.
func (h *Handlers) ChangeRole(ctx context.Context, conn session.Conn, p deck.ChangeRolePayload) {
	defer h.recoverPanic(deck.EventChangeRole, conn)

	if p.PresentationID == "" || p.UserID == "" {
		h.reject(conn, deck.EventChangeRole, "presentationId and userId are required")
		return
	}
	if p.Role != deck.RoleEditor && p.Role != deck.RoleViewer {
		h.reject(conn, deck.EventChangeRole, fmt.Sprintf("role must be %s or %s", deck.RoleEditor, deck.RoleViewer))
		return
	}

	if h.roleChange == RoleChangeOwner {
		actor := h.registry.Actor(p.PresentationID, conn)
		if !h.isOwner(ctx, p.PresentationID, actor, deck.EventChangeRole) {
			return
		}
	}

	result, doc, err := h.store.SetParticipantRole(ctx, p.PresentationID, p.UserID, p.Role)
	switch {
	case errors.Is(err, deck.ErrOwnerImmutable):
		h.ignored(deck.EventChangeRole, p.PresentationID, p.UserID, "owner role is immutable")
		return
	case deck.IsNotFound(err):
		h.ignored(deck.EventChangeRole, p.PresentationID, p.UserID, "presentation not found")
		return
	case err != nil:
		h.fail(conn, deck.EventChangeRole, p.PresentationID, err)
		return
	}

	if result.Matched == 0 {
		h.ignored(deck.EventChangeRole, p.PresentationID, p.UserID, "participant not found")
		return
	}
	if result.Modified == 0 {
		h.ignored(deck.EventChangeRole, p.PresentationID, p.UserID, "role unchanged")
		return
	}

	h.logEvent("role_changed", map[string]interface{}{
		"document_id": p.PresentationID,
		"user_id":     p.UserID,
		"role":        string(p.Role),
	})
	h.emit(ctx, p.PresentationID, deck.EventParticipantsChanged, doc.Users)
}

// UpdateSlide replaces the elements of one slide and echoes the persisted
// list to the whole channel, sender included.
func (h *Handlers) UpdateSlide(ctx context.Context, conn session.Conn, p deck.UpdateSlidePayload) {
	defer h.recoverPanic(deck.EventUpdateSlide, conn)

	if p.PresentationID == "" {
		h.reject(conn, deck.EventUpdateSlide, "presentationId is required")
		return
	}
	if p.SlideIndex < 0 {
		h.reject(conn, deck.EventUpdateSlide, "slideIndex must not be negative")
		return
	}
	if p.Elements == nil {
		h.reject(conn, deck.EventUpdateSlide, "elements are required")
		return
	}

	result, elements, err := h.store.ReplaceSlideElements(ctx, p.PresentationID, p.SlideIndex, p.Elements)
	switch {
	case errors.Is(err, deck.ErrInvalid):
		h.reject(conn, deck.EventUpdateSlide, err.Error())
		return
	case deck.IsNotFound(err):
		h.ignored(deck.EventUpdateSlide, p.PresentationID, "", "presentation not found")
		return
	case err != nil:
		h.fail(conn, deck.EventUpdateSlide, p.PresentationID, err)
		return
	}

	if result.Matched == 0 {
		h.ignored(deck.EventUpdateSlide, p.PresentationID, "", fmt.Sprintf("no slide at index %d", p.SlideIndex))
		return
	}

	h.logEvent("slide_updated", map[string]interface{}{
		"document_id": p.PresentationID,
		"slide_index": p.SlideIndex,
		"elements":    len(elements),
		"conn_id":     conn.ID(),
	})
	h.emit(ctx, p.PresentationID, deck.EventSlideUpdated, deck.SlideUpdatedPayload{
		SlideIndex: p.SlideIndex,
		Elements:   elements,
	})
}

// AddSlide appends an empty slide. Only the owner may add slides; anyone
// else is ignored without a broadcast.
func (h *Handlers) AddSlide(ctx context.Context, conn session.Conn, p deck.AddSlidePayload) {
	defer h.recoverPanic(deck.EventAddSlide, conn)

	if p.PresentationID == "" || p.UserID == "" {
		h.reject(conn, deck.EventAddSlide, "presentationId and userId are required")
		return
	}

	if !h.isOwner(ctx, p.PresentationID, p.UserID, deck.EventAddSlide) {
		return
	}

	doc, err := h.store.AppendSlide(ctx, p.PresentationID)
	if deck.IsNotFound(err) {
		h.ignored(deck.EventAddSlide, p.PresentationID, p.UserID, "presentation not found")
		return
	}
	if err != nil {
		h.fail(conn, deck.EventAddSlide, p.PresentationID, err)
		return
	}

	h.logEvent("slide_added", map[string]interface{}{
		"document_id": p.PresentationID,
		"user_id":     p.UserID,
		"slides":      doc.SlideCount(),
	})
	h.emit(ctx, p.PresentationID, deck.EventDocumentChanged, doc)
}

// RemoveSlide removes the slide at the given index and renumbers the rest.
// Only the owner may remove slides and the last slide is never removed.
func (h *Handlers) RemoveSlide(ctx context.Context, conn session.Conn, p deck.RemoveSlidePayload) {
	defer h.recoverPanic(deck.EventRemoveSlide, conn)

	if p.PresentationID == "" || p.UserID == "" {
		h.reject(conn, deck.EventRemoveSlide, "presentationId and userId are required")
		return
	}
	if p.SlideIndex < 0 {
		h.reject(conn, deck.EventRemoveSlide, "slideIndex must not be negative")
		return
	}

	if !h.isOwner(ctx, p.PresentationID, p.UserID, deck.EventRemoveSlide) {
		return
	}

	result, err := h.store.TombstoneSlide(ctx, p.PresentationID, p.SlideIndex)
	switch {
	case errors.Is(err, deck.ErrLastSlide):
		h.ignored(deck.EventRemoveSlide, p.PresentationID, p.UserID, "last slide")
		return
	case deck.IsNotFound(err):
		h.ignored(deck.EventRemoveSlide, p.PresentationID, p.UserID, "presentation not found")
		return
	case err != nil:
		h.fail(conn, deck.EventRemoveSlide, p.PresentationID, err)
		return
	}
	if result.Modified == 0 {
		h.ignored(deck.EventRemoveSlide, p.PresentationID, p.UserID, fmt.Sprintf("no slide at index %d", p.SlideIndex))
		return
	}

	policy := h.retry
	policy.Notify = func(err error, wait time.Duration) {
		h.logEvent("compaction_retry", map[string]interface{}{
			"document_id": p.PresentationID,
			"error":       err.Error(),
			"wait_ms":     wait.Milliseconds(),
		})
	}

	var doc *deck.Document
	err = retry.Do(ctx, func() error {
		compacted, err := h.store.CompactSlides(ctx, p.PresentationID)
		if err != nil {
			return err
		}
		doc = compacted
		return nil
	}, policy)
	if err != nil {
		h.logEvent("compaction_failed", map[string]interface{}{
			"document_id": p.PresentationID,
			"slide_index": p.SlideIndex,
			"error":       err.Error(),
		})
		return
	}

	h.logEvent("slide_removed", map[string]interface{}{
		"document_id": p.PresentationID,
		"user_id":     p.UserID,
		"slide_index": p.SlideIndex,
		"slides":      doc.SlideCount(),
	})
	h.emit(ctx, p.PresentationID, deck.EventDocumentChanged, doc)
}

// isOwner reports whether userID owns the document. Refusals are logged.
func (h *Handlers) isOwner(ctx context.Context, documentID, userID, event string) bool {
	if userID == "" {
		h.ignored(event, documentID, userID, "connection has not joined the presentation")
		return false
	}

	role, err := h.store.Role(ctx, documentID, userID)
	if deck.IsNotFound(err) {
		h.ignored(event, documentID, userID, "presentation not found")
		return false
	}
	if err != nil {
		h.ignored(event, documentID, userID, fmt.Sprintf("role lookup failed: %v", err))
		return false
	}
	if role != deck.RoleOwner {
		h.ignored(event, documentID, userID, "not authorized")
		return false
	}
	return true
}

func (h *Handlers) emit(ctx context.Context, documentID, event string, payload interface{}) {
	if _, err := h.fanout.Emit(ctx, documentID, event, payload); err != nil {
		log.Printf("[Collab] Failed to broadcast %s for document %s: %v", event, documentID, err)
	}
}

// reject tells the sender its request was malformed.
func (h *Handlers) reject(conn session.Conn, event, message string) {
	h.logEvent("request_rejected", map[string]interface{}{
		"event":   event,
		"conn_id": conn.ID(),
		"message": message,
	})
	if err := h.fanout.EmitTo(conn, deck.EventError, deck.ErrorPayload{Message: message}); err != nil {
		log.Printf("[Collab] Failed to send error: %v", err)
	}
}

// ignored records a request that was dropped without telling anyone.
func (h *Handlers) ignored(event, documentID, userID, reason string) {
	h.logEvent("request_ignored", map[string]interface{}{
		"event":       event,
		"document_id": documentID,
		"user_id":     userID,
		"reason":      reason,
	})
}

// fail records an unexpected store error.
func (h *Handlers) fail(conn session.Conn, event, documentID string, err error) {
	h.logEvent("request_failed", map[string]interface{}{
		"event":       event,
		"document_id": documentID,
		"conn_id":     conn.ID(),
		"error":       err.Error(),
	})
}

// recoverPanic keeps a panicking handler from taking the connection down.
func (h *Handlers) recoverPanic(event string, conn session.Conn) {
	if r := recover(); r != nil {
		h.logEvent("handler_panic", map[string]interface{}{
			"event":   event,
			"conn_id": conn.ID(),
			"panic":   fmt.Sprint(r),
		})
	}
}

// logEvent logs a structured event in JSON format.
func (h *Handlers) logEvent(eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "collab"
	data["event_type"] = eventType
	data["instance"] = h.instance

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Collab] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}
