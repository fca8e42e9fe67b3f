package deck

import "encoding/json"

// Inbound event names (client → server).
const (
	EventJoin        = "join_presentation"
	EventLeave       = "leave_presentation"
	EventChangeRole  = "change_user_role"
	EventUpdateSlide = "update_slide"
	EventAddSlide    = "add_slide"
	EventRemoveSlide = "remove_slide"
)

// Outbound event names (server → client).
const (
	EventParticipantsChanged = "participants_changed"
	EventDocumentChanged     = "document_changed"
	EventSlideUpdated        = "slide_updated"
	EventError               = "error"
)

// Envelope is the wire frame for every WebSocket message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Event is a broadcast as published on the instance event channel.
type Event struct {
	DocumentID  string          `json:"document_id"`
	Name        string          `json:"event"`
	Data        json.RawMessage `json:"data"`
	TimestampMs int64           `json:"timestamp_ms"`
}

// JoinPayload is the data of join_presentation.
type JoinPayload struct {
	PresentationID string `json:"presentationId"`
	UserID         string `json:"userId"`
	Nickname       string `json:"nickname"`
}

// LeavePayload is the data of leave_presentation.
type LeavePayload struct {
	PresentationID string `json:"presentationId"`
	UserID         string `json:"userId"`
}

// ChangeRolePayload is the data of change_user_role. UserID is the target.
type ChangeRolePayload struct {
	PresentationID string `json:"presentationId"`
	UserID         string `json:"userId"`
	Role           Role   `json:"role"`
}

// UpdateSlidePayload is the data of update_slide.
type UpdateSlidePayload struct {
	PresentationID string    `json:"presentationId"`
	SlideIndex     int       `json:"slideIndex"`
	Elements       []Element `json:"elements"`
}

// AddSlidePayload is the data of add_slide. UserID is the actor.
type AddSlidePayload struct {
	PresentationID string `json:"presentationId"`
	UserID         string `json:"userId"`
}

// RemoveSlidePayload is the data of remove_slide. UserID is the actor.
type RemoveSlidePayload struct {
	PresentationID string `json:"presentationId"`
	SlideIndex     int    `json:"slideIndex"`
	UserID         string `json:"userId"`
}

// SlideUpdatedPayload is the data of slide_updated.
type SlideUpdatedPayload struct {
	SlideIndex int       `json:"slideIndex"`
	Elements   []Element `json:"elements"`
}

// ErrorPayload is the data of error.
type ErrorPayload struct {
	Message string `json:"message"`
}
