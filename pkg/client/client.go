// Package client speaks the deck real-time protocol over a WebSocket.
//
// A Client is the raw protocol: one method per inbound event and a channel of
// everything the server sends. An Editor sits on top and folds those events
// into a local, undoable view of one document.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dyluth/deck/pkg/deck"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// ErrClosed is returned when sending on a closed client.
var ErrClosed = errors.New("client is closed")

// Client is a connection to a deck server. Sends are safe for concurrent use.
type Client struct {
	conn   *websocket.Conn
	events chan deck.Envelope

	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}

	errMu sync.Mutex
	err   error
}

// Dial connects to the server's WebSocket endpoint, for example
// ws://localhost:3001/ws.
func Dial(ctx context.Context, url string, header http.Header) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	c := &Client{
		conn:   conn,
		events: make(chan deck.Envelope, 64),
		done:   make(chan struct{}),
	}
	go c.readLoop()

	return c, nil
}

// Events returns the channel of server events. It is closed when the
// connection ends; Err then reports why.
func (c *Client) Events() <-chan deck.Envelope {
	return c.events
}

// Err returns the error that ended the connection, if any.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Client) readLoop() {
	defer close(c.events)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				select {
				case <-c.done:
				default:
					c.errMu.Lock()
					c.err = err
					c.errMu.Unlock()
				}
			}
			return
		}

		var env deck.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}

		select {
		case c.events <- env:
		case <-c.done:
			return
		}
	}
}

// Send writes one event frame.
func (c *Client) Send(event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}

	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(deck.Envelope{Event: event, Data: data}); err != nil {
		return fmt.Errorf("failed to send %s: %w", event, err)
	}
	return nil
}

// Join subscribes to a presentation as userID.
func (c *Client) Join(presentationID, userID, nickname string) error {
	return c.Send(deck.EventJoin, deck.JoinPayload{
		PresentationID: presentationID,
		UserID:         userID,
		Nickname:       nickname,
	})
}

// Leave unsubscribes from a presentation.
func (c *Client) Leave(presentationID, userID string) error {
	return c.Send(deck.EventLeave, deck.LeavePayload{PresentationID: presentationID, UserID: userID})
}

// ChangeRole asks the server to set the role of userID.
func (c *Client) ChangeRole(presentationID, userID string, role deck.Role) error {
	return c.Send(deck.EventChangeRole, deck.ChangeRolePayload{
		PresentationID: presentationID,
		UserID:         userID,
		Role:           role,
	})
}

// UpdateSlide replaces the elements of one slide.
func (c *Client) UpdateSlide(presentationID string, slideIndex int, elements []deck.Element) error {
	if elements == nil {
		elements = []deck.Element{}
	}
	return c.Send(deck.EventUpdateSlide, deck.UpdateSlidePayload{
		PresentationID: presentationID,
		SlideIndex:     slideIndex,
		Elements:       elements,
	})
}

// AddSlide appends a slide, acting as userID.
func (c *Client) AddSlide(presentationID, userID string) error {
	return c.Send(deck.EventAddSlide, deck.AddSlidePayload{PresentationID: presentationID, UserID: userID})
}

// RemoveSlide removes the slide at slideIndex, acting as userID.
func (c *Client) RemoveSlide(presentationID string, slideIndex int, userID string) error {
	return c.Send(deck.EventRemoveSlide, deck.RemoveSlidePayload{
		PresentationID: presentationID,
		SlideIndex:     slideIndex,
		UserID:         userID,
	})
}

// Close sends a close frame and tears the connection down. Safe to call more
// than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		c.writeMu.Unlock()

		err = c.conn.Close()
	})
	return err
}
