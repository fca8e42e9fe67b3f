// Package session tracks which live connections are subscribed to which
// document and delivers broadcasts to them.
package session

import (
	"sort"
	"sync"

	"github.com/dyluth/deck/pkg/deck"
)

// Conn is a live client connection. Send must not block; transports queue
// the envelope and return an error when the connection cannot accept it.
type Conn interface {
	ID() string
	Send(env deck.Envelope) error
}

// Registry is the in-memory table of channels. One Registry lives for the
// lifetime of a server and is shared by the transport and the handlers.
// It is safe for concurrent use.
type Registry struct {
	mu sync.RWMutex

	// channels maps document id → connection id → connection
	channels map[string]map[string]Conn

	// actors maps connection id → document id → the user id the connection
	// joined as
	actors map[string]map[string]string

	// pmu orders sends to connections that are still waiting for their join
	// snapshot. Lock order is mu before pmu.
	pmu sync.Mutex

	// pending maps document id → connection id → broadcasts held until the
	// connection's snapshot has been sent
	pending map[string]map[string][]deck.Envelope
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[string]map[string]Conn),
		actors:   make(map[string]map[string]string),
		pending:  make(map[string]map[string][]deck.Envelope),
	}
}

// Join subscribes conn to the document's channel. Joining twice is a no-op.
func (r *Registry) Join(documentID string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.channels[documentID]
	if !ok {
		members = make(map[string]Conn)
		r.channels[documentID] = members
	}
	members[conn.ID()] = conn

	if _, ok := r.actors[conn.ID()]; !ok {
		r.actors[conn.ID()] = make(map[string]string)
	}
	if _, ok := r.actors[conn.ID()][documentID]; !ok {
		r.actors[conn.ID()][documentID] = ""
	}
}

// JoinPending subscribes conn to the document's channel but holds every
// broadcast to it until Admit sends its snapshot. A connection that joins
// before it reads the document then misses no change committed in between.
func (r *Registry) JoinPending(documentID string, conn Conn) {
	r.Join(documentID, conn)

	r.pmu.Lock()
	defer r.pmu.Unlock()

	held, ok := r.pending[documentID]
	if !ok {
		held = make(map[string][]deck.Envelope)
		r.pending[documentID] = held
	}
	if _, ok := held[conn.ID()]; !ok {
		held[conn.ID()] = []deck.Envelope{}
	}
}

// Admit sends first to conn, then every broadcast held since JoinPending,
// and ends the hold. Without a hold it only sends first.
func (r *Registry) Admit(documentID string, conn Conn, first deck.Envelope) error {
	r.pmu.Lock()
	defer r.pmu.Unlock()

	held := r.pending[documentID][conn.ID()]
	r.dropPendingLocked(documentID, conn.ID())

	if err := deliver(conn, first); err != nil {
		return err
	}
	for _, env := range held {
		if err := deliver(conn, env); err != nil {
			return err
		}
	}
	return nil
}

// send delivers a channel broadcast to conn, or holds it while conn waits
// for its snapshot. held reports the latter.
func (r *Registry) send(documentID string, conn Conn, env deck.Envelope) (held bool, err error) {
	r.pmu.Lock()
	defer r.pmu.Unlock()

	if queue, ok := r.pending[documentID][conn.ID()]; ok {
		r.pending[documentID][conn.ID()] = append(queue, env)
		return true, nil
	}
	return false, deliver(conn, env)
}

// Pending reports whether conn's broadcasts on the document are being held.
func (r *Registry) Pending(documentID string, conn Conn) bool {
	r.pmu.Lock()
	defer r.pmu.Unlock()

	_, ok := r.pending[documentID][conn.ID()]
	return ok
}

func (r *Registry) dropPendingLocked(documentID, connID string) {
	if held, ok := r.pending[documentID]; ok {
		delete(held, connID)
		if len(held) == 0 {
			delete(r.pending, documentID)
		}
	}
}

// Bind records that conn acts as userID within the document. The binding is
// dropped when the connection leaves the channel.
func (r *Registry) Bind(documentID string, conn Conn, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bound, ok := r.actors[conn.ID()]
	if !ok {
		bound = make(map[string]string)
		r.actors[conn.ID()] = bound
	}
	bound[documentID] = userID
}

// Actor returns the user id conn joined the document as, or "".
func (r *Registry) Actor(documentID string, conn Conn) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.actors[conn.ID()][documentID]
}

// Leave unsubscribes conn from the document's channel.
func (r *Registry) Leave(documentID string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.leaveLocked(documentID, conn.ID())
}

// LeaveAll removes conn from every channel it is in and returns the ids of
// those documents. Called when a connection closes.
func (r *Registry) LeaveAll(conn Conn) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var left []string
	for documentID := range r.actors[conn.ID()] {
		left = append(left, documentID)
	}
	for _, documentID := range left {
		r.leaveLocked(documentID, conn.ID())
	}
	delete(r.actors, conn.ID())

	sort.Strings(left)
	return left
}

func (r *Registry) leaveLocked(documentID, connID string) {
	r.pmu.Lock()
	r.dropPendingLocked(documentID, connID)
	r.pmu.Unlock()

	if members, ok := r.channels[documentID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.channels, documentID)
		}
	}
	if bound, ok := r.actors[connID]; ok {
		delete(bound, documentID)
		if len(bound) == 0 {
			delete(r.actors, connID)
		}
	}
}

// Members returns a snapshot of the connections in the document's channel,
// ordered by connection id.
func (r *Registry) Members(documentID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]Conn, 0, len(r.channels[documentID]))
	for _, c := range r.channels[documentID] {
		members = append(members, c)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID() < members[j].ID() })
	return members
}

// Channels returns the ids of the documents conn is subscribed to.
func (r *Registry) Channels(conn Conn) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	channels := make([]string, 0, len(r.actors[conn.ID()]))
	for documentID := range r.actors[conn.ID()] {
		channels = append(channels, documentID)
	}
	sort.Strings(channels)
	return channels
}

// Count returns the number of connections in the document's channel.
func (r *Registry) Count(documentID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.channels[documentID])
}

// Contains reports whether conn is subscribed to the document's channel.
func (r *Registry) Contains(documentID string, conn Conn) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.channels[documentID][conn.ID()]
	return ok
}
