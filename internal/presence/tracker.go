package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"groupchat-service/internal/models"
)

// Sink receives every visible presence change.
type Sink interface {
	UpdatePresence(ctx context.Context, p models.Presence) error
}

type entry struct {
	sessions int
	lastSeen time.Time
}

// Tracker keeps the online state of users connected to this process.
// A user stays online while at least one of their connections is open.
// Sinks receive changes in the order the tracker applied them.
type Tracker struct {
	mu     sync.Mutex
	users  map[int]*entry
	sinks  []Sink
	logger *slog.Logger
	now    func() time.Time

	// Tickets are taken under mu and served in order under sinkMu.
	sinkMu   sync.Mutex
	sinkTurn *sync.Cond
	issued   uint64
	serving  uint64
}

func NewTracker(logger *slog.Logger, sinks ...Sink) *Tracker {
	t := &Tracker{
		users:  make(map[int]*entry),
		sinks:  sinks,
		logger: logger,
		now:    time.Now,
	}
	t.sinkTurn = sync.NewCond(&t.sinkMu)
	return t
}

// SetOnline records a new session for userID. changed is true when the user
// was offline before the call.
func (t *Tracker) SetOnline(ctx context.Context, userID int) (models.Presence, bool) {
	t.mu.Lock()
	e, ok := t.users[userID]
	if !ok {
		e = &entry{}
		t.users[userID] = e
	}
	e.sessions++
	e.lastSeen = t.now().UTC()
	p := models.Presence{UserID: userID, Online: true, LastSeen: e.lastSeen}
	changed := e.sessions == 1
	var ticket uint64
	if changed {
		ticket = t.takeTicketLocked()
	}
	t.mu.Unlock()

	if changed {
		t.notify(ctx, ticket, p)
	}
	return p, changed
}

// SetOffline releases one session of userID. changed is true only when the
// last session closed. Calling it for a user without sessions is a no-op.
func (t *Tracker) SetOffline(ctx context.Context, userID int) (models.Presence, bool) {
	t.mu.Lock()
	e, ok := t.users[userID]
	if !ok || e.sessions == 0 {
		p := models.Presence{UserID: userID}
		if ok {
			p.LastSeen = e.lastSeen
		}
		t.mu.Unlock()
		return p, false
	}
	e.sessions--
	e.lastSeen = t.now().UTC()
	p := models.Presence{UserID: userID, Online: e.sessions > 0, LastSeen: e.lastSeen}
	changed := e.sessions == 0
	var ticket uint64
	if changed {
		ticket = t.takeTicketLocked()
	}
	t.mu.Unlock()

	if changed {
		t.notify(ctx, ticket, p)
	}
	return p, changed
}

// Get returns the current presence of userID. Unknown users are offline.
func (t *Tracker) Get(userID int) models.Presence {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.users[userID]
	if !ok {
		return models.Presence{UserID: userID}
	}
	return models.Presence{UserID: userID, Online: e.sessions > 0, LastSeen: e.lastSeen}
}

// OnlineCount reports how many users have at least one session.
func (t *Tracker) OnlineCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	count := 0
	for _, e := range t.users {
		if e.sessions > 0 {
			count++
		}
	}
	return count
}

func (t *Tracker) takeTicketLocked() uint64 {
	ticket := t.issued
	t.issued++
	return ticket
}

// notify waits until every earlier change reached the sinks, then delivers p.
func (t *Tracker) notify(ctx context.Context, ticket uint64, p models.Presence) {
	t.sinkMu.Lock()
	for t.serving != ticket {
		t.sinkTurn.Wait()
	}
	defer func() {
		t.serving++
		t.sinkTurn.Broadcast()
		t.sinkMu.Unlock()
	}()

	for _, sink := range t.sinks {
		if err := sink.UpdatePresence(ctx, p); err != nil {
			t.logger.Warn("presence sink failed", "user_id", p.UserID, "online", p.Online, "error", err)
		}
	}
}
