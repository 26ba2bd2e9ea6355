package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"spacechat/internal/logger"
	"spacechat/internal/models"
)

// ViewState tracks the lifecycle of a conversation view.
type ViewState int

const (
	StateLoading ViewState = iota
	StateLive
	StateErrored
	StateClosed
)

// ConversationView owns the ordered, deduplicated working list of
// messages for one open conversation. It merges three inputs: the
// history load, local optimistic echoes, and asynchronously delivered
// insert events from the push channel. The view is the only writer of
// its list; callers get snapshots via Messages or a live feed via
// Events.
type ConversationView struct {
	conversationID  string
	userID          string
	store           *MessageStore
	reconcileWindow time.Duration

	mu          sync.Mutex
	state       ViewState
	degraded    bool
	history     []models.Message // server-confirmed, sorted by CreatedAt
	echoes      []models.Message // pending optimistic echoes, send order
	unsubscribe func()
	events      chan models.Message
}

// ConversationID returns the id of the conversation this view tracks.
func (v *ConversationView) ConversationID() string {
	return v.conversationID
}

// State returns the view's current lifecycle state.
func (v *ConversationView) State() ViewState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Degraded reports whether the push subscription has been dropped. A
// degraded view still loads history and sends, but receives no live
// updates until reopened.
func (v *ConversationView) Degraded() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.degraded
}

// Messages returns a snapshot of the working list: server-confirmed
// messages sorted by creation time, followed by any pending optimistic
// echoes in send order.
func (v *ConversationView) Messages() []models.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]models.Message, 0, len(v.history)+len(v.echoes))
	out = append(out, v.history...)
	out = append(out, v.echoes...)
	return out
}

// Events delivers each server-confirmed message accepted into the
// working list, deduplicated. The channel is closed when the view
// closes. Slow consumers lose events rather than block the view.
func (v *ConversationView) Events() <-chan models.Message {
	return v.events
}

// Send appends an optimistic echo to the working list, then persists the
// message. The echo is visible to Messages before the store round trip
// completes. On failure the echo is removed by its temporary id and a
// SendError carrying the trimmed content is returned so the caller can
// restore the user's input.
func (v *ConversationView) Send(ctx context.Context, content string) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return &ValidationError{Reason: "content is empty"}
	}

	echoID := models.EchoIDPrefix + uuid.NewString()
	v.mu.Lock()
	if v.state != StateLive {
		v.mu.Unlock()
		return ErrViewClosed
	}
	v.echoes = append(v.echoes, models.Message{
		ID:             echoID,
		ConversationID: v.conversationID,
		SenderID:       v.userID,
		Content:        trimmed,
		CreatedAt:      time.Now(),
	})
	v.mu.Unlock()

	msg, err := v.store.Append(ctx, v.conversationID, v.userID, trimmed)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state == StateClosed {
		// The view is gone; the result must not mutate the list. The
		// send itself still failed or succeeded against the store.
		if err != nil {
			return &SendError{Content: trimmed, Err: err}
		}
		return nil
	}
	if err != nil {
		v.removeEchoLocked(echoID)
		return &SendError{Content: trimmed, Err: err}
	}

	// If the push event for this row already arrived it matched the echo
	// and confirmed it; otherwise confirm it here. Whichever path runs
	// second finds nothing to do.
	if v.removeEchoLocked(echoID) {
		v.acceptLocked(*msg)
	}
	return nil
}

// Close unsubscribes from the push channel and freezes the view. Safe to
// call more than once; in-flight sends observe the closed state and
// leave the list untouched.
func (v *ConversationView) Close() {
	v.mu.Lock()
	if v.state == StateClosed {
		v.mu.Unlock()
		return
	}
	v.state = StateClosed
	unsub := v.unsubscribe
	v.unsubscribe = nil
	close(v.events)
	v.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// handleInsert absorbs a push-delivered insert event. Duplicate
// deliveries of a known id are ignored. An event matching a pending echo
// from the same sender with the same content replaces that echo at the
// authoritative sorted position; anything else is inserted at its sorted
// position directly.
func (v *ConversationView) handleInsert(msg models.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state == StateClosed || v.state == StateErrored {
		return
	}
	if v.containsLocked(msg.ID) {
		return
	}

	for i, echo := range v.echoes {
		if echo.SenderID != msg.SenderID || echo.Content != msg.Content {
			continue
		}
		if !withinWindow(echo.CreatedAt, msg.CreatedAt, v.reconcileWindow) {
			continue
		}
		v.echoes = append(v.echoes[:i], v.echoes[i+1:]...)
		break
	}
	v.acceptLocked(msg)
}

// handleDrop marks the view degraded after the push channel dropped it.
func (v *ConversationView) handleDrop() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state != StateLive {
		return
	}
	v.degraded = true
	logger.Warningf("push subscription dropped for conversation %s; view degraded to history-only", v.conversationID)
}

// acceptLocked inserts a server-confirmed message at its sorted position
// and feeds the event channel. Caller holds v.mu and has ruled out
// duplicates of msg.ID among the echoes; duplicates in history are
// checked here so the response and push paths can both call it.
func (v *ConversationView) acceptLocked(msg models.Message) {
	if !v.insertSortedLocked(msg) {
		return
	}
	select {
	case v.events <- msg:
	default:
		logger.Warningf("event feed full for conversation %s, dropping notification for %s", v.conversationID, msg.ID)
	}
}

// insertSortedLocked places a message at its sorted position, after any
// entries with an equal timestamp. Returns false for a known id.
func (v *ConversationView) insertSortedLocked(msg models.Message) bool {
	if v.containsLocked(msg.ID) {
		return false
	}
	i := len(v.history)
	for i > 0 && v.history[i-1].CreatedAt.After(msg.CreatedAt) {
		i--
	}
	v.history = append(v.history, models.Message{})
	copy(v.history[i+1:], v.history[i:])
	v.history[i] = msg
	return true
}

func (v *ConversationView) containsLocked(id string) bool {
	for _, m := range v.history {
		if m.ID == id {
			return true
		}
	}
	return false
}

func (v *ConversationView) removeEchoLocked(echoID string) bool {
	for i, echo := range v.echoes {
		if echo.ID == echoID {
			v.echoes = append(v.echoes[:i], v.echoes[i+1:]...)
			return true
		}
	}
	return false
}

func withinWindow(a, b time.Time, window time.Duration) bool {
	d := b.Sub(a)
	if d < 0 {
		d = -d
	}
	return d <= window
}
