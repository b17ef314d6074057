package ws

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Channel is a single live push handle. Send may fail at any time; the hub
// treats a failure as delivery loss for that recipient only.
type Channel interface {
	Send(msg Message) error
}

// closer is implemented by channels that can be torn down on forced disconnect.
type closer interface {
	Close()
}

type binding struct {
	groupID   uuid.UUID
	sessionID uuid.UUID
}

type registration struct {
	accountID uuid.UUID
	channel   Channel
}

// Hub keeps live push channels per group (a match) and per session, with a
// reverse index from account to its current registration.
type Hub struct {
	mu       sync.RWMutex
	groups   map[uuid.UUID]map[uuid.UUID]registration // group_id -> session_id -> registration
	accounts map[uuid.UUID]binding                    // account_id -> current binding
	logger   zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		groups:   make(map[uuid.UUID]map[uuid.UUID]registration),
		accounts: make(map[uuid.UUID]binding),
		logger:   logger.With().Str("component", "callback_hub").Logger(),
	}
}

// Register binds a session channel to a group. When the account already has a
// different session registered, that binding is replaced and the previous
// channel is returned so the caller can notify and close it. A session moving
// to another group only drops its old binding; nothing is returned.
func (h *Hub) Register(groupID, sessionID, accountID uuid.UUID, ch Channel) (replaced Channel) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if prev, ok := h.accounts[accountID]; ok && (prev.groupID != groupID || prev.sessionID != sessionID) {
		if sessions, ok := h.groups[prev.groupID]; ok {
			if reg, ok := sessions[prev.sessionID]; ok {
				if prev.sessionID != sessionID {
					replaced = reg.channel
				}
				delete(sessions, prev.sessionID)
			}
			if len(sessions) == 0 {
				delete(h.groups, prev.groupID)
			}
		}
	}

	sessions, ok := h.groups[groupID]
	if !ok {
		sessions = make(map[uuid.UUID]registration)
		h.groups[groupID] = sessions
	}
	sessions[sessionID] = registration{accountID: accountID, channel: ch}
	h.accounts[accountID] = binding{groupID: groupID, sessionID: sessionID}

	h.logger.Debug().
		Str("group_id", groupID.String()).
		Str("session_id", sessionID.String()).
		Str("account_id", accountID.String()).
		Msg("callback registered")
	return replaced
}

// Unregister removes a session from a group. Unknown pairs are ignored.
func (h *Hub) Unregister(groupID, sessionID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(groupID, sessionID)
}

func (h *Hub) removeLocked(groupID, sessionID uuid.UUID) {
	sessions, ok := h.groups[groupID]
	if !ok {
		return
	}
	reg, ok := sessions[sessionID]
	if !ok {
		return
	}
	delete(sessions, sessionID)
	if len(sessions) == 0 {
		delete(h.groups, groupID)
	}
	if b, ok := h.accounts[reg.accountID]; ok && b.groupID == groupID && b.sessionID == sessionID {
		delete(h.accounts, reg.accountID)
	}
}

// Broadcast delivers msg to every channel registered for the group and
// returns how many sends succeeded. Failed channels are dropped.
func (h *Hub) Broadcast(groupID uuid.UUID, msg Message) int {
	type target struct {
		sessionID uuid.UUID
		channel   Channel
	}

	h.mu.RLock()
	sessions := h.groups[groupID]
	targets := make([]target, 0, len(sessions))
	for sid, reg := range sessions {
		targets = append(targets, target{sessionID: sid, channel: reg.channel})
	}
	h.mu.RUnlock()

	delivered := 0
	var broken []uuid.UUID
	for _, t := range targets {
		if err := t.channel.Send(msg); err != nil {
			h.logger.Warn().Err(err).
				Str("group_id", groupID.String()).
				Str("session_id", t.sessionID.String()).
				Str("type", msg.Type).
				Msg("broadcast send failed")
			broken = append(broken, t.sessionID)
			continue
		}
		delivered++
	}

	if len(broken) > 0 {
		h.mu.Lock()
		for _, sid := range broken {
			h.removeLocked(groupID, sid)
		}
		h.mu.Unlock()
	}
	return delivered
}

// BroadcastAll sends a message to every registered channel.
func (h *Hub) BroadcastAll(msg Message) int {
	h.mu.RLock()
	groupIDs := make([]uuid.UUID, 0, len(h.groups))
	for gid := range h.groups {
		groupIDs = append(groupIDs, gid)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, gid := range groupIDs {
		delivered += h.Broadcast(gid, msg)
	}
	return delivered
}

// TryGetGroupForAccount reports the group an account is currently bound to.
func (h *Hub) TryGetGroupForAccount(accountID uuid.UUID) (uuid.UUID, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	b, ok := h.accounts[accountID]
	return b.groupID, ok
}

// TargetedSend delivers msg to the single channel bound to accountID.
func (h *Hub) TargetedSend(accountID uuid.UUID, msg Message) error {
	h.mu.RLock()
	b, ok := h.accounts[accountID]
	var ch Channel
	if ok {
		ch = h.groups[b.groupID][b.sessionID].channel
	}
	h.mu.RUnlock()

	if ch == nil {
		return ErrConnectionNotFound
	}
	if err := ch.Send(msg); err != nil {
		h.logger.Warn().Err(err).Str("account_id", accountID.String()).Str("type", msg.Type).Msg("targeted send failed")
		h.Unregister(b.groupID, b.sessionID)
		return err
	}
	return nil
}

// ForceDisconnect sends a forced_disconnect notice to the account's channel,
// closes it when possible and removes the registration.
func (h *Hub) ForceDisconnect(accountID uuid.UUID, payload ForcedDisconnectPayload) {
	h.mu.Lock()
	b, ok := h.accounts[accountID]
	var ch Channel
	if ok {
		ch = h.groups[b.groupID][b.sessionID].channel
		h.removeLocked(b.groupID, b.sessionID)
	}
	h.mu.Unlock()

	if ch == nil {
		return
	}
	NotifyForcedDisconnect(ch, payload, h.logger)
}

// NotifyForcedDisconnect pushes a forced_disconnect notice then closes ch.
func NotifyForcedDisconnect(ch Channel, payload ForcedDisconnectPayload, logger zerolog.Logger) {
	msg, err := NewMessage(TypeForcedDisconnect, payload)
	if err == nil {
		if sendErr := ch.Send(msg); sendErr != nil {
			logger.Debug().Err(sendErr).Msg("forced disconnect notice not delivered")
		}
	}
	if c, ok := ch.(closer); ok {
		c.Close()
	}
}

// CloseGroup notifies and closes every channel in the group and drops the
// group. It returns how many sessions were closed.
func (h *Hub) CloseGroup(groupID uuid.UUID, payload ForcedDisconnectPayload) int {
	h.mu.Lock()
	sessions := h.groups[groupID]
	channels := make([]Channel, 0, len(sessions))
	for sid, reg := range sessions {
		channels = append(channels, reg.channel)
		h.removeLocked(groupID, sid)
	}
	h.mu.Unlock()

	for _, ch := range channels {
		NotifyForcedDisconnect(ch, payload, h.logger)
	}
	return len(channels)
}

// GroupSize returns the number of sessions registered for a group.
func (h *Hub) GroupSize(groupID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[groupID])
}

var (
	ErrConnectionNotFound = &Error{Code: "connection_not_found", Message: "User connection not found"}
	ErrConnectionClosed   = &Error{Code: "connection_closed", Message: "Connection is closed"}
	ErrSendQueueFull      = &Error{Code: "send_queue_full", Message: "Send queue is full"}
)

type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}
