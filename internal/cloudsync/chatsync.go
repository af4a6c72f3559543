package cloudsync

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SendChat shows the message locally at once and stores it in the
// background. A failed store keeps the local copy and sets LastError.
func (m *Manager) SendChat(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	v, ok := m.current()
	if !ok {
		return ErrNotConnected
	}
	ms := m.nowMillis()
	msg := ChatMessage{
		ID:        uuid.NewString(),
		Sender:    m.cfg.DeviceName,
		Text:      text,
		Timestamp: time.UnixMilli(ms).UTC(),
	}

	m.mu.Lock()
	if m.epoch != v.epoch {
		m.mu.Unlock()
		return ErrNotConnected
	}
	m.addChatLocked([]ChatMessage{msg})
	m.mu.Unlock()
	m.publish()

	m.goTask(func() {
		rec := Record{
			Zone: v.zone,
			ID:   msg.ID,
			Type: TypeChatMessage,
			Fields: map[string]any{
				FieldSender:    msg.Sender,
				FieldText:      msg.Text,
				FieldTimestamp: ms,
			},
		}
		if _, err := m.store.Save(v.ctx, rec); err != nil {
			m.recordError(v.epoch, newError(KindChat, "chat send", err))
		}
	})
	return nil
}

// ReconcileChatNow fetches messages newer than the last one seen. Failures
// are only logged.
func (m *Manager) ReconcileChatNow(ctx context.Context) {
	v, ok := m.current()
	if !ok {
		return
	}
	m.mu.Lock()
	since := m.lastSeen
	m.mu.Unlock()

	q := Query{Type: TypeChatMessage, Sort: []Sort{{Field: FieldTimestamp}}}
	if since > 0 {
		q.Filters = []Filter{{Field: FieldTimestamp, Op: ">", Value: since}}
	}
	qctx, cancel := v.bound(ctx)
	records, err := m.store.Query(qctx, v.zone, q)
	cancel()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			m.logger.With("zone", v.zone).Debugf("chat pull failed: %v", err)
		}
		return
	}
	if len(records) == 0 {
		return
	}

	msgs := make([]ChatMessage, 0, len(records))
	maxSeen := since
	for _, r := range records {
		msg, ts, ok := decodeChat(r)
		if !ok {
			continue
		}
		if ts > maxSeen {
			maxSeen = ts
		}
		msgs = append(msgs, msg)
	}

	m.mu.Lock()
	if m.epoch != v.epoch {
		m.mu.Unlock()
		return
	}
	if maxSeen > m.lastSeen {
		m.lastSeen = maxSeen
	}
	changed := m.addChatLocked(msgs)
	m.mu.Unlock()
	if changed {
		m.publish()
	}
}

// addChatLocked appends messages not seen before, keeps the log ordered by
// timestamp and refreshes the peer list.
func (m *Manager) addChatLocked(msgs []ChatMessage) bool {
	added := false
	for _, msg := range msgs {
		if _, dup := m.chatIDs[msg.ID]; dup {
			continue
		}
		m.chatIDs[msg.ID] = struct{}{}
		m.state.Chat = append(m.state.Chat, msg)
		added = true
	}
	if !added {
		return false
	}
	sort.SliceStable(m.state.Chat, func(i, j int) bool {
		return m.state.Chat[i].Timestamp.Before(m.state.Chat[j].Timestamp)
	})
	seen := map[string]struct{}{}
	peers := []string{}
	for _, msg := range m.state.Chat {
		if msg.Sender == "" || msg.Sender == m.cfg.DeviceName {
			continue
		}
		if _, ok := seen[msg.Sender]; ok {
			continue
		}
		seen[msg.Sender] = struct{}{}
		peers = append(peers, msg.Sender)
	}
	m.state.Peers = peers
	return true
}

// subscribe registers for change notifications on the zone. It only matters
// for push triggers, so failures are ignored.
func (m *Manager) subscribe(v view) {
	subs := map[string]string{chatSubscriptionID(v.zone): TypeChatMessage}
	if m.notes != nil {
		subs[listSubscriptionID(v.zone)] = TypeListItem
	}
	for id, recordType := range subs {
		err := m.store.SaveSubscription(v.ctx, v.zone, id, recordType)
		if err != nil && !errors.Is(err, ErrConflict) {
			m.logger.With("zone", v.zone).Debugf("subscribe %s: %v", recordType, err)
		}
	}
}

func decodeChat(r Record) (ChatMessage, int64, bool) {
	sender, ok1 := fieldString(r.Fields, FieldSender)
	text, ok2 := fieldString(r.Fields, FieldText)
	ts, ok3 := fieldInt64(r.Fields, FieldTimestamp)
	if !ok1 || !ok2 || !ok3 {
		return ChatMessage{}, 0, false
	}
	if _, err := uuid.Parse(r.ID); err != nil {
		return ChatMessage{}, 0, false
	}
	return ChatMessage{ID: r.ID, Sender: sender, Text: text, Timestamp: time.UnixMilli(ts).UTC()}, ts, true
}
