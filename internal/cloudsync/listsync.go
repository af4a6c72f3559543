package cloudsync

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/Bache94/ListeByBache/internal/shoppinglist"
)

// HandleLocalChange pushes a user edit. It does nothing unless connected,
// and every push is followed by a list pull.
func (m *Manager) HandleLocalChange(c shoppinglist.Change) {
	v, ok := m.current()
	if !ok {
		return
	}
	m.goTask(func() {
		m.push(v, c)
		m.ReconcileListNow(v.ctx)
	})
}

func (m *Manager) push(v view, c shoppinglist.Change) {
	switch c.Kind {
	case shoppinglist.ChangeAdd, shoppinglist.ChangeToggle:
		item, ok := m.localItem(c)
		if !ok {
			return
		}
		if err := m.upsertItem(v, item); err != nil {
			m.recordError(v.epoch, newError(KindSync, "sync", err))
		}
	case shoppinglist.ChangeRemove:
		err := m.store.Delete(v.ctx, v.zone, c.ID.String())
		if err != nil && !errors.Is(err, ErrNotFound) {
			m.recordError(v.epoch, newError(KindSync, "sync", err))
		}
	case shoppinglist.ChangeClearChecked, shoppinglist.ChangeReplaceAll:
		if err := m.pushSnapshot(v); err != nil {
			m.recordError(v.epoch, newError(KindSync, "snapshot sync", err))
		}
	}
}

// localItem prefers the item as it is now over the one carried by the change.
func (m *Manager) localItem(c shoppinglist.Change) (shoppinglist.Item, bool) {
	id := c.ID
	if c.Item != nil {
		id = c.Item.ID
	}
	if list := m.boundList(); list != nil {
		if it, ok := list.Item(id); ok {
			return it, true
		}
	}
	if c.Item != nil {
		return *c.Item, true
	}
	return shoppinglist.Item{}, false
}

func (m *Manager) upsertItem(v view, item shoppinglist.Item) error {
	id := item.ID.String()
	rec, err := m.store.Fetch(v.ctx, v.zone, id)
	if errors.Is(err, ErrNotFound) {
		rec, err = &Record{Zone: v.zone, ID: id, Type: TypeListItem}, nil
	}
	if err != nil {
		return err
	}
	fields, err := m.itemFields(item)
	if err != nil {
		return err
	}
	if rec.Fields == nil {
		rec.Fields = map[string]any{}
	}
	for k, val := range fields {
		rec.Fields[k] = val
	}
	rec.Zone = v.zone
	rec.Type = TypeListItem
	_, err = m.store.Save(v.ctx, *rec)
	return err
}

// pushSnapshot makes the remote item set equal to the local list in one bulk
// modify: every local item is saved and every remote-only record deleted.
func (m *Manager) pushSnapshot(v view) error {
	list := m.boundList()
	if list == nil {
		return nil
	}
	remote, err := m.store.Query(v.ctx, v.zone, Query{Type: TypeListItem})
	if err != nil {
		return err
	}
	items := list.Items()
	local := make(map[string]struct{}, len(items))
	save := make([]Record, 0, len(items))
	for _, it := range items {
		fields, err := m.itemFields(it)
		if err != nil {
			return err
		}
		id := it.ID.String()
		local[id] = struct{}{}
		save = append(save, Record{Zone: v.zone, ID: id, Type: TypeListItem, Fields: fields})
	}
	var del []string
	for _, r := range remote {
		if _, ok := local[r.ID]; !ok {
			del = append(del, r.ID)
		}
	}
	return m.store.Modify(v.ctx, v.zone, save, del)
}

// ReconcileListNow replaces the local list with the remote items. A pull
// requested while one is running for the same session is dropped. The query
// ends with ctx or with the session, whichever goes first.
func (m *Manager) ReconcileListNow(ctx context.Context) {
	v, ok := m.current()
	if !ok {
		return
	}
	if !v.sess.listPulling.CompareAndSwap(false, true) {
		return
	}
	defer v.sess.listPulling.Store(false)

	qctx, cancel := v.bound(ctx)
	records, err := m.store.Query(qctx, v.zone, Query{Type: TypeListItem})
	cancel()
	if err != nil {
		m.recordError(v.epoch, newError(KindSync, "sync pull", err))
		return
	}
	items := decodeItems(records)

	m.applyMu.Lock()
	defer m.applyMu.Unlock()
	m.mu.Lock()
	list := m.list
	live := m.epoch == v.epoch
	m.mu.Unlock()
	if !live || list == nil {
		return
	}
	list.ApplyExternal(shoppinglist.Change{Kind: shoppinglist.ChangeReplaceAll, Items: items})
}

func (m *Manager) itemFields(item shoppinglist.Item) (map[string]any, error) {
	payload, err := json.Marshal(item)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		FieldPayload:   string(payload),
		FieldUpdatedAt: m.nowMillis(),
	}, nil
}

// decodeItems skips records whose payload is missing or unreadable.
func decodeItems(records []Record) []shoppinglist.Item {
	items := make([]shoppinglist.Item, 0, len(records))
	for _, r := range records {
		payload, ok := fieldString(r.Fields, FieldPayload)
		if !ok {
			continue
		}
		var it shoppinglist.Item
		if err := json.Unmarshal([]byte(payload), &it); err != nil {
			continue
		}
		items = append(items, it.Normalize())
	}
	return items
}

func (m *Manager) boundList() *shoppinglist.Store {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.list
}
