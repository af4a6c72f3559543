package cloudsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// memBackend is an in-memory record store shared by several fake clients.
type memBackend struct {
	mu      sync.Mutex
	owners  map[string]string
	records map[string]map[string]Record
	order   map[string][]string
	shares  map[string]Share
	subs    map[string]string

	calls map[string]int
	fail  map[string]error
	gate  func(ctx context.Context, user string) error
	// queryGate runs before every query, outside the backend lock.
	queryGate func(ctx context.Context, zone, recordType string) error
}

func newMemBackend() *memBackend {
	return &memBackend{
		owners:  map[string]string{PublicZone: ""},
		records: map[string]map[string]Record{},
		order:   map[string][]string{},
		shares:  map[string]Share{},
		subs:    map[string]string{},
		calls:   map[string]int{},
		fail:    map[string]error{},
	}
}

func (b *memBackend) as(user string) *memStore {
	return &memStore{b: b, user: user}
}

func (b *memBackend) setFail(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail[op] = err
}

func (b *memBackend) totalCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		n += c
	}
	return n
}

func (b *memBackend) callCount(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

// put stores a record without counting a call.
func (b *memBackend) put(rec Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.putLocked(rec)
}

func (b *memBackend) ids(zone, recordType string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, id := range b.order[zone] {
		if r, ok := b.records[zone][id]; ok && r.Type == recordType {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func (b *memBackend) record(zone, id string) (Record, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.records[zone][id]
	return cloneRecord(r), ok
}

func (b *memBackend) putLocked(rec Record) {
	zone := b.records[rec.Zone]
	if zone == nil {
		zone = map[string]Record{}
		b.records[rec.Zone] = zone
	}
	if _, ok := zone[rec.ID]; !ok {
		b.order[rec.Zone] = append(b.order[rec.Zone], rec.ID)
	}
	zone[rec.ID] = cloneRecord(rec)
}

func (b *memBackend) deleteLocked(zone, id string) bool {
	if _, ok := b.records[zone][id]; !ok {
		return false
	}
	delete(b.records[zone], id)
	ids := b.order[zone][:0]
	for _, o := range b.order[zone] {
		if o != id {
			ids = append(ids, o)
		}
	}
	b.order[zone] = ids
	return true
}

// begin counts the call and returns the injected failure, if any.
func (b *memBackend) begin(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.calls[op]++
	return b.fail[op]
}

type memStore struct {
	b    *memBackend
	user string
}

func (s *memStore) AccountStatus(ctx context.Context) error {
	s.b.mu.Lock()
	gate := s.b.gate
	s.b.mu.Unlock()
	if gate != nil {
		if err := gate(ctx, s.user); err != nil {
			return err
		}
	}
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	return s.b.begin(ctx, "account")
}

func (s *memStore) CreateZone(ctx context.Context, zone string) error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if err := s.b.begin(ctx, "zone"); err != nil {
		return err
	}
	if owner, ok := s.b.owners[zone]; ok && owner != s.user {
		return ErrConflict
	}
	s.b.owners[zone] = s.user
	return nil
}

func (s *memStore) Fetch(ctx context.Context, zone, id string) (*Record, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if err := s.b.begin(ctx, "fetch"); err != nil {
		return nil, err
	}
	r, ok := s.b.records[zone][id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneRecord(r)
	return &out, nil
}

func (s *memStore) Save(ctx context.Context, rec Record) (*Record, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if err := s.b.begin(ctx, "save:"+rec.Type); err != nil {
		return nil, err
	}
	if _, ok := s.b.owners[rec.Zone]; !ok {
		return nil, ErrNotFound
	}
	s.b.putLocked(rec)
	out := cloneRecord(rec)
	return &out, nil
}

func (s *memStore) Delete(ctx context.Context, zone, id string) error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if err := s.b.begin(ctx, "delete"); err != nil {
		return err
	}
	if !s.b.deleteLocked(zone, id) {
		return ErrNotFound
	}
	return nil
}

func (s *memStore) Modify(ctx context.Context, zone string, save []Record, deleteIDs []string) error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if err := s.b.begin(ctx, "modify"); err != nil {
		return err
	}
	for _, r := range save {
		r.Zone = zone
		s.b.putLocked(r)
	}
	for _, id := range deleteIDs {
		s.b.deleteLocked(zone, id)
	}
	return nil
}

func (s *memStore) Query(ctx context.Context, zone string, q Query) ([]Record, error) {
	s.b.mu.Lock()
	gate := s.b.queryGate
	s.b.mu.Unlock()
	if gate != nil {
		if err := gate(ctx, zone, q.Type); err != nil {
			return nil, err
		}
	}
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if err := s.b.begin(ctx, "query:"+q.Type); err != nil {
		return nil, err
	}
	var out []Record
	for _, id := range s.b.order[zone] {
		r := s.b.records[zone][id]
		if r.Type != q.Type || !matches(r, q.Filters) {
			continue
		}
		out = append(out, cloneRecord(r))
	}
	for _, key := range q.Sort {
		key := key
		sort.SliceStable(out, func(i, j int) bool {
			a, _ := fieldInt64(out[i].Fields, key.Field)
			b, _ := fieldInt64(out[j].Fields, key.Field)
			if key.Descending {
				return a > b
			}
			return a < b
		})
	}
	return out, nil
}

func (s *memStore) CreateShare(ctx context.Context, zone, rootRecordID string) (*Share, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if err := s.b.begin(ctx, "share"); err != nil {
		return nil, err
	}
	if _, ok := s.b.records[zone][rootRecordID]; !ok {
		return nil, ErrNotFound
	}
	for _, sh := range s.b.shares {
		if sh.Zone == zone {
			out := sh
			return &out, nil
		}
	}
	sh := Share{Locator: uuid.NewString(), Zone: zone, RootRecordID: rootRecordID, OwnerID: s.user}
	s.b.shares[sh.Locator] = sh
	return &sh, nil
}

func (s *memStore) ResolveShare(ctx context.Context, locator string) (*Share, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if err := s.b.begin(ctx, "resolve"); err != nil {
		return nil, err
	}
	sh, ok := s.b.shares[locator]
	if !ok {
		return nil, ErrNotFound
	}
	return &sh, nil
}

func (s *memStore) AcceptShare(ctx context.Context, locator string) (*Share, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if err := s.b.begin(ctx, "accept"); err != nil {
		return nil, err
	}
	sh, ok := s.b.shares[locator]
	if !ok {
		return nil, ErrNotFound
	}
	return &sh, nil
}

func (s *memStore) SaveSubscription(ctx context.Context, zone, id, recordType string) error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if err := s.b.begin(ctx, "subscribe"); err != nil {
		return err
	}
	key := s.user + "/" + id
	if _, ok := s.b.subs[key]; ok {
		return ErrConflict
	}
	s.b.subs[key] = recordType
	return nil
}

func matches(r Record, filters []Filter) bool {
	for _, f := range filters {
		have, ok := fieldInt64(r.Fields, f.Field)
		if !ok {
			return false
		}
		want, ok := fieldInt64(map[string]any{"v": f.Value}, "v")
		if !ok {
			panic(fmt.Sprintf("unsupported filter value %T", f.Value))
		}
		switch f.Op {
		case ">":
			if !(have > want) {
				return false
			}
		case "=", "==":
			if have != want {
				return false
			}
		default:
			panic("unsupported filter op " + f.Op)
		}
	}
	return true
}

// cloneRecord round-trips fields through JSON so numbers look the way the
// HTTP client decodes them.
func cloneRecord(r Record) Record {
	out := r
	if r.Fields == nil {
		return out
	}
	b, _ := json.Marshal(r.Fields)
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var fields map[string]any
	_ = dec.Decode(&fields)
	out.Fields = fields
	return out
}
