package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Bache94/ListeByBache/internal/logging"
	"github.com/Bache94/ListeByBache/internal/models"
	"github.com/Bache94/ListeByBache/internal/repos"
	"github.com/google/uuid"
)

var (
	ErrForbidden = errors.New("forbidden")
	ErrConflict  = errors.New("conflict")
)

// access is what a call does to a zone. The public zone only allows records
// to be fetched by id and saved, so join codes can be looked up but never
// listed or removed.
type access int

const (
	accessFetch access = iota
	accessSave
	accessList
	accessDelete
)

type RecordInput struct {
	ID     string          `json:"id"`
	Type   string          `json:"type"`
	Fields json.RawMessage `json:"fields"`
}

type ModifyInput struct {
	Save   []RecordInput `json:"save"`
	Delete []string      `json:"delete"`
}

type ModifyResult struct {
	Saved   []models.Record `json:"saved"`
	Deleted []string        `json:"deleted"`
}

type RecordService struct {
	repo   *repos.RecordRepo
	hub    *Hub
	logger *logging.Logger
}

func NewRecordService(repo *repos.RecordRepo, hub *Hub, logger *logging.Logger) *RecordService {
	if hub == nil {
		hub = NewHub()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &RecordService{repo: repo, hub: hub, logger: logger}
}

func (s *RecordService) Hub() *Hub { return s.hub }

// CreateZone is idempotent for the owner. The boolean reports whether the
// zone was created by this call.
func (s *RecordService) CreateZone(userID, name string) (*models.Zone, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false, fmt.Errorf("zone name is required")
	}
	if name == models.PublicZone {
		return nil, false, ErrConflict
	}
	var (
		out     *models.Zone
		created bool
	)
	err := s.repo.WithTx(func(tx *sql.Tx) error {
		existing, err := s.repo.GetZoneTx(tx, name)
		if err != nil && !errors.Is(err, repos.ErrNotFound) {
			return err
		}
		if existing != nil {
			if existing.OwnerID != userID {
				return ErrConflict
			}
			out = existing
			return nil
		}
		z := &models.Zone{Name: name, OwnerID: userID, CreatedAt: now()}
		if err := s.repo.InsertZoneTx(tx, z); err != nil {
			return err
		}
		out = z
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, created, nil
}

func (s *RecordService) GetRecord(userID, zone, id string) (*models.Record, error) {
	if err := s.authorize(userID, zone, accessFetch); err != nil {
		return nil, err
	}
	return s.repo.GetRecord(zone, strings.TrimSpace(id))
}

func (s *RecordService) SaveRecord(userID, zone string, in RecordInput) (*models.Record, error) {
	res, err := s.Modify(userID, zone, ModifyInput{Save: []RecordInput{in}})
	if err != nil {
		return nil, err
	}
	return &res.Saved[0], nil
}

func (s *RecordService) DeleteRecord(userID, zone, id string) error {
	if err := s.authorize(userID, zone, accessDelete); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	var rec *models.Record
	var version int64
	err := s.repo.WithTx(func(tx *sql.Tx) error {
		existing, err := s.repo.GetRecordTx(tx, zone, id)
		if err != nil {
			return err
		}
		if _, err := s.repo.DeleteRecordTx(tx, zone, id); err != nil {
			return err
		}
		version, err = s.repo.NextVersionTx(tx, zone)
		rec = existing
		return err
	})
	if err != nil {
		return err
	}
	s.publish(zone, rec.Type, id, "delete", version)
	return nil
}

// Modify saves and deletes records in one transaction. Deleting an id that
// does not exist is not an error.
func (s *RecordService) Modify(userID, zone string, in ModifyInput) (*ModifyResult, error) {
	need := accessSave
	if len(in.Delete) > 0 {
		need = accessDelete
	}
	if err := s.authorize(userID, zone, need); err != nil {
		return nil, err
	}
	for i := range in.Save {
		in.Save[i].ID = strings.TrimSpace(in.Save[i].ID)
		in.Save[i].Type = strings.TrimSpace(in.Save[i].Type)
		if in.Save[i].ID == "" {
			return nil, fmt.Errorf("record id is required")
		}
		if in.Save[i].Type == "" {
			return nil, fmt.Errorf("record type is required")
		}
	}

	out := &ModifyResult{Saved: make([]models.Record, 0, len(in.Save)), Deleted: make([]string, 0, len(in.Delete))}
	var deletedTypes []string
	err := s.repo.WithTx(func(tx *sql.Tx) error {
		ts := now()
		for _, ri := range in.Save {
			version, err := s.repo.NextVersionTx(tx, zone)
			if err != nil {
				return err
			}
			rec := &models.Record{
				Zone:       zone,
				ID:         ri.ID,
				Type:       ri.Type,
				Fields:     normalizeFields(ri.Fields),
				Version:    version,
				CreatedBy:  userID,
				ModifiedBy: userID,
				CreatedAt:  ts,
				UpdatedAt:  ts,
			}
			existing, err := s.repo.GetRecordTx(tx, zone, ri.ID)
			if err != nil && !errors.Is(err, repos.ErrNotFound) {
				return err
			}
			if existing != nil {
				rec.CreatedBy = existing.CreatedBy
				rec.CreatedAt = existing.CreatedAt
			}
			if err := s.repo.UpsertRecordTx(tx, rec); err != nil {
				return err
			}
			out.Saved = append(out.Saved, *rec)
		}
		for _, id := range in.Delete {
			id = strings.TrimSpace(id)
			existing, err := s.repo.GetRecordTx(tx, zone, id)
			if errors.Is(err, repos.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if _, err := s.repo.DeleteRecordTx(tx, zone, id); err != nil {
				return err
			}
			out.Deleted = append(out.Deleted, id)
			deletedTypes = append(deletedTypes, existing.Type)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, rec := range out.Saved {
		s.publish(zone, rec.Type, rec.ID, "save", rec.Version)
	}
	for i, id := range out.Deleted {
		s.publish(zone, deletedTypes[i], id, "delete", 0)
	}
	return out, nil
}

func (s *RecordService) Query(userID, zone string, q models.Query) ([]models.Record, error) {
	if err := s.authorize(userID, zone, accessList); err != nil {
		return nil, err
	}
	if strings.TrimSpace(q.Type) == "" {
		return nil, fmt.Errorf("record type is required")
	}
	return s.repo.QueryRecords(zone, q)
}

// CreateShare makes the zone joinable through an opaque locator. Only the
// owner may share; sharing twice returns the existing share.
func (s *RecordService) CreateShare(userID, zone, rootRecordID string) (*models.Share, error) {
	z, err := s.repo.GetZone(zone)
	if err != nil {
		return nil, err
	}
	if z.Name == models.PublicZone || z.OwnerID != userID {
		return nil, ErrForbidden
	}
	rootRecordID = strings.TrimSpace(rootRecordID)
	if _, err := s.repo.GetRecord(zone, rootRecordID); err != nil {
		return nil, err
	}
	if existing, err := s.repo.GetShareByZone(zone); err == nil {
		return existing, nil
	} else if !errors.Is(err, repos.ErrNotFound) {
		return nil, err
	}
	share := &models.Share{
		Locator:      uuid.NewString(),
		Zone:         zone,
		RootRecordID: rootRecordID,
		OwnerID:      userID,
		CreatedAt:    now(),
	}
	if err := s.repo.InsertShare(share); err != nil {
		return nil, err
	}
	return share, nil
}

func (s *RecordService) GetShare(locator string) (*models.Share, error) {
	return s.repo.GetShare(strings.TrimSpace(locator))
}

// AcceptShare grants userID access to the shared zone. Accepting again, or
// accepting one's own share, is a no-op.
func (s *RecordService) AcceptShare(userID, locator string) (*models.Share, error) {
	share, err := s.repo.GetShare(strings.TrimSpace(locator))
	if err != nil {
		return nil, err
	}
	if share.OwnerID == userID {
		return share, nil
	}
	if err := s.repo.AddParticipant(share.Zone, userID); err != nil {
		return nil, err
	}
	return share, nil
}

func (s *RecordService) SaveSubscription(userID, zone, id, recordType string) (*models.Subscription, error) {
	if err := s.authorize(userID, zone, accessList); err != nil {
		return nil, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("subscription id is required")
	}
	sub := &models.Subscription{
		ID:         id,
		UserID:     userID,
		Zone:       zone,
		RecordType: strings.TrimSpace(recordType),
		CreatedAt:  now(),
	}
	if err := s.repo.InsertSubscription(sub); err != nil {
		if errors.Is(err, repos.ErrExists) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return sub, nil
}

func (s *RecordService) DeleteSubscription(userID, id string) error {
	return s.repo.DeleteSubscription(userID, strings.TrimSpace(id))
}

// Subscribe registers an event feed listener. The caller must Unregister it
// on the returned hub.
func (s *RecordService) Subscribe(userID, zone string) (*Subscriber, error) {
	if err := s.authorize(userID, zone, accessList); err != nil {
		return nil, err
	}
	return s.hub.Register(zone, userID), nil
}

func (s *RecordService) authorize(userID, zone string, need access) error {
	zone = strings.TrimSpace(zone)
	if zone == models.PublicZone {
		if need == accessFetch || need == accessSave {
			return nil
		}
		return ErrForbidden
	}
	z, err := s.repo.GetZone(zone)
	if err != nil {
		return err
	}
	if z.OwnerID == userID {
		return nil
	}
	ok, err := s.repo.IsParticipant(zone, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

func (s *RecordService) publish(zone, recordType, id, op string, version int64) {
	users, err := s.repo.SubscribedUsers(zone, recordType)
	if err != nil {
		s.logger.Warnf("load subscriptions for zone %s: %v", zone, err)
		return
	}
	if len(users) == 0 {
		return
	}
	n := models.Notification{Zone: zone, RecordType: recordType, RecordID: id, Op: op, Version: version, At: now()}
	delivered := s.hub.Publish(n, users)
	s.logger.Debugf("notified %d listeners zone=%s type=%s id=%s op=%s", delivered, zone, recordType, id, op)
}

func normalizeFields(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("{}")
	}
	var v map[string]any
	if err := json.Unmarshal(raw, &v); err != nil || v == nil {
		return json.RawMessage("{}")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return b
}

// now is truncated to the millisecond precision the store keeps.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
