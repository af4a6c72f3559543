package repos

import (
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Bache94/ListeByBache/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("already exists")
	ErrBadQuery = errors.New("bad query")
)

var fieldNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var filterOps = map[string]string{
	"=":  "=",
	"==": "=",
	">":  ">",
	">=": ">=",
	"<":  "<",
	"<=": "<=",
}

type RecordRepo struct {
	db *sql.DB
}

func NewRecordRepo(db *sql.DB) *RecordRepo {
	return &RecordRepo{db: db}
}

func (r *RecordRepo) DB() *sql.DB {
	return r.db
}

func (r *RecordRepo) WithTx(fn func(tx *sql.Tx) error) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (r *RecordRepo) GetZone(name string) (*models.Zone, error) {
	row := r.db.QueryRow(`SELECT name, owner_id, version, created_at FROM zones WHERE name = ?`, name)
	return scanZone(row)
}

func (r *RecordRepo) GetZoneTx(tx *sql.Tx, name string) (*models.Zone, error) {
	row := tx.QueryRow(`SELECT name, owner_id, version, created_at FROM zones WHERE name = ?`, name)
	return scanZone(row)
}

func (r *RecordRepo) InsertZoneTx(tx *sql.Tx, z *models.Zone) error {
	_, err := tx.Exec(`INSERT INTO zones (name, owner_id, version, created_at) VALUES (?, ?, ?, ?)`,
		z.Name, z.OwnerID, z.Version, z.CreatedAt.UnixMilli())
	return err
}

// NextVersionTx bumps the zone change counter and returns the new value.
func (r *RecordRepo) NextVersionTx(tx *sql.Tx, zone string) (int64, error) {
	res, err := tx.Exec(`UPDATE zones SET version = version + 1 WHERE name = ?`, zone)
	if err != nil {
		return 0, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, ErrNotFound
	}
	var v int64
	err = tx.QueryRow(`SELECT version FROM zones WHERE name = ?`, zone).Scan(&v)
	return v, err
}

func (r *RecordRepo) IsParticipant(zone, userID string) (bool, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM participants WHERE zone = ? AND user_id = ?`, zone, userID).Scan(&n)
	return n > 0, err
}

func (r *RecordRepo) AddParticipant(zone, userID string) error {
	_, err := r.db.Exec(`
		INSERT INTO participants (zone, user_id, accepted_at) VALUES (?, ?, ?)
		ON CONFLICT(zone, user_id) DO NOTHING
	`, zone, userID, time.Now().UTC().UnixMilli())
	return err
}

func (r *RecordRepo) GetRecord(zone, id string) (*models.Record, error) {
	row := r.db.QueryRow(`
		SELECT zone, id, record_type, fields, version, created_by, modified_by, created_at, updated_at
		FROM records WHERE zone = ? AND id = ?
	`, zone, id)
	return scanRecord(row)
}

func (r *RecordRepo) GetRecordTx(tx *sql.Tx, zone, id string) (*models.Record, error) {
	row := tx.QueryRow(`
		SELECT zone, id, record_type, fields, version, created_by, modified_by, created_at, updated_at
		FROM records WHERE zone = ? AND id = ?
	`, zone, id)
	return scanRecord(row)
}

func (r *RecordRepo) UpsertRecordTx(tx *sql.Tx, rec *models.Record) error {
	_, err := tx.Exec(`
		INSERT INTO records (zone, id, record_type, fields, version, created_by, modified_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(zone, id) DO UPDATE SET
			record_type = excluded.record_type,
			fields = excluded.fields,
			version = excluded.version,
			modified_by = excluded.modified_by,
			updated_at = excluded.updated_at
	`, rec.Zone, rec.ID, rec.Type, string(rec.Fields), rec.Version, rec.CreatedBy, rec.ModifiedBy,
		rec.CreatedAt.UnixMilli(), rec.UpdatedAt.UnixMilli())
	return err
}

func (r *RecordRepo) DeleteRecordTx(tx *sql.Tx, zone, id string) (bool, error) {
	res, err := tx.Exec(`DELETE FROM records WHERE zone = ? AND id = ?`, zone, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// QueryRecords filters on top-level JSON fields. Without sort keys records
// come back in insertion order.
func (r *RecordRepo) QueryRecords(zone string, q models.Query) ([]models.Record, error) {
	var sb strings.Builder
	args := []any{zone, q.Type}
	sb.WriteString(`
		SELECT zone, id, record_type, fields, version, created_by, modified_by, created_at, updated_at
		FROM records WHERE zone = ? AND record_type = ?`)
	for _, f := range q.Filters {
		if !fieldNameRe.MatchString(f.Field) {
			return nil, fmt.Errorf("%w: field %q", ErrBadQuery, f.Field)
		}
		op, ok := filterOps[strings.TrimSpace(f.Op)]
		if !ok {
			return nil, fmt.Errorf("%w: operator %q", ErrBadQuery, f.Op)
		}
		sb.WriteString(" AND json_extract(fields, ?) " + op + " ?")
		args = append(args, "$."+f.Field, f.Value)
	}
	sb.WriteString(" ORDER BY ")
	for _, s := range q.Sort {
		if !fieldNameRe.MatchString(s.Field) {
			return nil, fmt.Errorf("%w: sort field %q", ErrBadQuery, s.Field)
		}
		dir := "ASC"
		if s.Descending {
			dir = "DESC"
		}
		sb.WriteString("json_extract(fields, ?) " + dir + ", ")
		args = append(args, "$."+s.Field)
	}
	sb.WriteString("seq ASC")

	rows, err := r.db.Query(sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (r *RecordRepo) InsertShare(s *models.Share) error {
	_, err := r.db.Exec(`
		INSERT INTO shares (locator, zone, root_record_id, owner_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, s.Locator, s.Zone, s.RootRecordID, s.OwnerID, s.CreatedAt.UnixMilli())
	return err
}

func (r *RecordRepo) GetShare(locator string) (*models.Share, error) {
	row := r.db.QueryRow(`SELECT locator, zone, root_record_id, owner_id, created_at FROM shares WHERE locator = ?`, locator)
	return scanShare(row)
}

func (r *RecordRepo) GetShareByZone(zone string) (*models.Share, error) {
	row := r.db.QueryRow(`SELECT locator, zone, root_record_id, owner_id, created_at FROM shares WHERE zone = ?`, zone)
	return scanShare(row)
}

func (r *RecordRepo) InsertSubscription(s *models.Subscription) error {
	res, err := r.db.Exec(`
		INSERT INTO subscriptions (user_id, id, zone, record_type, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, id) DO NOTHING
	`, s.UserID, s.ID, s.Zone, s.RecordType, s.CreatedAt.UnixMilli())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrExists
	}
	return nil
}

func (r *RecordRepo) DeleteSubscription(userID, id string) error {
	res, err := r.db.Exec(`DELETE FROM subscriptions WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SubscribedUsers returns the users holding a subscription for recordType in
// zone.
func (r *RecordRepo) SubscribedUsers(zone, recordType string) (map[string]bool, error) {
	rows, err := r.db.Query(`SELECT DISTINCT user_id FROM subscriptions WHERE zone = ? AND record_type = ?`, zone, recordType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	users := map[string]bool{}
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		users[u] = true
	}
	return users, rows.Err()
}

type scanner interface{ Scan(dest ...any) error }

func scanZone(row scanner) (*models.Zone, error) {
	var z models.Zone
	var created int64
	if err := row.Scan(&z.Name, &z.OwnerID, &z.Version, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	z.CreatedAt = time.UnixMilli(created).UTC()
	return &z, nil
}

func scanRecord(row scanner) (*models.Record, error) {
	var rec models.Record
	var fields string
	var created, updated int64
	if err := row.Scan(&rec.Zone, &rec.ID, &rec.Type, &fields, &rec.Version, &rec.CreatedBy, &rec.ModifiedBy, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rec.Fields = []byte(fields)
	rec.CreatedAt = time.UnixMilli(created).UTC()
	rec.UpdatedAt = time.UnixMilli(updated).UTC()
	return &rec, nil
}

func scanShare(row scanner) (*models.Share, error) {
	var s models.Share
	var created int64
	if err := row.Scan(&s.Locator, &s.Zone, &s.RootRecordID, &s.OwnerID, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.CreatedAt = time.UnixMilli(created).UTC()
	return &s, nil
}
