package cloudsync

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
)

// makeCode returns length random decimal digits, at least one. Codes are
// not checked for collisions.
func makeCode(length int) string {
	if length < 1 {
		length = 1
	}
	var sb strings.Builder
	sb.Grow(length)
	for i := 0; i < length; i++ {
		sb.WriteByte(byte('0' + rand.IntN(10)))
	}
	return sb.String()
}

func trimCode(code string) string {
	return strings.TrimSpace(code)
}

// host creates the zone, root record and share for code and publishes the
// code to share mapping. It returns the zone to sync.
func (m *Manager) host(ctx context.Context, code string) (string, error) {
	if err := m.store.AccountStatus(ctx); err != nil {
		return "", err
	}
	zone := ZoneName(code)
	if err := m.store.CreateZone(ctx, zone); err != nil {
		return "", err
	}
	root := Record{
		Zone: zone,
		ID:   RootRecordID,
		Type: TypeSharedList,
		Fields: map[string]any{
			FieldCode:      code,
			FieldCreatedAt: m.nowMillis(),
		},
	}
	if _, err := m.store.Save(ctx, root); err != nil {
		return "", err
	}
	share, err := m.store.CreateShare(ctx, zone, RootRecordID)
	if err != nil {
		return "", err
	}
	if share == nil || strings.TrimSpace(share.Locator) == "" {
		return "", errors.New("share has no locator")
	}
	mapping := Record{
		Zone:   PublicZone,
		ID:     code,
		Type:   TypeShareCode,
		Fields: map[string]any{FieldLocator: share.Locator},
	}
	if _, err := m.store.Save(ctx, mapping); err != nil {
		return "", err
	}
	return zone, nil
}

// join resolves code to a share, accepts it and returns the shared zone.
func (m *Manager) join(ctx context.Context, code string) (string, error) {
	if err := m.store.AccountStatus(ctx); err != nil {
		return "", err
	}
	rec, err := m.store.Fetch(ctx, PublicZone, code)
	if errors.Is(err, ErrNotFound) {
		return "", ErrInvalidCode
	}
	if err != nil {
		return "", err
	}
	locator, ok := fieldString(rec.Fields, FieldLocator)
	if rec.Type != TypeShareCode || !ok || strings.TrimSpace(locator) == "" {
		return "", ErrInvalidCode
	}
	share, err := m.store.ResolveShare(ctx, locator)
	if errors.Is(err, ErrNotFound) {
		return "", ErrInvalidCode
	}
	if err != nil {
		return "", err
	}
	accepted, err := m.store.AcceptShare(ctx, locator)
	if err != nil {
		return "", err
	}
	if accepted != nil && accepted.Zone != "" {
		return accepted.Zone, nil
	}
	return share.Zone, nil
}
