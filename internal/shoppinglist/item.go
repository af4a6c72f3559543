// Package shoppinglist holds the local shopping list a device edits and
// persists. Changes made by the user are reported to listeners; changes that
// arrive from other devices are applied silently.
package shoppinglist

import (
	"strings"

	"github.com/google/uuid"
)

const (
	DefaultCategory = "Sonstige"
	DefaultUnit     = "Stk"
)

type Item struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Category string    `json:"category"`
	Checked  bool      `json:"isChecked"`
	Quantity int       `json:"quantity"`
	Unit     string    `json:"unit"`
}

// NewItem returns an unchecked item with a fresh id. An empty category
// falls back to DefaultCategory.
func NewItem(name, category string) Item {
	category = strings.TrimSpace(category)
	if category == "" {
		category = DefaultCategory
	}
	return Item{
		ID:       uuid.New(),
		Name:     strings.TrimSpace(name),
		Category: category,
		Quantity: 1,
		Unit:     DefaultUnit,
	}
}

// Normalize fills defaults that older or foreign snapshots may lack.
func (it Item) Normalize() Item {
	if it.Category == "" {
		it.Category = DefaultCategory
	}
	if it.Quantity <= 0 {
		it.Quantity = 1
	}
	if it.Unit == "" {
		it.Unit = DefaultUnit
	}
	return it
}

type ChangeKind string

const (
	ChangeAdd          ChangeKind = "add"
	ChangeRemove       ChangeKind = "remove"
	ChangeToggle       ChangeKind = "toggle"
	ChangeClearChecked ChangeKind = "clearChecked"
	ChangeReplaceAll   ChangeKind = "replaceAll"
)

// Change describes one list mutation. Item is set for add, ID for remove and
// toggle, Items for replaceAll.
type Change struct {
	Kind  ChangeKind `json:"kind"`
	Item  *Item      `json:"item,omitempty"`
	ID    uuid.UUID  `json:"id"`
	Items []Item     `json:"items,omitempty"`
}
