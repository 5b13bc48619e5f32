// Package models defines the core data structures shared by the station
// client and the inventory backend: boxes, item stocks, users and item logs.
package models

import (
	"errors"
	"time"
)

var (
	// ErrEmptyName is returned when a user or box name is blank after normalization.
	ErrEmptyName = errors.New("name cannot be empty")
	// ErrNotFound is returned by the backend stores for missing rows.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique name is already taken.
	ErrConflict = errors.New("already exists")
	// ErrInvalid marks a request the backend refuses to apply.
	ErrInvalid = errors.New("invalid request")
)

// ItemStock is the quantity of one item held in a box.
type ItemStock struct {
	// ItemID is the item master identifier.
	ItemID int `json:"item_id"`
	// Name is the human-readable item name.
	Name string `json:"item_name"`
	// Description is optional free text kept by the item master.
	Description string `json:"item_description,omitempty"`
	// Quantity is the number of pieces in the box, never negative.
	Quantity int `json:"quantity"`
}

// Container is a scanned box: an immutable snapshot fetched by UID.
type Container struct {
	// ID is the backend row id, zero for placeholders.
	ID int `json:"id,omitempty"`
	// UID is the normalized tag identifier.
	UID UID `json:"uid"`
	// Name is the box name, empty for unknown tags.
	Name string `json:"box_name"`
	// Items lists the stock held in the box.
	Items []ItemStock `json:"items"`
}

// Placeholder returns the empty container used for tags the backend does not know.
func Placeholder(uid UID) Container {
	return Container{UID: uid, Items: []ItemStock{}}
}

// Clone returns a deep copy so callers cannot mutate a shared snapshot.
func (c Container) Clone() Container {
	out := c
	out.Items = append([]ItemStock(nil), c.Items...)
	if out.Items == nil {
		out.Items = []ItemStock{}
	}
	return out
}

// SessionItemEntry is the quantity of an item a user holds during a session.
type SessionItemEntry struct {
	ItemID   int    `json:"item_id"`
	Name     string `json:"item_name"`
	Quantity int    `json:"quantity"`
}

// UserIdentity identifies the person a session belongs to.
type UserIdentity struct {
	// UserID is the backend user id.
	UserID int `json:"id"`
	// Name is the normalized user name.
	Name string `json:"name"`
}

// ItemChange is a single quantity movement inside a log entry.
type ItemChange struct {
	ItemID   int `json:"item_id"`
	Quantity int `json:"quantity"`
}

// InventoryDelta is the minimal add/return difference between two item maps.
type InventoryDelta struct {
	ItemsAdded    []ItemChange `json:"items_added"`
	ItemsReturned []ItemChange `json:"items_returned"`
}

// Empty reports whether the delta carries no movement at all.
func (d InventoryDelta) Empty() bool {
	return len(d.ItemsAdded) == 0 && len(d.ItemsReturned) == 0
}

// LogEntry is the transaction submitted once at the end of a session.
type LogEntry struct {
	// SubmissionID deduplicates retries of the same transaction.
	SubmissionID string `json:"submission_id"`
	// UserID is the user the movement is booked against.
	UserID int `json:"user_id"`
	// ItemsAdded are the items taken during the session.
	ItemsAdded []ItemChange `json:"items_added"`
	// ItemsReturned are the items given back during the session.
	ItemsReturned []ItemChange `json:"items_returned"`
	// Comment is an optional operator note.
	Comment string `json:"comment"`
}

// ItemMaster is the catalogue row for an item.
type ItemMaster struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	TotalQuantity int    `json:"total_quantity"`
}

// LogRecord is a LogEntry as stored by the backend.
type LogRecord struct {
	LogEntry
	ID int `json:"id"`
	// Station is the CN of the client certificate that submitted the entry.
	Station   string    `json:"station,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
