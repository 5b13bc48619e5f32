package session

import (
	"errors"
	"fmt"

	"github.com/rfidvision/rfidlog/internal/models"
)

var (
	// ErrNoUser is returned by item operations before a user is set.
	ErrNoUser = errors.New("no user identified")
	// ErrUnknownItem is returned for items neither held by the user nor
	// stocked in an in-session box.
	ErrUnknownItem = errors.New("item not available in this session")
)

// SetUser identifies the session's user and seeds the item map with what
// the user already holds. Those quantities are the "before" snapshot.
func (s *Session) SetUser(user models.UserIdentity, held []models.SessionItemEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := user
	s.user = &u
	s.held = make(map[int]int, len(held))
	s.heldNames = make(map[int]string, len(held))
	s.items = make(map[int]*models.SessionItemEntry, len(held))
	s.itemOrder = s.itemOrder[:0]
	for _, e := range held {
		if e.Quantity <= 0 {
			continue
		}
		s.held[e.ItemID] += e.Quantity
		s.heldNames[e.ItemID] = e.Name
		if cur, ok := s.items[e.ItemID]; ok {
			cur.Quantity += e.Quantity
			continue
		}
		entry := e
		s.items[e.ItemID] = &entry
		s.itemOrder = append(s.itemOrder, e.ItemID)
	}
}

// User returns the identified user.
func (s *Session) User() (models.UserIdentity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return models.UserIdentity{}, false
	}
	return *s.user, true
}

// ceiling is the most a user may hold of an item in this session: what the
// in-session boxes stock, or what the user already held, whichever is more.
// Must hold mu.
func (s *Session) ceiling(itemID int) int {
	stocked := 0
	for _, b := range s.inSession {
		for _, it := range b.Items {
			if it.ItemID == itemID {
				stocked += it.Quantity
			}
		}
	}
	if h := s.held[itemID]; h > stocked {
		return h
	}
	return stocked
}

// itemName looks up a display name in the in-session boxes, then in what
// the user held at start. Must hold mu.
func (s *Session) itemName(itemID int) (string, bool) {
	for _, b := range s.inSession {
		for _, it := range b.Items {
			if it.ItemID == itemID {
				return it.Name, true
			}
		}
	}
	if s.held[itemID] > 0 {
		return s.heldNames[itemID], true
	}
	return "", false
}

// AddItem puts one piece of an item on the user's list, or increments it
// when already listed.
func (s *Session) AddItem(itemID int) (models.SessionItemEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return models.SessionItemEntry{}, ErrNoUser
	}

	if e, ok := s.items[itemID]; ok {
		return s.adjust(e, 1), nil
	}
	name, ok := s.itemName(itemID)
	if !ok {
		return models.SessionItemEntry{}, fmt.Errorf("%w: %d", ErrUnknownItem, itemID)
	}
	e := &models.SessionItemEntry{ItemID: itemID, Name: name}
	s.items[itemID] = e
	s.itemOrder = append(s.itemOrder, itemID)
	return s.adjust(e, 1), nil
}

// Increment raises an item by one, up to its ceiling.
func (s *Session) Increment(itemID int) (models.SessionItemEntry, error) {
	return s.step(itemID, 1)
}

// Decrement lowers an item by one, not below zero.
func (s *Session) Decrement(itemID int) (models.SessionItemEntry, error) {
	return s.step(itemID, -1)
}

func (s *Session) step(itemID, by int) (models.SessionItemEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return models.SessionItemEntry{}, ErrNoUser
	}
	e, ok := s.items[itemID]
	if !ok {
		return models.SessionItemEntry{}, fmt.Errorf("%w: %d", ErrUnknownItem, itemID)
	}
	return s.adjust(e, by), nil
}

// adjust applies by to e and clamps it to [0, ceiling]. Must hold mu.
func (s *Session) adjust(e *models.SessionItemEntry, by int) models.SessionItemEntry {
	e.Quantity = clamp(e.Quantity+by, 0, s.ceiling(e.ItemID))
	return *e
}

// DropItem removes an item from the user's list entirely.
func (s *Session) DropItem(itemID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[itemID]; !ok {
		return false
	}
	delete(s.items, itemID)
	for i, id := range s.itemOrder {
		if id == itemID {
			s.itemOrder = append(s.itemOrder[:i], s.itemOrder[i+1:]...)
			break
		}
	}
	return true
}

// reclamp re-applies ceilings after a box left the session. Must hold mu.
func (s *Session) reclamp() {
	for _, e := range s.items {
		e.Quantity = clamp(e.Quantity, 0, s.ceiling(e.ItemID))
	}
}

// Items returns the user's list in the order items were first added.
func (s *Session) Items() []models.SessionItemEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.SessionItemEntry, 0, len(s.itemOrder))
	for _, id := range s.itemOrder {
		out = append(out, *s.items[id])
	}
	return out
}

// Snapshot returns the quantities held at session start and now, keyed by
// item ID. Zero quantities are omitted.
func (s *Session) Snapshot() (before, after map[int]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before = make(map[int]int, len(s.held))
	for id, q := range s.held {
		before[id] = q
	}
	after = make(map[int]int, len(s.items))
	for id, e := range s.items {
		if e.Quantity > 0 {
			after[id] = e.Quantity
		}
	}
	return before, after
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
