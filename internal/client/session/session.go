// Package session holds the state of one station session: which tags were
// seen, which boxes are in use, which are still available and how many of
// each item the user is carrying. All of it sits behind a single mutex that
// is never held across a network call.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rfidvision/rfidlog/internal/client/api"
	"github.com/rfidvision/rfidlog/internal/logger"
	"github.com/rfidvision/rfidlog/internal/models"
)

var (
	// ErrClosed is returned when starting or extending a closed session.
	ErrClosed = errors.New("session closed")
	// ErrNotStarted is returned by Go before Start.
	ErrNotStarted = errors.New("session not started")
)

// Boxes resolves tags to containers.
type Boxes interface {
	ContainerByUID(ctx context.Context, uid models.UID) (models.Container, error)
	Containers(ctx context.Context) ([]models.Container, error)
}

// Reader is the reader lifecycle the session drives.
type Reader interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context)
	Ready() bool
	ScanContinuous(ctx context.Context) (models.UID, bool, error)
}

// claim marks a UID as taken while its container is being fetched. A
// removal replaces or deletes the claim, which invalidates the fetch.
type claim struct{}

type knownBox struct {
	order int
	box   models.Container
}

// Session is the single owner of session-scoped state.
type Session struct {
	ID string

	boxes Boxes
	log   *zap.Logger

	mu        sync.Mutex
	seen      map[models.UID]*claim
	inSession []models.Container
	known     map[models.UID]knownBox
	nextOrder int
	user      *models.UserIdentity
	held      map[int]int
	heldNames map[int]string
	items     map[int]*models.SessionItemEntry
	itemOrder []int

	lifeMu      sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	closed      bool
	releaseOnce sync.Once
	reader      Reader
}

// New returns an empty session.
func New(boxes Boxes, log *zap.Logger) *Session {
	s := &Session{
		ID:    uuid.NewString(),
		boxes: boxes,
		seen:  make(map[models.UID]*claim),
		known: make(map[models.UID]knownBox),
		held:  make(map[int]int),
		items: make(map[int]*models.SessionItemEntry),
	}
	s.log = logger.OrNop(log).With(zap.String("session", s.ID))
	return s
}

// LoadAvailable fetches every known box once; boxes already in the session
// keep their place there. Calling it again only adds boxes not yet known.
func (s *Session) LoadAvailable(ctx context.Context) error {
	boxes, err := s.boxes.Containers(ctx)
	if err != nil {
		return fmt.Errorf("load boxes: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range boxes {
		uid := models.NormalizeUID(string(b.UID))
		if _, ok := s.known[uid]; ok {
			continue
		}
		b.UID = uid
		s.remember(b)
	}
	return nil
}

// remember records b and its original position. Must hold mu.
func (s *Session) remember(b models.Container) {
	k, ok := s.known[b.UID]
	if !ok {
		k.order = s.nextOrder
		s.nextOrder++
	}
	k.box = b.Clone()
	s.known[b.UID] = k
}

// Offer handles a tag reported by the reader: unseen UIDs are claimed, the
// container is fetched and added to the session. added is false for
// duplicates and for fetches overtaken by a removal.
func (s *Session) Offer(ctx context.Context, uid models.UID) (box models.Container, added bool, err error) {
	uid = models.NormalizeUID(string(uid))
	if uid == "" {
		return models.Container{}, false, nil
	}

	s.mu.Lock()
	if _, dup := s.seen[uid]; dup {
		s.mu.Unlock()
		return models.Container{}, false, nil
	}
	c := &claim{}
	s.seen[uid] = c
	s.mu.Unlock()

	return s.resolve(ctx, uid, c)
}

// resolve fetches the container for a claimed uid and commits it.
func (s *Session) resolve(ctx context.Context, uid models.UID, c *claim) (models.Container, bool, error) {
	box, err := s.boxes.ContainerByUID(ctx, uid)
	switch {
	case errors.Is(err, api.ErrNotFound):
		s.log.Info("unknown tag", zap.String("uid", uid.String()))
		box = models.Placeholder(uid)
	case err != nil:
		s.mu.Lock()
		if s.seen[uid] == c {
			delete(s.seen, uid)
		}
		s.mu.Unlock()
		return models.Container{}, false, fmt.Errorf("fetch box %s: %w", uid, err)
	}
	box.UID = uid

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[uid] != c {
		s.log.Debug("dropping fetch for removed tag", zap.String("uid", uid.String()))
		return models.Container{}, false, nil
	}
	s.remember(box)
	s.inSession = append(s.inSession, box.Clone())
	return box.Clone(), true, nil
}

// SelectAvailable moves a box into the session by hand. A box from the
// available list moves as is; an unknown UID is fetched like a scanned tag.
// Selecting a box already in the session is a no-op.
func (s *Session) SelectAvailable(ctx context.Context, uid models.UID) (models.Container, error) {
	uid = models.NormalizeUID(string(uid))
	if uid == "" {
		return models.Container{}, models.ErrEmptyName
	}

	s.mu.Lock()
	if _, dup := s.seen[uid]; dup {
		box, _ := s.findInSession(uid)
		s.mu.Unlock()
		return box, nil
	}
	c := &claim{}
	s.seen[uid] = c
	if k, ok := s.known[uid]; ok {
		s.inSession = append(s.inSession, k.box.Clone())
		s.mu.Unlock()
		return k.box.Clone(), nil
	}
	s.mu.Unlock()

	box, _, err := s.resolve(ctx, uid, c)
	return box, err
}

// RemoveFromSession returns a box to the available list at its original
// position and forgets its UID so it can be scanned again. It reports
// whether anything was removed; an in-flight fetch for uid is cancelled.
func (s *Session) RemoveFromSession(uid models.UID) bool {
	uid = models.NormalizeUID(string(uid))

	s.mu.Lock()
	defer s.mu.Unlock()

	_, claimed := s.seen[uid]
	delete(s.seen, uid)

	_, idx := s.findInSession(uid)
	if idx < 0 {
		return claimed
	}
	s.inSession = append(s.inSession[:idx], s.inSession[idx+1:]...)
	s.reclamp()
	return true
}

// findInSession returns the in-session box for uid and its index, or -1.
// Must hold mu.
func (s *Session) findInSession(uid models.UID) (models.Container, int) {
	for i, b := range s.inSession {
		if b.UID == uid {
			return b.Clone(), i
		}
	}
	return models.Container{}, -1
}

// InSession returns the boxes in use, in the order they were added.
func (s *Session) InSession() []models.Container {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Container, 0, len(s.inSession))
	for _, b := range s.inSession {
		out = append(out, b.Clone())
	}
	return out
}

// Available returns the known boxes not in the session, in their original
// order.
func (s *Session) Available() []models.Container {
	s.mu.Lock()
	defer s.mu.Unlock()

	used := make(map[models.UID]bool, len(s.seen)+len(s.inSession))
	for uid := range s.seen {
		used[uid] = true
	}
	for _, b := range s.inSession {
		used[b.UID] = true
	}

	var ks []knownBox
	for uid, k := range s.known {
		if !used[uid] {
			ks = append(ks, k)
		}
	}
	sort.Slice(ks, func(i, j int) bool { return ks[i].order < ks[j].order })

	out := make([]models.Container, 0, len(ks))
	for _, k := range ks {
		out = append(out, k.box.Clone())
	}
	return out
}

// Seen reports whether uid is claimed by the session.
func (s *Session) Seen(uid models.UID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[models.NormalizeUID(string(uid))]
	return ok
}
