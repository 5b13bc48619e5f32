package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rfidvision/rfidlog/internal/models"
)

func newSessionWith(t *testing.T, boxes ...models.Container) *Session {
	t.Helper()
	byUID := make(map[models.UID]models.Container, len(boxes))
	for _, b := range boxes {
		byUID[b.UID] = b
	}
	s := New(&mockBoxes{GetFunc: func(_ context.Context, uid models.UID) (models.Container, error) {
		return byUID[uid], nil
	}}, nil)
	for _, b := range boxes {
		_, added, err := s.Offer(context.Background(), b.UID)
		require.NoError(t, err)
		require.True(t, added)
	}
	return s
}

func TestItems_RequireUser(t *testing.T) {
	s := newSessionWith(t, bin1)
	_, err := s.AddItem(1)
	assert.ErrorIs(t, err, ErrNoUser)
	_, err = s.Increment(1)
	assert.ErrorIs(t, err, ErrNoUser)
}

func TestItems_AddAndIncrement(t *testing.T) {
	s := newSessionWith(t, bin1)
	s.SetUser(models.UserIdentity{UserID: 7, Name: "alice"}, nil)

	e, err := s.AddItem(1)
	require.NoError(t, err)
	assert.Equal(t, models.SessionItemEntry{ItemID: 1, Name: "Screw", Quantity: 1}, e)

	e, err = s.Increment(1)
	require.NoError(t, err)
	assert.Equal(t, 2, e.Quantity)

	before, after := s.Snapshot()
	assert.Empty(t, before)
	assert.Equal(t, map[int]int{1: 2}, after)
}

func TestItems_ClampedToStock(t *testing.T) {
	s := newSessionWith(t, bin1)
	s.SetUser(models.UserIdentity{UserID: 7}, nil)

	_, err := s.AddItem(1)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		_, err = s.Increment(1)
		require.NoError(t, err)
	}
	assert.Equal(t, 5, s.Items()[0].Quantity)

	for i := 0; i < 10; i++ {
		_, err = s.Decrement(1)
		require.NoError(t, err)
	}
	assert.Equal(t, 0, s.Items()[0].Quantity)
}

func TestItems_CeilingSumsBoxes(t *testing.T) {
	bin2 := models.Container{UID: "b2", Name: "Bin2", Items: []models.ItemStock{{ItemID: 1, Name: "Screw", Quantity: 3}}}
	s := newSessionWith(t, bin1, bin2)
	s.SetUser(models.UserIdentity{UserID: 7}, nil)

	_, err := s.AddItem(1)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		_, _ = s.Increment(1)
	}
	assert.Equal(t, 8, s.Items()[0].Quantity)

	// a box leaving the session lowers the ceiling
	require.True(t, s.RemoveFromSession("b2"))
	assert.Equal(t, 5, s.Items()[0].Quantity)
}

func TestItems_UnknownItem(t *testing.T) {
	s := newSessionWith(t, bin1)
	s.SetUser(models.UserIdentity{UserID: 7}, nil)

	_, err := s.AddItem(99)
	assert.ErrorIs(t, err, ErrUnknownItem)
	_, err = s.Decrement(1)
	assert.ErrorIs(t, err, ErrUnknownItem, "not on the list yet")
}

func TestItems_ReturnHeldItems(t *testing.T) {
	s := newSessionWith(t)
	s.SetUser(models.UserIdentity{UserID: 7}, []models.SessionItemEntry{{ItemID: 1, Name: "Screw", Quantity: 2}})

	_, err := s.Decrement(1)
	require.NoError(t, err)
	_, err = s.Decrement(1)
	require.NoError(t, err)

	before, after := s.Snapshot()
	assert.Equal(t, map[int]int{1: 2}, before)
	assert.Empty(t, after)

	// held quantity bounds the item even with no box in the session
	_, err = s.Increment(1)
	require.NoError(t, err)
	_, err = s.Increment(1)
	require.NoError(t, err)
	e, err := s.Increment(1)
	require.NoError(t, err)
	assert.Equal(t, 2, e.Quantity)
}

func TestItems_DropAndReAdd(t *testing.T) {
	s := newSessionWith(t, bin1)
	s.SetUser(models.UserIdentity{UserID: 7}, []models.SessionItemEntry{{ItemID: 4, Name: "Glove", Quantity: 1}})

	_, err := s.AddItem(1)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 1}, itemIDs(s.Items()))

	assert.True(t, s.DropItem(4))
	assert.False(t, s.DropItem(4))
	assert.Equal(t, []int{1}, itemIDs(s.Items()))

	e, err := s.AddItem(4)
	require.NoError(t, err)
	assert.Equal(t, models.SessionItemEntry{ItemID: 4, Name: "Glove", Quantity: 1}, e)
}

func itemIDs(es []models.SessionItemEntry) []int {
	out := make([]int, 0, len(es))
	for _, e := range es {
		out = append(out, e.ItemID)
	}
	return out
}
