package ordering

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListGroup(t *testing.T) {
	entities := []Entity{
		{ID: "c", Group: "interview", Order: 2},
		{ID: "x", Group: "offer", Order: 0},
		{ID: "a", Group: "interview", Order: 0},
		{ID: "b2", Group: "interview", Order: 1, CreatedAt: t0.Add(time.Hour)},
		{ID: "b1", Group: "interview", Order: 1, CreatedAt: t0},
	}

	got := ListGroup(entities, "interview")
	assert.Equal(t, []string{"a", "b1", "b2", "c"}, ids(got))
	assert.Empty(t, ListGroup(entities, "hired"))
}

func TestRenumber(t *testing.T) {
	list := []Entity{{ID: "a", Order: 4}, {ID: "b", Order: 9}, {ID: "c", Order: 2}}

	out := Renumber(list)
	assert.Equal(t, []int{0, 1, 2}, []int{out[0].Order, out[1].Order, out[2].Order})
	assert.Equal(t, []string{"a", "b", "c"}, ids(out))
	assert.Equal(t, 4, list[0].Order, "input must not change")
	assert.True(t, IsContiguous(out))
	assert.False(t, IsContiguous(list))
	assert.True(t, IsContiguous(nil))
}

func TestMaxOrder(t *testing.T) {
	assert.Equal(t, -1, MaxOrder(nil))
	assert.Equal(t, 7, MaxOrder([]Entity{{Order: 3}, {Order: 7}, {Order: 1}}))
}

func TestChanged(t *testing.T) {
	before := group("g", "a", "b", "c")
	after := Renumber([]Entity{before[1], before[0], before[2]})

	changed := Changed(before, after)
	assert.Equal(t, []string{"b", "a"}, ids(changed))
}

func TestTransfer(t *testing.T) {
	t.Run("lands at max plus one", func(t *testing.T) {
		c5 := Entity{ID: "C5", Group: "applied", Order: 4, UpdatedAt: t0}
		offer := group("offer", "O1", "O2", "O3")

		moved := Transfer(c5, offer, "offer", now)
		assert.Equal(t, "offer", moved.Group)
		assert.Equal(t, 3, moved.Order)
		assert.Equal(t, now, moved.UpdatedAt)
	})

	t.Run("uses max not length", func(t *testing.T) {
		dest := []Entity{{ID: "x", Group: "hired", Order: 0}, {ID: "y", Group: "hired", Order: 6}}
		moved := Transfer(Entity{ID: "z", Group: "offer"}, dest, "hired", now)
		assert.Equal(t, 7, moved.Order)
	})

	t.Run("empty destination", func(t *testing.T) {
		moved := Transfer(Entity{ID: "z", Group: "offer", Order: 5}, nil, "rejected", now)
		assert.Equal(t, 0, moved.Order)
	})

	t.Run("same group is a no-op", func(t *testing.T) {
		e := Entity{ID: "z", Group: "offer", Order: 5, UpdatedAt: t0}
		assert.Equal(t, e, Transfer(e, group("offer", "a", "b"), "offer", now))
	})
}

func TestTransferWithOrigin(t *testing.T) {
	applied := group("applied", "A0", "A1", "A2", "A3", "C5")
	applied[4].Order = 4
	offer := group("offer", "O0", "O1", "O2")

	res := TransferWithOrigin(applied[1], applied, offer, "offer", now)

	assert.Equal(t, "A1", res.Moved.ID)
	assert.Equal(t, 3, res.Moved.Order)
	assert.Equal(t, []string{"A0", "A2", "A3", "C5"}, ids(res.Origin))
	assert.True(t, IsContiguous(res.Origin))
	assert.Equal(t, t0, res.Origin[0].UpdatedAt, "unchanged member keeps its timestamp")
	assert.Equal(t, now, res.Origin[1].UpdatedAt)
}

func TestTransferThenReorderMatchesPlace(t *testing.T) {
	origin := group("screening", "S0", "S1", "S2")
	dest := group("interview", "I0", "I1", "I2", "I3")
	mover := origin[1]

	moved := Transfer(mover, dest, "interview", now)
	withMover := append(append([]Entity(nil), dest...), moved)
	require.Equal(t, 4, moved.Order)

	viaReorder, err := Reorder(withMover, Move{SourceID: mover.ID, DestinationID: "I1", Position: PositionAfter}, now)
	require.NoError(t, err)

	direct := Place(dest, moved, 2, now)
	assert.Equal(t, ids(direct), ids(viaReorder))
	assert.Equal(t, []string{"I0", "I1", "S1", "I2", "I3"}, ids(direct))
}
