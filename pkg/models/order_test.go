package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestItemStatusCanTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    ItemStatus
		to      ItemStatus
		allowed bool
	}{
		{"forward", ItemStatusCreated, ItemStatusAllocated, true},
		{"same rank", ItemStatusConfirmed, ItemStatusConfirmed, true},
		{"backward", ItemStatusConfirmed, ItemStatusAllocated, false},
		{"cancel from anywhere", ItemStatusProducing, ItemStatusCancelled, true},
		{"cancelled is terminal", ItemStatusCancelled, ItemStatusCreated, false},
		{"cancelled cannot re-cancel", ItemStatusCancelled, ItemStatusCancelled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestNextItemNo(t *testing.T) {
	tests := []struct {
		current int
		want    string
	}{
		{0, "10"},
		{10, "20"},
		{30, "40"},
		{35, "40"}, // next multiple of 10 above a non-aligned number
		{40, "50"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NextItemNo(tt.current))
	}
}

func TestMaxItemNo(t *testing.T) {
	lines := []OrderLine{
		{ItemNo: "10"},
		{ItemNo: "30"},
		{ItemNo: "20"},
	}
	assert.Equal(t, 30, MaxItemNo(lines))
	assert.Equal(t, 0, MaxItemNo(nil))
}

func TestProductGroupNeedsPlanner(t *testing.T) {
	assert.True(t, ProductGroupNeedsPlanner("packaging"))
	assert.True(t, ProductGroupNeedsPlanner("Fibre"))
	assert.False(t, ProductGroupNeedsPlanner("services"))
	assert.False(t, ProductGroupNeedsPlanner(""))
}

func TestChangeSetClone(t *testing.T) {
	cs := NewChangeSet("SO-1")
	cs.Lines["10"] = LineChange{
		ItemNo:        "10",
		Op:            ChangeOpUpdate,
		Quantity:      5,
		ChangedFields: NewFieldSet(FieldQuantity),
	}
	cs.Header.ChangedFields.Mark(FieldPONo)

	clone := cs.Clone()
	clone.Lines["10"] = LineChange{ItemNo: "10", Op: ChangeOpDelete}
	clone.Header.ChangedFields.Mark(FieldShipDate)

	assert.Equal(t, ChangeOpUpdate, cs.Lines["10"].Op, "clone mutation must not leak into the original")
	assert.False(t, cs.Header.ChangedFields.Changed(FieldShipDate))
}
