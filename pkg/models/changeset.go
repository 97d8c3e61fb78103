package models

import (
	"sort"
	"time"
)

// ChangeOp is the per-line operation of a change-set entry.
type ChangeOp string

const (
	ChangeOpInsert ChangeOp = "insert"
	ChangeOpUpdate ChangeOp = "update"
	ChangeOpDelete ChangeOp = "delete"
)

// Field names tracked by the changed-fields sets. These become the
// field-level "changed" indicators of the ERP update payload.
const (
	FieldQuantity           = "quantity"
	FieldRequestDate        = "request_date"
	FieldPlant              = "plant"
	FieldMaterial           = "material"
	FieldUnlimitedTolerance = "unlimited_tolerance"
	FieldOverTolerance      = "over_tolerance"
	FieldUnderTolerance     = "under_tolerance"
	FieldPONo               = "po_no"
	FieldPaymentTerm        = "payment_term"
	FieldShipDate           = "ship_date"
)

// FieldSet is the set of fields whose requested value differs from the
// stored value.
type FieldSet map[string]bool

func NewFieldSet(fields ...string) FieldSet {
	fs := FieldSet{}
	for _, f := range fields {
		fs[f] = true
	}
	return fs
}

func (fs FieldSet) Mark(field string) {
	fs[field] = true
}

func (fs FieldSet) Changed(field string) bool {
	return fs[field]
}

func (fs FieldSet) Empty() bool {
	return len(fs) == 0
}

// Clone returns an independent copy.
func (fs FieldSet) Clone() FieldSet {
	out := make(FieldSet, len(fs))
	for k, v := range fs {
		out[k] = v
	}
	return out
}

// LineChange is one change-set entry, keyed by item number.
type LineChange struct {
	ItemNo         string
	Op             ChangeOp
	MaterialNo     string
	ContractItemNo string
	Quantity       float64
	RequestDate    *time.Time
	Plant          string

	UnlimitedTolerance     bool
	OverDeliveryTolerance  float64
	UnderDeliveryTolerance float64

	// ChangedFields is field-by-field diff output for updates. Inserts and
	// deletes leave it empty.
	ChangedFields FieldSet

	// ParentItemNo is set on entries synthesized from a planner line split.
	ParentItemNo string

	// Planner annotations, written back by the inquiry response mapping.
	PlannerHeaderCode string
	ConfirmedQuantity *float64
	OnHandStock       bool
	DispatchDate      *time.Time
}

// HeaderChange is the header-level field diff of a requested edit.
type HeaderChange struct {
	PONo        *string
	PaymentTerm *string
	ShipDate    *time.Time

	ChangedFields FieldSet
}

func (h HeaderChange) Empty() bool {
	return h.ChangedFields.Empty()
}

// ChangeSet is the normalized output of diffing a requested edit against the
// persisted order. It is saga-scoped and immutable after construction; the
// planner response mapping produces a new ChangeSet rather than mutating in
// place.
type ChangeSet struct {
	SoNo   string
	Header HeaderChange
	Lines  map[string]LineChange
}

func NewChangeSet(soNo string) ChangeSet {
	return ChangeSet{
		SoNo:   soNo,
		Header: HeaderChange{ChangedFields: FieldSet{}},
		Lines:  map[string]LineChange{},
	}
}

// IsEmpty reports whether the edit changes nothing.
func (cs ChangeSet) IsEmpty() bool {
	return len(cs.Lines) == 0 && cs.Header.Empty()
}

// HasLineEdits reports whether any per-line operation is present.
func (cs ChangeSet) HasLineEdits() bool {
	return len(cs.Lines) > 0
}

// SortedItemNos returns the item numbers in ascending numeric order for
// deterministic iteration.
func (cs ChangeSet) SortedItemNos() []string {
	itemNos := make([]string, 0, len(cs.Lines))
	for itemNo := range cs.Lines {
		itemNos = append(itemNos, itemNo)
	}
	sort.Slice(itemNos, func(i, j int) bool {
		return ItemNoValue(itemNos[i]) < ItemNoValue(itemNos[j])
	})
	return itemNos
}

// Clone returns a deep copy used as the base of a rebuilt ChangeSet.
func (cs ChangeSet) Clone() ChangeSet {
	out := NewChangeSet(cs.SoNo)
	out.Header = cs.Header
	out.Header.ChangedFields = cs.Header.ChangedFields.Clone()
	for itemNo, line := range cs.Lines {
		line.ChangedFields = line.ChangedFields.Clone()
		out.Lines[itemNo] = line
	}
	return out
}
