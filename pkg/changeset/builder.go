// Package changeset diffs a requested order edit against the persisted order
// and normalizes it into per-line insert/update/delete operations plus a
// header change record. Building is a pure function of its inputs; all
// business-rule validation happens here, before any remote call is made.
package changeset

import (
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/aster/pkg/models"
)

// ValidationError is a pre-flight business-rule violation. It blocks the
// saga before any remote side effects.
type ValidationError struct {
	Messages []models.ItemMessage
}

func (e *ValidationError) Error() string {
	if len(e.Messages) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", e.Messages[0].Message)
}

func newValidationError(itemNo, code, format string, args ...any) *ValidationError {
	return &ValidationError{Messages: []models.ItemMessage{{
		ItemNo:  itemNo,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}}}
}

// Builder builds change-sets from requested edits.
type Builder struct {
	logger ectologger.Logger
}

func NewBuilder(logger ectologger.Logger) *Builder {
	return &Builder{logger: logger}
}

// Build diffs the request against the stored order and lines.
// contractRemaining maps a contract item number to its remaining (not yet
// allocated) quantity.
func (b *Builder) Build(
	order *models.Order,
	lines []models.OrderLine,
	req models.ChangeOrderRequest,
	contractRemaining map[string]float64,
) (models.ChangeSet, error) {
	cs := models.NewChangeSet(order.SoNo)

	byItemNo := make(map[string]models.OrderLine, len(lines))
	for _, line := range lines {
		byItemNo[line.ItemNo] = line
	}

	b.diffHeader(order, req, &cs)

	nextItemNo := models.MaxItemNo(lines)

	for _, lineReq := range req.Lines {
		existing, found := byItemNo[lineReq.ItemNo]

		switch {
		case lineReq.Operation == models.LineOperationDelete:
			if !found {
				return cs, newValidationError(lineReq.ItemNo, "LINE_NOT_FOUND",
					"cannot delete item %s: no such line", lineReq.ItemNo)
			}
			cs.Lines[existing.ItemNo] = models.LineChange{
				ItemNo:     existing.ItemNo,
				Op:         models.ChangeOpDelete,
				MaterialNo: existing.MaterialNo,
			}

		case found:
			if err := b.validateSplits(existing, lineReq); err != nil {
				return cs, err
			}

			change, changed := b.diffLine(existing, lineReq)
			if changed {
				cs.Lines[existing.ItemNo] = change
			}

			for _, split := range lineReq.SplitItems {
				nextItemNo = models.ItemNoValue(models.NextItemNo(nextItemNo))
				itemNo := fmt.Sprintf("%d", nextItemNo)
				cs.Lines[itemNo] = models.LineChange{
					ItemNo:         itemNo,
					Op:             models.ChangeOpInsert,
					MaterialNo:     existing.MaterialNo,
					ContractItemNo: existing.ContractItemNo,
					Quantity:       split.Quantity,
					RequestDate:    split.RequestDate,
					Plant:          existing.Plant,
					ParentItemNo:   existing.ItemNo,
				}
			}

		default:
			// New line. Lines absent from the request are left alone;
			// deletion is always an explicit operation.
			itemNo := lineReq.ItemNo
			if itemNo == "" {
				nextItemNo = models.ItemNoValue(models.NextItemNo(nextItemNo))
				itemNo = fmt.Sprintf("%d", nextItemNo)
			} else if v := models.ItemNoValue(itemNo); v > nextItemNo {
				nextItemNo = v
			}

			insert := models.LineChange{
				ItemNo:         itemNo,
				Op:             models.ChangeOpInsert,
				MaterialNo:     lineReq.MaterialNo,
				ContractItemNo: lineReq.ContractItemNo,
				Quantity:       lineReq.Quantity,
				RequestDate:    lineReq.RequestDate,
				Plant:          lineReq.Plant,
			}
			if lineReq.UnlimitedTolerance != nil {
				insert.UnlimitedTolerance = *lineReq.UnlimitedTolerance
			}
			if lineReq.OverDeliveryTolerance != nil {
				insert.OverDeliveryTolerance = *lineReq.OverDeliveryTolerance
			}
			if lineReq.UnderDeliveryTolerance != nil {
				insert.UnderDeliveryTolerance = *lineReq.UnderDeliveryTolerance
			}
			cs.Lines[itemNo] = insert
		}
	}

	if err := b.validateContractQuantities(lines, cs, contractRemaining); err != nil {
		return cs, err
	}

	return cs, nil
}

// diffHeader marks header fields whose requested value differs from the
// stored value.
func (b *Builder) diffHeader(order *models.Order, req models.ChangeOrderRequest, cs *models.ChangeSet) {
	if req.PONo != nil && *req.PONo != order.PONo {
		cs.Header.PONo = req.PONo
		cs.Header.ChangedFields.Mark(models.FieldPONo)
	}
	if req.PaymentTerm != nil && *req.PaymentTerm != order.PaymentTerm {
		cs.Header.PaymentTerm = req.PaymentTerm
		cs.Header.ChangedFields.Mark(models.FieldPaymentTerm)
	}
	if req.ShipDate != nil && !sameDate(req.ShipDate, order.ShipDate) {
		cs.Header.ShipDate = req.ShipDate
		cs.Header.ChangedFields.Mark(models.FieldShipDate)
	}
}

// diffLine compares a requested line edit field by field against the stored
// line. Only fields whose new value differs are marked changed; a line with
// no differing fields produces no change-set entry.
func (b *Builder) diffLine(existing models.OrderLine, req models.ChangeOrderLineRequest) (models.LineChange, bool) {
	change := models.LineChange{
		ItemNo:         existing.ItemNo,
		Op:             models.ChangeOpUpdate,
		MaterialNo:     existing.MaterialNo,
		ContractItemNo: existing.ContractItemNo,
		Quantity:       existing.Quantity,
		RequestDate:    existing.RequestDate,
		Plant:          existing.Plant,
		ChangedFields:  models.FieldSet{},
	}

	if req.Quantity > 0 && req.Quantity != existing.Quantity {
		change.Quantity = req.Quantity
		change.ChangedFields.Mark(models.FieldQuantity)
	}
	if req.RequestDate != nil && !sameDate(req.RequestDate, existing.RequestDate) {
		change.RequestDate = req.RequestDate
		change.ChangedFields.Mark(models.FieldRequestDate)
	}
	if req.Plant != "" && req.Plant != existing.Plant {
		change.Plant = req.Plant
		change.ChangedFields.Mark(models.FieldPlant)
	}
	if req.MaterialNo != "" && req.MaterialNo != existing.MaterialNo {
		change.MaterialNo = req.MaterialNo
		change.ChangedFields.Mark(models.FieldMaterial)
	}
	if req.UnlimitedTolerance != nil {
		change.UnlimitedTolerance = *req.UnlimitedTolerance
		change.ChangedFields.Mark(models.FieldUnlimitedTolerance)
	}
	if req.OverDeliveryTolerance != nil {
		change.OverDeliveryTolerance = *req.OverDeliveryTolerance
		change.ChangedFields.Mark(models.FieldOverTolerance)
	}
	if req.UnderDeliveryTolerance != nil {
		change.UnderDeliveryTolerance = *req.UnderDeliveryTolerance
		change.ChangedFields.Mark(models.FieldUnderTolerance)
	}

	return change, !change.ChangedFields.Empty()
}

// validateSplits checks requested pre-splits against the parent line: split
// quantities must not exceed the planner-confirmed quantity of the parent,
// nor its recorded original quantity.
func (b *Builder) validateSplits(parent models.OrderLine, req models.ChangeOrderLineRequest) error {
	if len(req.SplitItems) == 0 {
		return nil
	}

	var total float64
	for _, split := range req.SplitItems {
		total += split.Quantity
	}

	if parent.Reservation != nil && total > parent.Reservation.ConfirmedQuantity {
		return newValidationError(parent.ItemNo, "SPLIT_EXCEEDS_CONFIRMED",
			"split quantity %.3f exceeds planner-confirmed quantity %.3f of item %s",
			total, parent.Reservation.ConfirmedQuantity, parent.ItemNo)
	}
	if parent.OriginalQuantity > 0 && total > parent.OriginalQuantity {
		return newValidationError(parent.ItemNo, "SPLIT_EXCEEDS_ORIGINAL",
			"split quantity %.3f exceeds original quantity %.3f of item %s",
			total, parent.OriginalQuantity, parent.ItemNo)
	}
	return nil
}

// validateContractQuantities enforces that the post-edit quantity per
// referenced contract line does not exceed the already-allocated non-draft
// quantity plus the remaining contract quantity.
func (b *Builder) validateContractQuantities(
	lines []models.OrderLine,
	cs models.ChangeSet,
	contractRemaining map[string]float64,
) error {
	allocated := map[string]float64{}
	for _, line := range lines {
		if line.ContractItemNo != "" && !line.Draft {
			allocated[line.ContractItemNo] += line.Quantity
		}
	}

	// Post-edit totals: change-set quantities where present, stored
	// quantities for untouched non-draft lines.
	requested := map[string]float64{}
	touched := map[string]bool{}
	for itemNo, change := range cs.Lines {
		touched[itemNo] = true
		if change.Op == models.ChangeOpDelete || change.ContractItemNo == "" {
			continue
		}
		requested[change.ContractItemNo] += change.Quantity
	}
	for _, line := range lines {
		if line.ContractItemNo == "" || line.Draft || touched[line.ItemNo] {
			continue
		}
		requested[line.ContractItemNo] += line.Quantity
	}

	for contractItemNo, total := range requested {
		remaining, ok := contractRemaining[contractItemNo]
		if !ok {
			continue
		}
		limit := allocated[contractItemNo] + remaining
		if total > limit {
			return newValidationError("", "CONTRACT_QUANTITY_EXCEEDED",
				"requested quantity %.3f for contract item %s exceeds available %.3f",
				total, contractItemNo, limit)
		}
	}

	return nil
}

func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
