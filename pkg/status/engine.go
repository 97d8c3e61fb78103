// Package status derives line lifecycle statuses, rolls them up to the
// order level, and evaluates the attention flags that summarize
// discrepancies needing human review.
package status

import (
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/aster/pkg/models"
)

// Engine recomputes statuses and attention flags after any status-affecting
// event: a settled saga, or an external re-sync from the ERP.
type Engine struct {
	logger ectologger.Logger
}

func NewEngine(logger ectologger.Logger) *Engine {
	return &Engine{logger: logger}
}

// Recompute re-evaluates every line's attention flags and sets the
// order-level status from the line rollup.
func (e *Engine) Recompute(order *models.Order, lines []models.OrderLine) {
	for i := range lines {
		e.RecomputeLine(order, &lines[i])
	}
	order.Status = e.Rollup(lines)
}

// RecomputeLine evaluates the R1, R3 and R4 rules for one line. Each flag is
// set or cleared independently; R5 is owned by the compensation path and is
// never auto-cleared here.
func (e *Engine) RecomputeLine(order *models.Order, line *models.OrderLine) {
	if line.AttentionType == nil {
		line.AttentionType = models.AttentionSet{}
	}

	// R1: request date precedes confirmed date.
	if line.RequestDate != nil && line.ConfirmedDate != nil {
		line.AttentionType.Set(models.AttentionR1, line.RequestDate.Before(*line.ConfirmedDate))
	} else {
		line.AttentionType.Remove(models.AttentionR1)
	}

	// R3: planner-confirmed and ERP-confirmed quantities both exist and
	// disagree.
	if line.Reservation != nil && line.ErpConfirmedQuantity != nil {
		line.AttentionType.Set(models.AttentionR3, line.Reservation.ConfirmedQuantity != *line.ErpConfirmedQuantity)
	} else {
		line.AttentionType.Remove(models.AttentionR3)
	}

	// R4: export orders only, promised ship date precedes the confirmed
	// date.
	if order.IsExport() && order.ShipDate != nil && line.ConfirmedDate != nil {
		line.AttentionType.Set(models.AttentionR4, order.ShipDate.Before(*line.ConfirmedDate))
	} else {
		line.AttentionType.Remove(models.AttentionR4)
	}
}

// Rollup projects the line statuses onto the order: the maximum rank across
// non-cancelled lines. An order whose every line is cancelled is cancelled.
func (e *Engine) Rollup(lines []models.OrderLine) models.OrderStatus {
	if len(lines) == 0 {
		return models.OrderStatusCreated
	}

	best := models.ItemStatus("")
	cancelled := 0
	for _, line := range lines {
		if line.ItemStatus == models.ItemStatusCancelled {
			cancelled++
			continue
		}
		if line.ItemStatus.Rank() > best.Rank() {
			best = line.ItemStatus
		}
	}

	if cancelled == len(lines) {
		return models.OrderStatusCancelled
	}
	if best == "" {
		return models.OrderStatusCreated
	}
	return models.OrderStatusForItem(best)
}

// Advance moves a line's status forward, refusing rank regressions.
// Cancellation is always allowed and terminal.
func (e *Engine) Advance(line *models.OrderLine, next models.ItemStatus) bool {
	if !line.ItemStatus.CanTransitionTo(next) {
		e.logger.WithFields(map[string]any{
			"item_no": line.ItemNo,
			"from":    line.ItemStatus,
			"to":      next,
		}).Warn("refused status regression")
		return false
	}
	line.ItemStatus = next
	return true
}
