package planner

import (
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/aster/pkg/channel"
	"github.com/Ramsey-B/aster/pkg/models"
)

const dateLayout = "2006-01-02"

// Mapper builds inquiry envelopes from change-sets and maps the planner's
// response, including line splits, back into a rebuilt change-set.
type Mapper struct {
	logger ectologger.Logger
}

func NewMapper(logger ectologger.Logger) *Mapper {
	return &Mapper{logger: logger}
}

// NewHeaderCode mints the inquiry header code. The planner echoes it back
// and the confirm/rollback call references it.
func NewHeaderCode(soNo string) string {
	return fmt.Sprintf("%s-%s", soNo, uuid.New().String()[:8])
}

// BuildInquiry builds one inquiry envelope for the change-set's inserted and
// updated lines. Deleted lines release capacity at confirm time and are not
// re-evaluated.
func (m *Mapper) BuildInquiry(
	order *models.Order,
	cs models.ChangeSet,
	policy channel.Policy,
) *InquiryRequest {
	params := policy.InquiryParameters()

	req := &InquiryRequest{
		HeaderCode: NewHeaderCode(order.SoNo),
	}

	for _, itemNo := range cs.SortedItemNos() {
		change := cs.Lines[itemNo]
		if change.Op == models.ChangeOpDelete {
			continue
		}

		line := InquiryLine{
			LineNumber:              change.ItemNo,
			ProductCode:             change.MaterialNo,
			RequestedQuantity:       change.Quantity,
			InquiryMethod:           params.InquiryMethod,
			UseInventory:            params.UseInventory,
			UseConsignmentInventory: params.UseConsignmentInventory,
			UseProjectedInventory:   params.UseProjectedInventory,
			UseProduction:           params.UseProduction,
			OrderSplitLogic:         params.OrderSplitLogic,
			SingleSourcing:          params.SingleSourcing,
			ReATPRequired:           params.ReATPRequired,
		}
		if change.RequestDate != nil {
			line.RequestDate = change.RequestDate.Format(dateLayout)
		}

		req.Lines = append(req.Lines, line)
	}

	return req
}

// MapErrors converts planner error objects to itemized messages.
func MapErrors(errs []InquiryError) []models.ItemMessage {
	messages := make([]models.ItemMessage, 0, len(errs))
	for _, e := range errs {
		code := e.FirstCode
		if e.SecondCode != "" {
			code = fmt.Sprintf("%s/%s", e.FirstCode, e.SecondCode)
		}
		messages = append(messages, models.ItemMessage{
			ItemNo:  e.ItemNo,
			Code:    code,
			Message: e.Message,
		})
	}
	return messages
}

// ApplyResponse rebuilds the change-set with the planner's commitments.
// Response lines whose lineNumber prefix matches a change-set entry fold
// back into it; lines with a new split suffix become Insert entries with
// freshly minted item numbers above the order's current maximum.
//
// Invariant: for a split parent, the quantities of the parent plus its
// children sum to the parent's originally requested quantity.
func (m *Mapper) ApplyResponse(
	cs models.ChangeSet,
	resp *InquiryResponse,
	lines []models.OrderLine,
) (models.ChangeSet, error) {
	out := cs.Clone()

	maxItemNo := models.MaxItemNo(lines)
	for itemNo := range cs.Lines {
		if v := models.ItemNoValue(itemNo); v > maxItemNo {
			maxItemNo = v
		}
	}

	requestedQty := map[string]float64{}
	committedQty := map[string]float64{}
	for itemNo, change := range cs.Lines {
		requestedQty[itemNo] = change.Quantity
	}

	// A split is only valid alongside a re-confirmed parent line. Children
	// without one would leave the parent's original quantity standing and
	// double-count the demand downstream.
	confirmedParents := map[string]bool{}
	for _, respLine := range resp.ResponseLines {
		if parent, suffix := splitLineNumber(respLine.LineNumber); suffix == "" {
			confirmedParents[parent] = true
		}
	}

	for _, respLine := range resp.ResponseLines {
		parentItemNo, suffix := splitLineNumber(respLine.LineNumber)

		parent, ok := out.Lines[parentItemNo]
		if !ok {
			return out, fmt.Errorf("planner returned line %q with no matching change-set item", respLine.LineNumber)
		}

		dispatchDate, err := parseDate(respLine.DispatchDate)
		if err != nil {
			return out, fmt.Errorf("planner returned invalid dispatch date %q for line %q", respLine.DispatchDate, respLine.LineNumber)
		}

		committedQty[parentItemNo] += respLine.Quantity

		if suffix == "" {
			// Fold back into the existing entry.
			folded := parent
			folded.PlannerHeaderCode = resp.HeaderCode
			folded.OnHandStock = respLine.OnHandStock
			qty := respLine.Quantity
			folded.ConfirmedQuantity = &qty

			if respLine.Quantity != folded.Quantity {
				folded.Quantity = respLine.Quantity
				m.markChanged(&folded, models.FieldQuantity)
			}
			if respLine.WarehouseCode != "" && respLine.WarehouseCode != folded.Plant {
				folded.Plant = respLine.WarehouseCode
				m.markChanged(&folded, models.FieldPlant)
			}
			if dispatchDate != nil {
				folded.DispatchDate = dispatchDate
				if folded.RequestDate == nil || !dispatchDate.Equal(*folded.RequestDate) {
					folded.RequestDate = dispatchDate
					m.markChanged(&folded, models.FieldRequestDate)
				}
			}

			out.Lines[parentItemNo] = folded
			continue
		}

		// New split suffix: synthesize an Insert entry.
		if !confirmedParents[parentItemNo] {
			return out, fmt.Errorf("planner split line %q without re-confirming parent line %q", respLine.LineNumber, parentItemNo)
		}
		maxItemNo = models.ItemNoValue(models.NextItemNo(maxItemNo))
		itemNo := fmt.Sprintf("%d", maxItemNo)

		qty := respLine.Quantity
		child := models.LineChange{
			ItemNo:            itemNo,
			Op:                models.ChangeOpInsert,
			MaterialNo:        parent.MaterialNo,
			ContractItemNo:    parent.ContractItemNo,
			Quantity:          respLine.Quantity,
			RequestDate:       dispatchDate,
			Plant:             respLine.WarehouseCode,
			ParentItemNo:      parentItemNo,
			PlannerHeaderCode: resp.HeaderCode,
			ConfirmedQuantity: &qty,
			OnHandStock:       respLine.OnHandStock,
			DispatchDate:      dispatchDate,
		}
		out.Lines[itemNo] = child

		m.logger.WithFields(map[string]any{
			"so_no":     cs.SoNo,
			"parent":    parentItemNo,
			"child":     itemNo,
			"quantity":  respLine.Quantity,
			"warehouse": respLine.WarehouseCode,
		}).Info("planner split order line")
	}

	for parentItemNo, committed := range committedQty {
		if requested := requestedQty[parentItemNo]; committed != requested {
			return out, fmt.Errorf("planner commitments for item %s sum to %.3f, requested %.3f",
				parentItemNo, committed, requested)
		}
	}

	return out, nil
}

func (m *Mapper) markChanged(change *models.LineChange, field string) {
	if change.ChangedFields == nil {
		change.ChangedFields = models.FieldSet{}
	}
	change.ChangedFields.Mark(field)
}

// splitLineNumber parses "<parentItemNo>[.<suffix>]".
func splitLineNumber(lineNumber string) (parent, suffix string) {
	if idx := strings.Index(lineNumber, "."); idx >= 0 {
		return lineNumber[:idx], lineNumber[idx+1:]
	}
	return lineNumber, ""
}

func parseDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
