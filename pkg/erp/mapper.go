package erp

import (
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/aster/pkg/models"
)

const (
	dateLayout = "2006-01-02"

	// defaultScheduleLine is the schedule line number used for single-schedule items.
	defaultScheduleLine = "0001"
)

// Mapper builds ERP update payloads from a change-set.
type Mapper struct {
	logger ectologger.Logger
}

func NewMapper(logger ectologger.Logger) *Mapper {
	return &Mapper{logger: logger}
}

// BuildUpdate emits the header delta plus one item block and one schedule
// block per change-set line, each with an explicit I/U/D operation flag and
// field-level changed indicators.
func (m *Mapper) BuildUpdate(order *models.Order, cs models.ChangeSet) *UpdateRequest {
	req := &UpdateRequest{
		SalesDocument: order.SoNo,
	}

	m.buildHeader(order, cs, req)

	for _, itemNo := range cs.SortedItemNos() {
		change := cs.Lines[itemNo]
		switch change.Op {
		case models.ChangeOpDelete:
			m.appendDelete(req, change)
		case models.ChangeOpInsert:
			m.appendInsert(req, change)
		case models.ChangeOpUpdate:
			m.appendUpdate(req, change)
		}
	}

	return req
}

func (m *Mapper) buildHeader(order *models.Order, cs models.ChangeSet, req *UpdateRequest) {
	if cs.Header.Empty() {
		return
	}

	req.OrderHeaderInX.UpdateFlag = UpdateFlagUpdate

	if cs.Header.ChangedFields.Changed(models.FieldPONo) && cs.Header.PONo != nil {
		req.OrderHeaderIn.PONo = *cs.Header.PONo
		req.OrderHeaderInX.PONo = true
	}
	if cs.Header.ChangedFields.Changed(models.FieldPaymentTerm) && cs.Header.PaymentTerm != nil {
		req.OrderHeaderIn.PaymentTerm = *cs.Header.PaymentTerm
		req.OrderHeaderInX.PaymentTerm = true
	}
	if cs.Header.ChangedFields.Changed(models.FieldShipDate) && cs.Header.ShipDate != nil {
		req.OrderHeaderIn.ShipDate = cs.Header.ShipDate.Format(dateLayout)
		req.OrderHeaderInX.ShipDate = true
	}
}

// appendDelete emits the minimum identifying fields plus the delete flag.
// No quantity or date fields are sent for deletions.
func (m *Mapper) appendDelete(req *UpdateRequest, change models.LineChange) {
	req.OrderItemsIn = append(req.OrderItemsIn, OrderItemIn{ItemNo: change.ItemNo})
	req.OrderItemsInX = append(req.OrderItemsInX, OrderItemInX{
		ItemNo:     change.ItemNo,
		UpdateFlag: UpdateFlagDelete,
	})
	req.OrderSchedulesIn = append(req.OrderSchedulesIn, OrderScheduleIn{
		ItemNo:       change.ItemNo,
		ScheduleLine: defaultScheduleLine,
	})
	req.OrderSchedulesInX = append(req.OrderSchedulesInX, OrderScheduleInX{
		ItemNo:       change.ItemNo,
		ScheduleLine: defaultScheduleLine,
		UpdateFlag:   UpdateFlagDelete,
	})
}

func (m *Mapper) appendInsert(req *UpdateRequest, change models.LineChange) {
	item := OrderItemIn{
		ItemNo:         change.ItemNo,
		Material:       change.MaterialNo,
		Plant:          change.Plant,
		TargetQuantity: change.Quantity,
	}
	itemX := OrderItemInX{
		ItemNo:         change.ItemNo,
		UpdateFlag:     UpdateFlagInsert,
		Material:       true,
		Plant:          change.Plant != "",
		TargetQuantity: true,
	}

	applyToleranceDefaults(&change)
	if change.UnlimitedTolerance {
		item.UnlimitedTolerance = true
		itemX.UnlimitedTolerance = true
		itemX.OverDeliveryTolerance = true
		itemX.UnderDeliveryTolerance = true
	} else if change.OverDeliveryTolerance != 0 || change.UnderDeliveryTolerance != 0 {
		item.OverDeliveryTolerance = change.OverDeliveryTolerance
		item.UnderDeliveryTolerance = change.UnderDeliveryTolerance
		itemX.OverDeliveryTolerance = true
		itemX.UnderDeliveryTolerance = true
	}

	req.OrderItemsIn = append(req.OrderItemsIn, item)
	req.OrderItemsInX = append(req.OrderItemsInX, itemX)

	schedule := OrderScheduleIn{
		ItemNo:            change.ItemNo,
		ScheduleLine:      defaultScheduleLine,
		RequestQuantity:   change.Quantity,
		ConfirmedQuantity: confirmedQuantity(change),
	}
	if change.RequestDate != nil {
		schedule.RequestDate = change.RequestDate.Format(dateLayout)
	}
	req.OrderSchedulesIn = append(req.OrderSchedulesIn, schedule)
	req.OrderSchedulesInX = append(req.OrderSchedulesInX, OrderScheduleInX{
		ItemNo:            change.ItemNo,
		ScheduleLine:      defaultScheduleLine,
		UpdateFlag:        UpdateFlagInsert,
		RequestDate:       change.RequestDate != nil,
		RequestQuantity:   true,
		ConfirmedQuantity: true,
	})
}

// appendUpdate populates only the fields the diff marked changed.
func (m *Mapper) appendUpdate(req *UpdateRequest, change models.LineChange) {
	item := OrderItemIn{ItemNo: change.ItemNo}
	itemX := OrderItemInX{
		ItemNo:     change.ItemNo,
		UpdateFlag: UpdateFlagUpdate,
	}

	if change.ChangedFields.Changed(models.FieldMaterial) {
		item.Material = change.MaterialNo
		itemX.Material = true
	}
	if change.ChangedFields.Changed(models.FieldPlant) {
		item.Plant = change.Plant
		itemX.Plant = true
	}
	if change.ChangedFields.Changed(models.FieldQuantity) {
		item.TargetQuantity = change.Quantity
		itemX.TargetQuantity = true
	}

	applyToleranceDefaults(&change)
	if change.ChangedFields.Changed(models.FieldUnlimitedTolerance) {
		item.UnlimitedTolerance = change.UnlimitedTolerance
		itemX.UnlimitedTolerance = true
		// The tolerance flag forces the dependent fields.
		item.OverDeliveryTolerance = change.OverDeliveryTolerance
		item.UnderDeliveryTolerance = change.UnderDeliveryTolerance
		itemX.OverDeliveryTolerance = true
		itemX.UnderDeliveryTolerance = true
	} else {
		if change.ChangedFields.Changed(models.FieldOverTolerance) {
			item.OverDeliveryTolerance = change.OverDeliveryTolerance
			itemX.OverDeliveryTolerance = true
		}
		if change.ChangedFields.Changed(models.FieldUnderTolerance) {
			item.UnderDeliveryTolerance = change.UnderDeliveryTolerance
			itemX.UnderDeliveryTolerance = true
		}
	}

	req.OrderItemsIn = append(req.OrderItemsIn, item)
	req.OrderItemsInX = append(req.OrderItemsInX, itemX)

	schedule := OrderScheduleIn{
		ItemNo:       change.ItemNo,
		ScheduleLine: defaultScheduleLine,
	}
	scheduleX := OrderScheduleInX{
		ItemNo:       change.ItemNo,
		ScheduleLine: defaultScheduleLine,
		UpdateFlag:   UpdateFlagUpdate,
	}

	if change.ChangedFields.Changed(models.FieldRequestDate) && change.RequestDate != nil {
		schedule.RequestDate = change.RequestDate.Format(dateLayout)
		scheduleX.RequestDate = true
	}
	if change.ChangedFields.Changed(models.FieldQuantity) {
		schedule.RequestQuantity = change.Quantity
		schedule.ConfirmedQuantity = confirmedQuantity(change)
		scheduleX.RequestQuantity = true
		scheduleX.ConfirmedQuantity = true
	}

	req.OrderSchedulesIn = append(req.OrderSchedulesIn, schedule)
	req.OrderSchedulesInX = append(req.OrderSchedulesInX, scheduleX)
}

// applyToleranceDefaults zeroes the over/under delivery tolerances when the
// unlimited flag is set. The flag and the explicit tolerances are mutually
// exclusive on the ERP side.
func applyToleranceDefaults(change *models.LineChange) {
	if change.UnlimitedTolerance {
		change.OverDeliveryTolerance = 0
		change.UnderDeliveryTolerance = 0
	}
}

// confirmedQuantity prefers the planner-confirmed quantity when the line
// carries a reservation, falling back to the requested quantity.
func confirmedQuantity(change models.LineChange) float64 {
	if change.ConfirmedQuantity != nil {
		return *change.ConfirmedQuantity
	}
	return change.Quantity
}

// MapOrderMessages converts ERP order-level messages.
func MapOrderMessages(messages []ReturnMessage, errorsOnly bool) []models.OrderMessage {
	out := make([]models.OrderMessage, 0, len(messages))
	for _, msg := range messages {
		if errorsOnly && !msg.IsError() {
			continue
		}
		out = append(out, models.OrderMessage{Code: msg.Code, Message: msg.Message})
	}
	return out
}

// MapItemMessages converts ERP item-level messages.
func MapItemMessages(messages []ReturnMessage, errorsOnly bool) []models.ItemMessage {
	out := make([]models.ItemMessage, 0, len(messages))
	for _, msg := range messages {
		if errorsOnly && !msg.IsError() {
			continue
		}
		out = append(out, models.ItemMessage{ItemNo: msg.ItemNo, Code: msg.Code, Message: msg.Message})
	}
	return out
}
