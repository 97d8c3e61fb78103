package models

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SalesChannel selects the planner inquiry behavior for an order.
type SalesChannel string

const (
	ChannelDomestic SalesChannel = "domestic"
	ChannelExport   SalesChannel = "export"
	ChannelASAP     SalesChannel = "asap"
)

// ItemStatus is the lifecycle status of an order line. Statuses are ranked;
// a line only moves forward along the rank order, except that any line may
// be cancelled at any time. Cancellation is terminal.
type ItemStatus string

const (
	ItemStatusCreated         ItemStatus = "created"
	ItemStatusUnallocated     ItemStatus = "unallocated"
	ItemStatusAllocated       ItemStatus = "allocated"
	ItemStatusConfirmed       ItemStatus = "confirmed"
	ItemStatusProducing       ItemStatus = "producing"
	ItemStatusPartialDelivery ItemStatus = "partial_delivery"
	ItemStatusDelivered       ItemStatus = "delivered"
	ItemStatusCancelled       ItemStatus = "cancelled"
)

var itemStatusRanks = map[ItemStatus]int{
	ItemStatusCreated:         10,
	ItemStatusUnallocated:     20,
	ItemStatusAllocated:       30,
	ItemStatusConfirmed:       40,
	ItemStatusProducing:       50,
	ItemStatusPartialDelivery: 60,
	ItemStatusDelivered:       70,
}

// Rank returns the position of the status in the lifecycle order.
// Cancelled has no rank; it is handled as a distinct terminal projection.
func (s ItemStatus) Rank() int {
	return itemStatusRanks[s]
}

// CanTransitionTo reports whether the status may advance to next. Statuses
// only move forward, except that cancellation is always allowed.
func (s ItemStatus) CanTransitionTo(next ItemStatus) bool {
	if s == ItemStatusCancelled {
		return false
	}
	if next == ItemStatusCancelled {
		return true
	}
	return next.Rank() >= s.Rank()
}

// OrderStatus is the order-level projection of the line statuses.
type OrderStatus string

const (
	OrderStatusCreated         OrderStatus = "created"
	OrderStatusUnallocated     OrderStatus = "unallocated"
	OrderStatusAllocated       OrderStatus = "allocated"
	OrderStatusConfirmed       OrderStatus = "confirmed"
	OrderStatusProducing       OrderStatus = "producing"
	OrderStatusPartialDelivery OrderStatus = "partial_delivery"
	OrderStatusDelivered       OrderStatus = "delivered"
	OrderStatusCancelled       OrderStatus = "cancelled"
)

// OrderStatusForItem maps a line status to the order-level status of the
// same rank.
func OrderStatusForItem(s ItemStatus) OrderStatus {
	return OrderStatus(s)
}

// plannerIntegratedProductGroups lists the product groups whose orders are
// planned through the external capacity engine. Orders outside these groups
// go straight to the ERP.
var plannerIntegratedProductGroups = map[string]bool{
	"packaging": true,
	"fibre":     true,
}

// ProductGroupNeedsPlanner reports whether orders of the product group are
// planner-integrated.
func ProductGroupNeedsPlanner(productGroup string) bool {
	return plannerIntegratedProductGroups[strings.ToLower(productGroup)]
}

// Order is the header record of a sales order.
type Order struct {
	ID                      uuid.UUID    `db:"id" json:"id"`
	SoNo                    string       `db:"so_no" json:"so_no"`
	Status                  OrderStatus  `db:"status" json:"status"`
	ProductGroup            string       `db:"product_group" json:"product_group"`
	SalesChannel            SalesChannel `db:"sales_channel" json:"sales_channel"`
	ContractNo              string       `db:"contract_no" json:"contract_no"`
	PONo                    string       `db:"po_no" json:"po_no"`
	PaymentTerm             string       `db:"payment_term" json:"payment_term"`
	ShipDate                *time.Time   `db:"ship_date" json:"ship_date,omitempty"`
	NeedsPlannerIntegration bool         `db:"needs_planner_integration" json:"needs_planner_integration"`
	CreatedAt               time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time    `db:"updated_at" json:"updated_at"`
}

// IsExport reports whether the order sells through the export channel.
// R4 attention is evaluated for export orders only.
func (o *Order) IsExport() bool {
	return o.SalesChannel == ChannelExport
}

// PlannerReservation holds what the planner committed for a line.
type PlannerReservation struct {
	HeaderCode        string     `db:"planner_header_code" json:"header_code"`
	ConfirmedQuantity float64    `db:"planner_confirmed_qty" json:"confirmed_quantity"`
	OnHandStock       bool       `db:"planner_on_hand_stock" json:"on_hand_stock"`
	DispatchDate      *time.Time `db:"planner_dispatch_date" json:"dispatch_date,omitempty"`
	Plant             string     `db:"planner_plant" json:"plant"`
}

// OrderLine is a single item of a sales order.
type OrderLine struct {
	ID               uuid.UUID    `db:"id" json:"id"`
	OrderID          uuid.UUID    `db:"order_id" json:"order_id"`
	ItemNo           string       `db:"item_no" json:"item_no"`
	MaterialNo       string       `db:"material_no" json:"material_no"`
	ContractItemNo   string       `db:"contract_item_no" json:"contract_item_no"`
	Quantity         float64      `db:"quantity" json:"quantity"`
	OriginalQuantity float64      `db:"original_quantity" json:"original_quantity"`
	RequestDate      *time.Time   `db:"request_date" json:"request_date,omitempty"`
	ConfirmedDate    *time.Time   `db:"confirmed_date" json:"confirmed_date,omitempty"`
	Plant            string       `db:"plant" json:"plant"`
	ItemStatus       ItemStatus   `db:"item_status" json:"item_status"`
	AttentionType    AttentionSet `db:"attention_type" json:"attention_type"`
	Draft            bool         `db:"draft" json:"draft"`
	// ErpConfirmedQuantity is the quantity the ERP confirmed. Populated by
	// the update response or the periodic re-sync; nil until then.
	ErpConfirmedQuantity *float64 `db:"erp_confirmed_qty" json:"erp_confirmed_quantity,omitempty"`
	// Reservation is the planner-side commitment for the line. Lazily
	// created on the first successful planner inquiry.
	Reservation *PlannerReservation `json:"reservation,omitempty"`
	CreatedAt   time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time           `db:"updated_at" json:"updated_at"`
}

// ItemNoValue parses the numeric prefix of an item number. Item numbers are
// string keys; non-numeric ones sort as zero.
func ItemNoValue(itemNo string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(itemNo))
	return n
}

// MaxItemNo returns the highest numeric item number across the lines.
func MaxItemNo(lines []OrderLine) int {
	max := 0
	for _, line := range lines {
		if v := ItemNoValue(line.ItemNo); v > max {
			max = v
		}
	}
	return max
}

// NextItemNo allocates the next item number after current: the next multiple
// of 10 strictly greater than it.
func NextItemNo(current int) string {
	next := (current/10)*10 + 10
	return strconv.Itoa(next)
}
