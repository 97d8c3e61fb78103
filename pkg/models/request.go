package models

import "time"

// LineOperation is the operation requested for a line edit. Deletion is an
// explicit operation; omitting a line from the request never deletes it.
type LineOperation string

const (
	LineOperationInsert LineOperation = "insert"
	LineOperationUpdate LineOperation = "update"
	LineOperationDelete LineOperation = "delete"
)

// SplitItemRequest pre-splits a line the user wants divided before the
// planner is consulted.
type SplitItemRequest struct {
	Quantity    float64    `json:"quantity" validate:"gt=0"`
	RequestDate *time.Time `json:"request_date,omitempty"`
}

// ChangeOrderLineRequest is a single line of a requested order edit.
type ChangeOrderLineRequest struct {
	// ItemNo identifies an existing line. Empty for new lines.
	ItemNo         string        `json:"item_no"`
	Operation      LineOperation `json:"operation" validate:"omitempty,oneof=insert update delete"`
	MaterialNo     string        `json:"material_no"`
	ContractItemNo string        `json:"contract_item_no"`
	Quantity       float64       `json:"quantity" validate:"gte=0"`
	RequestDate    *time.Time    `json:"request_date,omitempty"`
	Plant          string        `json:"plant"`

	UnlimitedTolerance     *bool    `json:"unlimited_tolerance,omitempty"`
	OverDeliveryTolerance  *float64 `json:"over_delivery_tolerance,omitempty"`
	UnderDeliveryTolerance *float64 `json:"under_delivery_tolerance,omitempty"`

	SplitItems []SplitItemRequest `json:"split_items,omitempty" validate:"dive"`
}

// ChangeOrderRequest is a requested edit to a placed order. SoNo binds from
// the route path; a body-supplied value never overrides it.
type ChangeOrderRequest struct {
	SoNo string `json:"so_no" param:"so_no" validate:"required"`

	PONo        *string    `json:"po_no,omitempty"`
	PaymentTerm *string    `json:"payment_term,omitempty"`
	ShipDate    *time.Time `json:"ship_date,omitempty"`

	Lines []ChangeOrderLineRequest `json:"lines" validate:"dive"`
}

// OrderMessage is an order-level message returned by a remote system.
type OrderMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ItemMessage is an item-level message returned by a remote system.
type ItemMessage struct {
	ItemNo  string `json:"item_no"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ChangeOrderResult is the outcome surfaced to the caller after the saga
// settles. Errors are itemized rather than collapsed into one failure.
type ChangeOrderResult struct {
	Success bool `json:"success"`

	ErpOrderMessages    []OrderMessage `json:"erp_order_messages"`
	ErpItemMessages     []ItemMessage  `json:"erp_item_messages"`
	PlannerMessages     []ItemMessage  `json:"planner_messages"`
	WarningMessages     []string       `json:"warning_messages"`
	ConfirmFailedErrors []ItemMessage  `json:"confirm_failed_errors"`
}
