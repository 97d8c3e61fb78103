// Package channel selects planner inquiry behavior by sales channel. The
// policy is resolved once per order instead of re-deriving per-channel
// booleans at every call site.
package channel

import "github.com/Ramsey-B/aster/pkg/models"

// Split logic values understood by the planner.
const (
	SplitByDate = "SPLIT_BY_DATE"
	NoSplit     = "NO_SPLIT"
)

// Inquiry methods understood by the planner.
const (
	MethodStandard = "STANDARD"
	MethodASAP     = "ASAP"
)

// InquiryParameters are the per-line planner inquiry knobs a channel fixes.
type InquiryParameters struct {
	InquiryMethod           string
	UseInventory            bool
	UseConsignmentInventory bool
	UseProjectedInventory   bool
	UseProduction           bool
	OrderSplitLogic         string
	SingleSourcing          bool
	ReATPRequired           bool
}

// Policy is the per-channel planner capability of an order.
type Policy interface {
	InquiryParameters() InquiryParameters
	RequiresPlannerConfirm() bool
}

// ForOrder resolves the policy for an order. Unknown channels fall back to
// the ASAP behavior.
func ForOrder(order *models.Order) Policy {
	switch order.SalesChannel {
	case models.ChannelDomestic:
		return domesticPolicy{}
	case models.ChannelExport:
		return exportPolicy{}
	default:
		return asapPolicy{}
	}
}

type domesticPolicy struct{}

func (domesticPolicy) InquiryParameters() InquiryParameters {
	return InquiryParameters{
		InquiryMethod:           MethodStandard,
		UseInventory:            true,
		UseConsignmentInventory: true,
		UseProduction:           true,
		OrderSplitLogic:         SplitByDate,
		SingleSourcing:          false,
		ReATPRequired:           true,
	}
}

func (domesticPolicy) RequiresPlannerConfirm() bool { return true }

type exportPolicy struct{}

func (exportPolicy) InquiryParameters() InquiryParameters {
	return InquiryParameters{
		InquiryMethod:   MethodStandard,
		UseProduction:   true,
		OrderSplitLogic: NoSplit,
		SingleSourcing:  false,
		ReATPRequired:   true,
	}
}

func (exportPolicy) RequiresPlannerConfirm() bool { return true }

type asapPolicy struct{}

func (asapPolicy) InquiryParameters() InquiryParameters {
	return InquiryParameters{
		InquiryMethod:           MethodASAP,
		UseInventory:            true,
		UseConsignmentInventory: true,
		UseProduction:           true,
		OrderSplitLogic:         SplitByDate,
		SingleSourcing:          false,
		ReATPRequired:           true,
	}
}

func (asapPolicy) RequiresPlannerConfirm() bool { return true }
