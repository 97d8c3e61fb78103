package saga

import (
	"errors"
	"fmt"

	"github.com/Ramsey-B/aster/pkg/changeset"
	"github.com/Ramsey-B/aster/pkg/models"
)

// ErrorType classifies a failed saga for the lifecycle event stream.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypePlanner    ErrorType = "planner"
	ErrorTypeErp        ErrorType = "erp"
	ErrorTypeConfirm    ErrorType = "confirm"
)

// PlannerError is a business rejection (or transport failure, treated the
// same) from the planner inquiry step. It aborts the saga; no compensation
// is needed because nothing was reserved.
type PlannerError struct {
	Messages  []models.ItemMessage
	Transport bool
}

func (e *PlannerError) Error() string {
	if e.Transport {
		return "planner unreachable"
	}
	return fmt.Sprintf("planner rejected %d line(s)", len(e.Messages))
}

// ErpError is an order- or item-level rejection (or transport failure) from
// the ERP update step. It triggers compensation of the planner reservation.
type ErpError struct {
	OrderMessages []models.OrderMessage
	ItemMessages  []models.ItemMessage
	Transport     bool
}

func (e *ErpError) Error() string {
	if e.Transport {
		return "erp unreachable"
	}
	return fmt.Sprintf("erp rejected update: %d order message(s), %d item message(s)",
		len(e.OrderMessages), len(e.ItemMessages))
}

// ConfirmError is a planner rejection of the confirmation step after the ERP
// already accepted the update. The ERP-side data is kept; affected lines are
// flagged for manual reconciliation.
type ConfirmError struct {
	Messages  []models.ItemMessage
	Transport bool
}

func (e *ConfirmError) Error() string {
	if e.Transport {
		return "planner unreachable during confirmation"
	}
	return fmt.Sprintf("planner confirmation rejected: %d message(s)", len(e.Messages))
}

// Classify determines the error type for a failed saga.
func Classify(err error) ErrorType {
	var validationErr *changeset.ValidationError
	var plannerErr *PlannerError
	var erpErr *ErpError
	var confirmErr *ConfirmError

	switch {
	case errors.As(err, &validationErr):
		return ErrorTypeValidation
	case errors.As(err, &plannerErr):
		return ErrorTypePlanner
	case errors.As(err, &erpErr):
		return ErrorTypeErp
	case errors.As(err, &confirmErr):
		return ErrorTypeConfirm
	default:
		return ErrorTypeErp
	}
}
