package saga

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/planner"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

// CompensationHandler undoes or records remote-side work when a saga cannot
// complete cleanly. Compensation is best effort: a failed compensation is
// logged and flagged for reconciliation, never retried inline.
type CompensationHandler struct {
	planner     planner.Client
	remoteCalls RemoteCallRepo
	logger      ectologger.Logger
}

func NewCompensationHandler(plannerClient planner.Client, remoteCalls RemoteCallRepo, logger ectologger.Logger) *CompensationHandler {
	return &CompensationHandler{
		planner:     plannerClient,
		remoteCalls: remoteCalls,
		logger:      logger,
	}
}

// RollbackReservation releases a planner reservation after the ERP rejected
// the update the reservation was made for.
func (h *CompensationHandler) RollbackReservation(ctx context.Context, soNo, headerCode string) {
	ctx, span := tracing.StartSpan(ctx, "saga.CompensationHandler.RollbackReservation")
	defer span.End()

	log := h.logger.WithContext(ctx).WithFields(map[string]any{
		"so_no":       soNo,
		"header_code": headerCode,
	})

	resp, err := h.planner.Confirm(ctx, &planner.ConfirmRequest{
		HeaderCode: headerCode,
		CommitFlag: planner.CommitFlagRollback,
	})
	success := err == nil && (resp == nil || len(resp.Errors) == 0)

	h.log(ctx, soNo, headerCode, "rollback", success, err, !success)

	if !success {
		// The reservation will expire planner-side; the audit record keeps
		// the discrepancy visible until then.
		log.WithError(err).Errorf("Failed to roll back planner reservation")
		span.RecordError(err)
		return
	}
	log.Infof("Rolled back planner reservation")
}

// MarkConfirmFailed records that the planner refused to confirm a
// reservation the ERP already accepted. The saga commits anyway; this record
// is what the reconciliation review works from.
func (h *CompensationHandler) MarkConfirmFailed(ctx context.Context, soNo, headerCode string, cause error) {
	h.logger.WithContext(ctx).WithError(cause).WithFields(map[string]any{
		"so_no":       soNo,
		"header_code": headerCode,
	}).Errorf("Planner confirmation failed after ERP update, order committed with reconciliation flags")

	h.log(ctx, soNo, headerCode, "confirm_failed", false, cause, true)
}

func (h *CompensationHandler) log(ctx context.Context, soNo, headerCode, operation string, success bool, callErr error, retryRequired bool) {
	call := &models.RemoteCall{
		ID:            uuid.New(),
		SoNo:          soNo,
		System:        models.RemoteSystemPlanner,
		Operation:     operation,
		HeaderCode:    headerCode,
		Success:       success,
		RetryRequired: retryRequired,
		CreatedAt:     time.Now().UTC(),
	}
	if callErr != nil {
		msg := callErr.Error()
		call.ErrorMessage = &msg
	}
	if err := h.remoteCalls.Log(ctx, call); err != nil {
		h.logger.WithContext(ctx).WithError(err).Errorf("Failed to log compensation record for %s", soNo)
	}
}
