package saga

import (
	"context"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Ramsey-B/aster/pkg/changeset"
	"github.com/Ramsey-B/aster/pkg/channel"
	"github.com/Ramsey-B/aster/pkg/database"
	"github.com/Ramsey-B/aster/pkg/erp"
	"github.com/Ramsey-B/aster/pkg/kafka"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/planner"
	"github.com/Ramsey-B/aster/pkg/status"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrOrderNotEditable = errors.New("order is not editable")
)

// OrderRepo is the order persistence the saga needs. Writes go through the
// transaction carried in the context.
type OrderRepo interface {
	GetBySoNo(ctx context.Context, soNo string) (*models.Order, []models.OrderLine, error)
	ContractRemaining(ctx context.Context, contractNo string) (map[string]float64, error)
	SaveOrder(ctx context.Context, order *models.Order) error
	SaveLines(ctx context.Context, orderID uuid.UUID, lines []models.OrderLine) error
}

// RemoteCallRepo records every outbound planner/ERP call. Its writes bypass
// the saga transaction so the audit trail survives a rollback.
type RemoteCallRepo interface {
	Log(ctx context.Context, call *models.RemoteCall) error
}

// Coordinator drives an order change through the planner and the ERP as a
// compensating-transaction saga. All database writes happen in one
// transaction that only commits on the COMMITTED terminal; remote systems
// that already accepted work are compensated instead of rolled back.
type Coordinator struct {
	db           database.DB
	orders       OrderRepo
	remoteCalls  RemoteCallRepo
	planner      planner.Client
	erp          erp.Client
	builder      *changeset.Builder
	plannerMap   *planner.Mapper
	erpMap       *erp.Mapper
	statusEngine *status.Engine
	compensation *CompensationHandler
	producer     *kafka.Producer
	logger       ectologger.Logger
}

func NewCoordinator(
	db database.DB,
	orders OrderRepo,
	remoteCalls RemoteCallRepo,
	plannerClient planner.Client,
	erpClient erp.Client,
	producer *kafka.Producer,
	logger ectologger.Logger,
) *Coordinator {
	return &Coordinator{
		db:           db,
		orders:       orders,
		remoteCalls:  remoteCalls,
		planner:      plannerClient,
		erp:          erpClient,
		builder:      changeset.NewBuilder(logger),
		plannerMap:   planner.NewMapper(logger),
		erpMap:       erp.NewMapper(logger),
		statusEngine: status.NewEngine(logger),
		compensation: NewCompensationHandler(plannerClient, remoteCalls, logger),
		producer:     producer,
		logger:       logger,
	}
}

// run carries the mutable state of one saga execution between transitions.
type run struct {
	sagaID string

	order  *models.Order
	lines  []models.OrderLine
	policy channel.Policy

	cs         models.ChangeSet
	headerCode string

	plannerRan    bool
	confirmFailed bool
	erpResp       *erp.UpdateResponse

	stepErr error
	result  *models.ChangeOrderResult
}

// Execute validates the requested edit, diffs it into a change-set and runs
// the saga to a terminal state. A *changeset.ValidationError return means
// nothing was attempted; otherwise business failures come back itemized in
// the result with Success=false.
func (c *Coordinator) Execute(ctx context.Context, req models.ChangeOrderRequest) (*models.ChangeOrderResult, error) {
	ctx, span := tracing.StartSpan(ctx, "saga.Coordinator.Execute")
	defer span.End()

	r := &run{
		sagaID: uuid.New().String(),
		result: &models.ChangeOrderResult{},
	}
	span.SetAttributes(
		attribute.String("so_no", req.SoNo),
		attribute.String("saga_id", r.sagaID),
	)

	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"so_no":   req.SoNo,
		"saga_id": r.sagaID,
	})
	log.Infof("Starting order change saga")

	ctx, tx, err := c.db.GetTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if tx.IsOpen() {
			_ = tx.Rollback(ctx)
		}
	}()

	if err := c.prepare(ctx, req, r); err != nil {
		span.RecordError(err)
		return nil, err
	}

	if r.cs.IsEmpty() {
		// Nothing changed; no remote system is contacted.
		log.Infof("Change request is a no-op, skipping saga")
		r.result.Success = true
		return r.result, nil
	}

	state := StateInit
	for !state.IsTerminal() {
		log.WithFields(map[string]any{"state": string(state)}).Debugf("Saga transition")
		switch state {
		case StateInit:
			state = c.fromInit(r)
		case StatePlannerRequested:
			state = c.fromPlannerRequested(ctx, r)
		case StatePlannerOK:
			state = StateErpRequested
		case StatePlannerFailed:
			state = c.fromPlannerFailed(ctx, r)
		case StateErpRequested:
			state = c.fromErpRequested(ctx, r)
		case StateErpOK:
			state = c.fromErpOK(r)
		case StateErpFailed:
			state = c.fromErpFailed(ctx, r)
		case StatePlannerConfirmRequested:
			state = c.fromConfirmRequested(ctx, r)
		case StateConfirmFailed:
			state = c.fromConfirmFailed(ctx, r)
		}
	}

	switch state {
	case StateCommitted:
		if err := c.commit(ctx, tx, r); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "commit failed")
			return nil, err
		}
		r.result.Success = true
	case StateAborted, StateRolledBack:
		_ = tx.Rollback(ctx)
		r.result.Success = false
	}

	c.emitEvent(ctx, r, state)
	log.WithFields(map[string]any{
		"state":   string(state),
		"success": r.result.Success,
	}).Infof("Order change saga finished")

	return r.result, nil
}

// prepare loads the order, checks it is editable and builds the change-set.
func (c *Coordinator) prepare(ctx context.Context, req models.ChangeOrderRequest, r *run) error {
	order, lines, err := c.orders.GetBySoNo(ctx, req.SoNo)
	if err != nil {
		return err
	}
	if order == nil {
		return ErrOrderNotFound
	}
	if order.Status == models.OrderStatusCancelled || order.Status == models.OrderStatusDelivered {
		return ErrOrderNotEditable
	}

	contractRemaining := map[string]float64{}
	if order.ContractNo != "" {
		contractRemaining, err = c.orders.ContractRemaining(ctx, order.ContractNo)
		if err != nil {
			return err
		}
	}

	cs, err := c.builder.Build(order, lines, req, contractRemaining)
	if err != nil {
		return err
	}

	r.order = order
	r.lines = lines
	r.policy = channel.ForOrder(order)
	r.cs = cs
	return nil
}

// fromInit decides whether the planner participates. Header-only edits and
// orders outside the planner-integrated product groups go straight to the
// ERP.
func (c *Coordinator) fromInit(r *run) State {
	if !r.order.NeedsPlannerIntegration || !r.cs.HasLineEdits() {
		return StateErpRequested
	}
	return StatePlannerRequested
}

func (c *Coordinator) fromPlannerRequested(ctx context.Context, r *run) State {
	inquiry := c.plannerMap.BuildInquiry(r.order, r.cs, r.policy)
	r.headerCode = inquiry.HeaderCode

	resp, err := c.planner.Inquire(ctx, inquiry)
	c.logRemoteCall(ctx, r, models.RemoteSystemPlanner, "inquiry", err == nil && len(respErrors(resp)) == 0, err, false)
	if err != nil {
		// Transport failures are handled like a planner rejection.
		r.stepErr = &PlannerError{Transport: true, Messages: []models.ItemMessage{{Message: err.Error()}}}
		return StatePlannerFailed
	}
	if resp == nil {
		r.stepErr = &PlannerError{Transport: true, Messages: []models.ItemMessage{{Message: "planner returned an empty response"}}}
		return StatePlannerFailed
	}
	if errs := respErrors(resp); len(errs) > 0 {
		r.stepErr = &PlannerError{Messages: planner.MapErrors(errs)}
		return StatePlannerFailed
	}

	mapped, err := c.plannerMap.ApplyResponse(r.cs, resp, r.lines)
	if err != nil {
		r.stepErr = &PlannerError{Messages: []models.ItemMessage{{Message: err.Error()}}}
		return StatePlannerFailed
	}

	if resp.HeaderCode != "" {
		r.headerCode = resp.HeaderCode
	}
	r.cs = mapped
	r.plannerRan = true
	return StatePlannerOK
}

// fromPlannerFailed aborts. Nothing was reserved and nothing was written, so
// no compensation runs.
func (c *Coordinator) fromPlannerFailed(ctx context.Context, r *run) State {
	var plannerErr *PlannerError
	if errors.As(r.stepErr, &plannerErr) {
		r.result.PlannerMessages = plannerErr.Messages
	}
	c.logger.WithContext(ctx).WithError(r.stepErr).Warnf("Planner rejected order change for %s", r.order.SoNo)
	return StateAborted
}

func (c *Coordinator) fromErpRequested(ctx context.Context, r *run) State {
	update := c.erpMap.BuildUpdate(r.order, r.cs)

	resp, err := c.erp.UpdateOrder(ctx, update)
	c.logRemoteCall(ctx, r, models.RemoteSystemErp, "update", err == nil && resp != nil && !resp.HasErrors(), err, false)
	if err != nil {
		r.stepErr = &ErpError{Transport: true, OrderMessages: []models.OrderMessage{{Message: err.Error()}}}
		return StateErpFailed
	}
	if resp == nil {
		r.stepErr = &ErpError{Transport: true, OrderMessages: []models.OrderMessage{{Message: "erp returned an empty response"}}}
		return StateErpFailed
	}
	if resp.HasErrors() {
		r.stepErr = &ErpError{
			OrderMessages: erp.MapOrderMessages(resp.OrderMessages, true),
			ItemMessages:  erp.MapItemMessages(resp.ItemMessages, true),
		}
		return StateErpFailed
	}

	r.erpResp = resp
	for _, m := range resp.OrderMessages {
		if !m.IsError() {
			r.result.WarningMessages = append(r.result.WarningMessages, m.Message)
		}
	}
	return StateErpOK
}

func (c *Coordinator) fromErpOK(r *run) State {
	if r.plannerRan && r.policy.RequiresPlannerConfirm() {
		return StatePlannerConfirmRequested
	}
	return StateCommitted
}

// fromErpFailed compensates: the planner reservation made earlier in this
// saga is released before the database transaction rolls back.
func (c *Coordinator) fromErpFailed(ctx context.Context, r *run) State {
	if r.plannerRan {
		c.compensation.RollbackReservation(ctx, r.order.SoNo, r.headerCode)
	}

	var erpErr *ErpError
	if errors.As(r.stepErr, &erpErr) {
		r.result.ErpOrderMessages = erpErr.OrderMessages
		r.result.ErpItemMessages = erpErr.ItemMessages
	}
	c.logger.WithContext(ctx).WithError(r.stepErr).Warnf("ERP rejected order change for %s, planner reservation rolled back", r.order.SoNo)
	return StateRolledBack
}

func (c *Coordinator) fromConfirmRequested(ctx context.Context, r *run) State {
	resp, err := c.planner.Confirm(ctx, &planner.ConfirmRequest{
		HeaderCode: r.headerCode,
		CommitFlag: planner.CommitFlagCommit,
	})
	success := err == nil && len(respConfirmErrors(resp)) == 0
	c.logRemoteCall(ctx, r, models.RemoteSystemPlanner, "confirm", success, err, false)
	if err != nil {
		r.stepErr = &ConfirmError{Transport: true, Messages: []models.ItemMessage{{Message: err.Error()}}}
		return StateConfirmFailed
	}
	if errs := respConfirmErrors(resp); len(errs) > 0 {
		r.stepErr = &ConfirmError{Messages: planner.MapErrors(errs)}
		return StateConfirmFailed
	}
	return StateCommitted
}

// fromConfirmFailed still commits. The ERP already accepted the update and
// is authoritative; the planner discrepancy is flagged on the affected
// lines and recorded for manual reconciliation.
func (c *Coordinator) fromConfirmFailed(ctx context.Context, r *run) State {
	r.confirmFailed = true

	var confirmErr *ConfirmError
	if errors.As(r.stepErr, &confirmErr) {
		r.result.ConfirmFailedErrors = confirmErr.Messages
	}
	r.result.WarningMessages = append(r.result.WarningMessages,
		"planner confirmation failed after the order was updated; affected lines are flagged for reconciliation")

	c.compensation.MarkConfirmFailed(ctx, r.order.SoNo, r.headerCode, r.stepErr)
	return StateCommitted
}

// commit applies the change-set to the persisted order, recomputes statuses
// and attention flags, and commits the transaction.
func (c *Coordinator) commit(ctx context.Context, tx database.Tx, r *run) error {
	c.applyChangeSet(r)
	c.applyErpResponse(r)

	if r.confirmFailed {
		// R5 stays until a human clears it.
		for i := range r.lines {
			if _, ok := r.cs.Lines[r.lines[i].ItemNo]; ok {
				r.lines[i].AttentionType.Add(models.AttentionR5)
			}
		}
	}

	c.statusEngine.Recompute(r.order, r.lines)

	if err := c.orders.SaveOrder(ctx, r.order); err != nil {
		return err
	}
	if err := c.orders.SaveLines(ctx, r.order.ID, r.lines); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// applyChangeSet folds the settled change-set into the in-memory order.
func (c *Coordinator) applyChangeSet(r *run) {
	header := r.cs.Header
	if header.ChangedFields.Changed(models.FieldPONo) && header.PONo != nil {
		r.order.PONo = *header.PONo
	}
	if header.ChangedFields.Changed(models.FieldPaymentTerm) && header.PaymentTerm != nil {
		r.order.PaymentTerm = *header.PaymentTerm
	}
	if header.ChangedFields.Changed(models.FieldShipDate) && header.ShipDate != nil {
		r.order.ShipDate = header.ShipDate
	}

	byItemNo := make(map[string]int, len(r.lines))
	for i := range r.lines {
		byItemNo[r.lines[i].ItemNo] = i
	}

	now := time.Now().UTC()
	for _, itemNo := range r.cs.SortedItemNos() {
		change := r.cs.Lines[itemNo]

		switch change.Op {
		case models.ChangeOpDelete:
			if i, ok := byItemNo[itemNo]; ok {
				c.statusEngine.Advance(&r.lines[i], models.ItemStatusCancelled)
			}

		case models.ChangeOpInsert:
			line := models.OrderLine{
				ID:               uuid.New(),
				OrderID:          r.order.ID,
				ItemNo:           change.ItemNo,
				MaterialNo:       change.MaterialNo,
				ContractItemNo:   change.ContractItemNo,
				Quantity:         change.Quantity,
				OriginalQuantity: change.Quantity,
				RequestDate:      change.RequestDate,
				Plant:            change.Plant,
				ItemStatus:       models.ItemStatusCreated,
				AttentionType:    models.AttentionSet{},
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			applyReservation(&line, change, r.headerCode)
			if line.Reservation != nil {
				line.ItemStatus = models.ItemStatusAllocated
			}
			r.lines = append(r.lines, line)
			byItemNo[line.ItemNo] = len(r.lines) - 1

		case models.ChangeOpUpdate:
			i, ok := byItemNo[itemNo]
			if !ok {
				continue
			}
			line := &r.lines[i]
			if change.ChangedFields.Changed(models.FieldQuantity) {
				line.Quantity = change.Quantity
			}
			if change.ChangedFields.Changed(models.FieldRequestDate) {
				line.RequestDate = change.RequestDate
			}
			if change.ChangedFields.Changed(models.FieldPlant) {
				line.Plant = change.Plant
			}
			if change.ChangedFields.Changed(models.FieldMaterial) {
				line.MaterialNo = change.MaterialNo
			}
			applyReservation(line, change, r.headerCode)
			if line.Reservation != nil {
				c.statusEngine.Advance(line, models.ItemStatusAllocated)
			}
			line.UpdatedAt = now
		}
	}
}

// applyErpResponse folds the ERP's confirmed schedules back onto the lines.
func (c *Coordinator) applyErpResponse(r *run) {
	if r.erpResp == nil {
		return
	}

	byItemNo := make(map[string]*models.OrderLine, len(r.lines))
	for i := range r.lines {
		byItemNo[r.lines[i].ItemNo] = &r.lines[i]
	}

	for _, sched := range r.erpResp.OrderSchedulesOut {
		line, ok := byItemNo[sched.ItemNo]
		if !ok {
			continue
		}
		qty := sched.ConfirmedQuantity
		line.ErpConfirmedQuantity = &qty
		if sched.ConfirmedDate != "" {
			if d, err := time.Parse("2006-01-02", sched.ConfirmedDate); err == nil {
				line.ConfirmedDate = &d
			}
		}
		c.statusEngine.Advance(line, models.ItemStatusConfirmed)
	}
}

// applyReservation attaches the planner commitment from a change-set entry.
func applyReservation(line *models.OrderLine, change models.LineChange, headerCode string) {
	if change.ConfirmedQuantity == nil {
		return
	}
	code := change.PlannerHeaderCode
	if code == "" {
		code = headerCode
	}
	line.Reservation = &models.PlannerReservation{
		HeaderCode:        code,
		ConfirmedQuantity: *change.ConfirmedQuantity,
		OnHandStock:       change.OnHandStock,
		DispatchDate:      change.DispatchDate,
		Plant:             change.Plant,
	}
	if change.DispatchDate != nil {
		line.ConfirmedDate = change.DispatchDate
	}
}

func (c *Coordinator) logRemoteCall(ctx context.Context, r *run, system models.RemoteSystem, operation string, success bool, callErr error, retryRequired bool) {
	call := &models.RemoteCall{
		ID:            uuid.New(),
		SoNo:          r.order.SoNo,
		System:        system,
		Operation:     operation,
		HeaderCode:    r.headerCode,
		Success:       success,
		RetryRequired: retryRequired,
		CreatedAt:     time.Now().UTC(),
	}
	if callErr != nil {
		msg := callErr.Error()
		call.ErrorMessage = &msg
	}
	if err := c.remoteCalls.Log(ctx, call); err != nil {
		c.logger.WithContext(ctx).WithError(err).Errorf("Failed to log %s %s call for %s", system, operation, r.order.SoNo)
	}
}

// emitEvent publishes the terminal lifecycle event. Best effort; a Kafka
// outage never fails a settled saga.
func (c *Coordinator) emitEvent(ctx context.Context, r *run, state State) {
	if c.producer == nil {
		return
	}

	evt := &kafka.OrderChangeEventMessage{
		Type:    "order_change.committed",
		SoNo:    r.order.SoNo,
		SagaID:  r.sagaID,
		State:   string(state),
		Success: r.result.Success,
	}
	if !r.result.Success {
		evt.Type = "order_change.failed"
	}
	if r.stepErr != nil {
		evt.ErrorType = string(Classify(r.stepErr))
	}

	if err := c.producer.PublishOrderChangeEvent(ctx, evt); err != nil {
		c.logger.WithContext(ctx).WithError(err).Warnf("Failed to publish order change event for %s", r.order.SoNo)
	}
}

func respErrors(resp *planner.InquiryResponse) []planner.InquiryError {
	if resp == nil {
		return nil
	}
	return resp.Errors
}

func respConfirmErrors(resp *planner.ConfirmResponse) []planner.InquiryError {
	if resp == nil {
		return nil
	}
	return resp.Errors
}
