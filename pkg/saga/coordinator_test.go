package saga

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/aster/pkg/changeset"
	"github.com/Ramsey-B/aster/pkg/database"
	"github.com/Ramsey-B/aster/pkg/erp"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/planner"
)

func testLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func strPtr(s string) *string { return &s }

// fakeTx tracks commit/rollback without a real connection. The embedded
// interface panics on anything the coordinator should never touch.
type fakeTx struct {
	database.Tx
	open       bool
	committed  bool
	rolledBack bool
}

func (t *fakeTx) IsOpen() bool { return t.open }

func (t *fakeTx) Commit(ctx context.Context) error {
	t.open = false
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	t.open = false
	t.rolledBack = true
	return nil
}

type fakeDB struct {
	database.DB
	tx *fakeTx
}

func (d *fakeDB) GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error) {
	d.tx = &fakeTx{open: true}
	return ctx, d.tx, nil
}

type fakeOrderRepo struct {
	order    *models.Order
	lines    []models.OrderLine
	contract map[string]float64

	savedOrder *models.Order
	savedLines []models.OrderLine
}

func (r *fakeOrderRepo) GetBySoNo(ctx context.Context, soNo string) (*models.Order, []models.OrderLine, error) {
	if r.order == nil || r.order.SoNo != soNo {
		return nil, nil, nil
	}
	lines := make([]models.OrderLine, len(r.lines))
	copy(lines, r.lines)
	return r.order, lines, nil
}

func (r *fakeOrderRepo) ContractRemaining(ctx context.Context, contractNo string) (map[string]float64, error) {
	return r.contract, nil
}

func (r *fakeOrderRepo) SaveOrder(ctx context.Context, order *models.Order) error {
	r.savedOrder = order
	return nil
}

func (r *fakeOrderRepo) SaveLines(ctx context.Context, orderID uuid.UUID, lines []models.OrderLine) error {
	r.savedLines = lines
	return nil
}

type fakeRemoteCallRepo struct {
	calls []*models.RemoteCall
}

func (r *fakeRemoteCallRepo) Log(ctx context.Context, call *models.RemoteCall) error {
	r.calls = append(r.calls, call)
	return nil
}

func (r *fakeRemoteCallRepo) find(system models.RemoteSystem, operation string) *models.RemoteCall {
	for _, call := range r.calls {
		if call.System == system && call.Operation == operation {
			return call
		}
	}
	return nil
}

type fakePlanner struct {
	inquireResp *planner.InquiryResponse
	inquireErr  error
	confirmResp *planner.ConfirmResponse
	confirmErr  error

	inquiries []*planner.InquiryRequest
	confirms  []*planner.ConfirmRequest
}

func (p *fakePlanner) Inquire(ctx context.Context, req *planner.InquiryRequest) (*planner.InquiryResponse, error) {
	p.inquiries = append(p.inquiries, req)
	return p.inquireResp, p.inquireErr
}

func (p *fakePlanner) Confirm(ctx context.Context, req *planner.ConfirmRequest) (*planner.ConfirmResponse, error) {
	p.confirms = append(p.confirms, req)
	return p.confirmResp, p.confirmErr
}

type fakeErp struct {
	resp *erp.UpdateResponse
	err  error

	updates []*erp.UpdateRequest
}

func (e *fakeErp) UpdateOrder(ctx context.Context, req *erp.UpdateRequest) (*erp.UpdateResponse, error) {
	e.updates = append(e.updates, req)
	return e.resp, e.err
}

type fixture struct {
	db          *fakeDB
	orders      *fakeOrderRepo
	remoteCalls *fakeRemoteCallRepo
	planner     *fakePlanner
	erp         *fakeErp
	coordinator *Coordinator
}

func newFixture() *fixture {
	f := &fixture{
		db: &fakeDB{},
		orders: &fakeOrderRepo{
			order: &models.Order{
				ID:                      uuid.New(),
				SoNo:                    "SO-1001",
				Status:                  models.OrderStatusConfirmed,
				ProductGroup:            "packaging",
				SalesChannel:            models.ChannelDomestic,
				PONo:                    "PO-1",
				PaymentTerm:             "NET30",
				NeedsPlannerIntegration: true,
			},
			lines: []models.OrderLine{{
				ID:               uuid.New(),
				ItemNo:           "10",
				MaterialNo:       "MAT-A",
				Quantity:         50,
				OriginalQuantity: 50,
				RequestDate:      date(2026, time.March, 1),
				Plant:            "P100",
				ItemStatus:       models.ItemStatusConfirmed,
				AttentionType:    models.AttentionSet{},
			}},
		},
		remoteCalls: &fakeRemoteCallRepo{},
		planner: &fakePlanner{
			confirmResp: &planner.ConfirmResponse{},
		},
		erp: &fakeErp{
			resp: &erp.UpdateResponse{},
		},
	}
	f.coordinator = NewCoordinator(f.db, f.orders, f.remoteCalls, f.planner, f.erp, nil, testLogger())
	return f
}

// quantityChange requests a quantity bump on line 10, which runs the full
// planner path for a planner-integrated order.
func quantityChange() models.ChangeOrderRequest {
	return models.ChangeOrderRequest{
		SoNo: "SO-1001",
		Lines: []models.ChangeOrderLineRequest{{
			ItemNo:   "10",
			Quantity: 60,
		}},
	}
}

// plannerAccepts is the planner answering the quantityChange inquiry with a
// full commitment.
func plannerAccepts(f *fixture) {
	f.planner.inquireResp = &planner.InquiryResponse{
		ResponseLines: []planner.ResponseLine{{
			LineNumber:   "10",
			Quantity:     60,
			DispatchDate: "2026-03-10",
		}},
	}
}

func TestExecuteNoOp(t *testing.T) {
	f := newFixture()

	result, err := f.coordinator.Execute(context.Background(), models.ChangeOrderRequest{SoNo: "SO-1001"})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, f.planner.inquiries)
	assert.Empty(t, f.erp.updates)
	assert.Empty(t, f.remoteCalls.calls)
	assert.False(t, f.db.tx.committed, "a no-op writes nothing")
}

func TestExecuteOrderNotFound(t *testing.T) {
	f := newFixture()

	_, err := f.coordinator.Execute(context.Background(), models.ChangeOrderRequest{SoNo: "SO-9999"})

	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestExecuteOrderNotEditable(t *testing.T) {
	f := newFixture()
	f.orders.order.Status = models.OrderStatusCancelled

	_, err := f.coordinator.Execute(context.Background(), quantityChange())

	assert.ErrorIs(t, err, ErrOrderNotEditable)
}

func TestExecuteValidationErrorBlocksSaga(t *testing.T) {
	f := newFixture()

	req := models.ChangeOrderRequest{
		SoNo: "SO-1001",
		Lines: []models.ChangeOrderLineRequest{{
			ItemNo:    "99",
			Operation: models.LineOperationDelete,
		}},
	}
	_, err := f.coordinator.Execute(context.Background(), req)

	var validationErr *changeset.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Empty(t, f.planner.inquiries, "validation failures never reach a remote system")
	assert.Empty(t, f.erp.updates)
	assert.Empty(t, f.remoteCalls.calls)
}

func TestExecutePlannerRejectionAborts(t *testing.T) {
	f := newFixture()
	f.planner.inquireResp = &planner.InquiryResponse{
		Errors: []planner.InquiryError{{ItemNo: "10", FirstCode: "CAP", SecondCode: "001", Message: "no capacity"}},
	}

	result, err := f.coordinator.Execute(context.Background(), quantityChange())

	require.NoError(t, err)
	assert.False(t, result.Success)
	require.Len(t, result.PlannerMessages, 1)
	assert.Equal(t, "no capacity", result.PlannerMessages[0].Message)

	// Nothing was reserved, so nothing is compensated.
	assert.Empty(t, f.planner.confirms)
	assert.Empty(t, f.erp.updates)
	assert.True(t, f.db.tx.rolledBack)

	inquiry := f.remoteCalls.find(models.RemoteSystemPlanner, "inquiry")
	require.NotNil(t, inquiry)
	assert.False(t, inquiry.Success)
}

func TestExecutePlannerTransportFailureAborts(t *testing.T) {
	f := newFixture()
	f.planner.inquireErr = errors.New("connection refused")

	result, err := f.coordinator.Execute(context.Background(), quantityChange())

	require.NoError(t, err)
	assert.False(t, result.Success)
	require.Len(t, result.PlannerMessages, 1)
	assert.Contains(t, result.PlannerMessages[0].Message, "connection refused")
	assert.Empty(t, f.erp.updates)
}

func TestExecuteNilPlannerResponseAborts(t *testing.T) {
	f := newFixture()
	f.planner.inquireResp = nil

	result, err := f.coordinator.Execute(context.Background(), quantityChange())

	require.NoError(t, err)
	assert.False(t, result.Success)
	require.Len(t, result.PlannerMessages, 1)
	assert.Contains(t, result.PlannerMessages[0].Message, "empty response")
	assert.Empty(t, f.erp.updates)
}

func TestExecuteNilConfirmResponseCommits(t *testing.T) {
	f := newFixture()
	plannerAccepts(f)
	f.planner.confirmResp = nil

	result, err := f.coordinator.Execute(context.Background(), quantityChange())

	require.NoError(t, err)
	// A silent confirm ack carries no errors to act on.
	assert.True(t, result.Success)
	assert.Empty(t, result.ConfirmFailedErrors)
	assert.True(t, f.db.tx.committed)
	require.Len(t, f.orders.savedLines, 1)
	assert.False(t, f.orders.savedLines[0].AttentionType.Has(models.AttentionR5))
}

func TestExecuteNilErpResponseRollsBack(t *testing.T) {
	f := newFixture()
	plannerAccepts(f)
	f.erp.resp = nil

	result, err := f.coordinator.Execute(context.Background(), quantityChange())

	require.NoError(t, err)
	assert.False(t, result.Success)
	require.Len(t, result.ErpOrderMessages, 1)
	assert.Contains(t, result.ErpOrderMessages[0].Message, "empty response")
	require.Len(t, f.planner.confirms, 1)
	assert.Equal(t, planner.CommitFlagRollback, f.planner.confirms[0].CommitFlag)
	assert.True(t, f.db.tx.rolledBack)
}

func TestExecuteErpFailureCompensatesPlanner(t *testing.T) {
	f := newFixture()
	plannerAccepts(f)
	f.erp.resp = &erp.UpdateResponse{
		ItemMessages: []erp.ReturnMessage{{Type: erp.MessageTypeError, ItemNo: "10", Code: "V1/398", Message: "item rejected"}},
	}

	result, err := f.coordinator.Execute(context.Background(), quantityChange())

	require.NoError(t, err)
	assert.False(t, result.Success)
	require.Len(t, result.ErpItemMessages, 1)
	assert.Equal(t, "item rejected", result.ErpItemMessages[0].Message)

	// The reservation made earlier in this saga is released.
	require.Len(t, f.planner.confirms, 1)
	assert.Equal(t, planner.CommitFlagRollback, f.planner.confirms[0].CommitFlag)
	assert.True(t, f.db.tx.rolledBack)
	assert.Nil(t, f.orders.savedOrder, "nothing is persisted on a rolled back saga")

	rollback := f.remoteCalls.find(models.RemoteSystemPlanner, "rollback")
	require.NotNil(t, rollback)
	assert.True(t, rollback.Success)
}

func TestExecuteConfirmFailureStillCommits(t *testing.T) {
	f := newFixture()
	plannerAccepts(f)
	f.planner.confirmResp = &planner.ConfirmResponse{
		Errors: []planner.InquiryError{{ItemNo: "10", Message: "reservation expired"}},
	}

	result, err := f.coordinator.Execute(context.Background(), quantityChange())

	require.NoError(t, err)
	// The ERP already accepted the update and is authoritative.
	assert.True(t, result.Success)
	require.Len(t, result.ConfirmFailedErrors, 1)
	assert.NotEmpty(t, result.WarningMessages)
	assert.True(t, f.db.tx.committed)

	require.NotNil(t, f.orders.savedLines)
	require.Len(t, f.orders.savedLines, 1)
	assert.True(t, f.orders.savedLines[0].AttentionType.Has(models.AttentionR5))

	reconcile := f.remoteCalls.find(models.RemoteSystemPlanner, "confirm_failed")
	require.NotNil(t, reconcile)
	assert.True(t, reconcile.RetryRequired)
}

func TestExecuteHappyPath(t *testing.T) {
	f := newFixture()
	plannerAccepts(f)
	f.erp.resp = &erp.UpdateResponse{
		OrderSchedulesOut: []erp.OrderScheduleOut{{
			ItemNo:            "10",
			ScheduleLine:      "0001",
			ConfirmedQuantity: 60,
			ConfirmedDate:     "2026-03-10",
		}},
		OrderMessages: []erp.ReturnMessage{{Type: erp.MessageTypeSuccess, Code: "V1/311", Message: "Order changed"}},
	}

	req := quantityChange()
	req.PONo = strPtr("PO-2")

	result, err := f.coordinator.Execute(context.Background(), req)

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Contains(t, result.WarningMessages, "Order changed")
	assert.True(t, f.db.tx.committed)

	// Planner inquiry, then ERP update, then planner commit.
	require.Len(t, f.planner.inquiries, 1)
	require.Len(t, f.erp.updates, 1)
	require.Len(t, f.planner.confirms, 1)
	assert.Equal(t, planner.CommitFlagCommit, f.planner.confirms[0].CommitFlag)
	assert.Equal(t, f.planner.inquiries[0].HeaderCode, f.planner.confirms[0].HeaderCode)

	require.NotNil(t, f.orders.savedOrder)
	assert.Equal(t, "PO-2", f.orders.savedOrder.PONo)

	require.Len(t, f.orders.savedLines, 1)
	line := f.orders.savedLines[0]
	assert.Equal(t, 60.0, line.Quantity)
	require.NotNil(t, line.Reservation)
	assert.Equal(t, 60.0, line.Reservation.ConfirmedQuantity)
	require.NotNil(t, line.ErpConfirmedQuantity)
	assert.Equal(t, 60.0, *line.ErpConfirmedQuantity)
	require.NotNil(t, line.ConfirmedDate)
	assert.Equal(t, models.ItemStatusConfirmed, line.ItemStatus)
	assert.False(t, line.AttentionType.Has(models.AttentionR5))

	for _, call := range f.remoteCalls.calls {
		assert.True(t, call.Success, "operation %s should be recorded successful", call.Operation)
		assert.False(t, call.RetryRequired)
	}
	assert.Len(t, f.remoteCalls.calls, 3)
}

func TestExecuteHeaderOnlyChangeSkipsPlanner(t *testing.T) {
	f := newFixture()

	req := models.ChangeOrderRequest{
		SoNo: "SO-1001",
		PONo: strPtr("PO-2"),
	}
	result, err := f.coordinator.Execute(context.Background(), req)

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, f.planner.inquiries, "header edits never reach the planner")
	assert.Empty(t, f.planner.confirms)
	require.Len(t, f.erp.updates, 1)
	assert.True(t, f.erp.updates[0].OrderHeaderInX.PONo)
	assert.True(t, f.db.tx.committed)
}

func TestExecuteNonPlannerOrderSkipsPlanner(t *testing.T) {
	f := newFixture()
	f.orders.order.NeedsPlannerIntegration = false

	result, err := f.coordinator.Execute(context.Background(), quantityChange())

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, f.planner.inquiries)
	assert.Empty(t, f.planner.confirms)
	require.Len(t, f.erp.updates, 1)
	assert.True(t, f.db.tx.committed)

	require.Len(t, f.orders.savedLines, 1)
	assert.Equal(t, 60.0, f.orders.savedLines[0].Quantity)
	assert.Nil(t, f.orders.savedLines[0].Reservation)
}
