package order

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/aster/pkg/database"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

// Repository handles order and order-line persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new order repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// executor is the sqlx surface shared by the pool and a transaction.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
}

// exec returns the open transaction carried in the context, or the pool.
func (r *Repository) exec(ctx context.Context) executor {
	if tx, ok := database.TxFromContext(ctx); ok && tx.IsOpen() {
		return tx
	}
	return r.db
}

// lineRow is the flat row shape of order_lines. The planner reservation
// columns are nullable and folded into OrderLine.Reservation on read.
type lineRow struct {
	ID               uuid.UUID           `db:"id"`
	OrderID          uuid.UUID           `db:"order_id"`
	ItemNo           string              `db:"item_no"`
	MaterialNo       string              `db:"material_no"`
	ContractItemNo   string              `db:"contract_item_no"`
	Quantity         float64             `db:"quantity"`
	OriginalQuantity float64             `db:"original_quantity"`
	RequestDate      *time.Time          `db:"request_date"`
	ConfirmedDate    *time.Time          `db:"confirmed_date"`
	Plant            string              `db:"plant"`
	ItemStatus       models.ItemStatus   `db:"item_status"`
	AttentionType    models.AttentionSet `db:"attention_type"`
	Draft            bool                `db:"draft"`
	ErpConfirmedQty  *float64            `db:"erp_confirmed_qty"`

	PlannerHeaderCode   *string    `db:"planner_header_code"`
	PlannerConfirmedQty *float64   `db:"planner_confirmed_qty"`
	PlannerOnHandStock  *bool      `db:"planner_on_hand_stock"`
	PlannerDispatchDate *time.Time `db:"planner_dispatch_date"`
	PlannerPlant        *string    `db:"planner_plant"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (row lineRow) toModel() models.OrderLine {
	line := models.OrderLine{
		ID:                   row.ID,
		OrderID:              row.OrderID,
		ItemNo:               row.ItemNo,
		MaterialNo:           row.MaterialNo,
		ContractItemNo:       row.ContractItemNo,
		Quantity:             row.Quantity,
		OriginalQuantity:     row.OriginalQuantity,
		RequestDate:          row.RequestDate,
		ConfirmedDate:        row.ConfirmedDate,
		Plant:                row.Plant,
		ItemStatus:           row.ItemStatus,
		AttentionType:        row.AttentionType,
		Draft:                row.Draft,
		ErpConfirmedQuantity: row.ErpConfirmedQty,
		CreatedAt:            row.CreatedAt,
		UpdatedAt:            row.UpdatedAt,
	}
	if line.AttentionType == nil {
		line.AttentionType = models.AttentionSet{}
	}
	if row.PlannerHeaderCode != nil && row.PlannerConfirmedQty != nil {
		line.Reservation = &models.PlannerReservation{
			HeaderCode:        *row.PlannerHeaderCode,
			ConfirmedQuantity: *row.PlannerConfirmedQty,
			DispatchDate:      row.PlannerDispatchDate,
		}
		if row.PlannerOnHandStock != nil {
			line.Reservation.OnHandStock = *row.PlannerOnHandStock
		}
		if row.PlannerPlant != nil {
			line.Reservation.Plant = *row.PlannerPlant
		}
	}
	return line
}

func fromModel(line models.OrderLine) lineRow {
	row := lineRow{
		ID:               line.ID,
		OrderID:          line.OrderID,
		ItemNo:           line.ItemNo,
		MaterialNo:       line.MaterialNo,
		ContractItemNo:   line.ContractItemNo,
		Quantity:         line.Quantity,
		OriginalQuantity: line.OriginalQuantity,
		RequestDate:      line.RequestDate,
		ConfirmedDate:    line.ConfirmedDate,
		Plant:            line.Plant,
		ItemStatus:       line.ItemStatus,
		AttentionType:    line.AttentionType,
		Draft:            line.Draft,
		ErpConfirmedQty:  line.ErpConfirmedQuantity,
		CreatedAt:        line.CreatedAt,
		UpdatedAt:        line.UpdatedAt,
	}
	if line.Reservation != nil {
		row.PlannerHeaderCode = &line.Reservation.HeaderCode
		row.PlannerConfirmedQty = &line.Reservation.ConfirmedQuantity
		row.PlannerOnHandStock = &line.Reservation.OnHandStock
		row.PlannerDispatchDate = line.Reservation.DispatchDate
		row.PlannerPlant = &line.Reservation.Plant
	}
	return row
}

const lineColumns = "id, order_id, item_no, material_no, contract_item_no, quantity, original_quantity, request_date, confirmed_date, plant, item_status, attention_type, draft, erp_confirmed_qty, planner_header_code, planner_confirmed_qty, planner_on_hand_stock, planner_dispatch_date, planner_plant, created_at, updated_at"

// GetBySoNo retrieves an order and its lines. Returns (nil, nil, nil) when
// the order does not exist.
func (r *Repository) GetBySoNo(ctx context.Context, soNo string) (*models.Order, []models.OrderLine, error) {
	ctx, span := tracing.StartSpan(ctx, "order.Repository.GetBySoNo")
	defer span.End()

	ex := r.exec(ctx)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "so_no", "status", "product_group", "sales_channel", "contract_no", "po_no", "payment_term", "ship_date", "needs_planner_integration", "created_at", "updated_at")
	sb.From("orders")
	sb.Where(sb.Equal("so_no", soNo))

	query, args := sb.Build()
	var order models.Order
	if err := ex.GetContext(ctx, &order, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Errorf("Failed to get order %s", soNo)
		return nil, nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get order")
	}

	lsb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	lsb.Select(lineColumns)
	lsb.From("order_lines")
	lsb.Where(lsb.Equal("order_id", order.ID))
	lsb.OrderBy("item_no")

	query, args = lsb.Build()
	var rows []lineRow
	if err := ex.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Errorf("Failed to get lines for order %s", soNo)
		return nil, nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get order lines")
	}

	lines := make([]models.OrderLine, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, row.toModel())
	}

	return &order, lines, nil
}

// ContractRemaining returns the remaining (unallocated) quantity per
// contract item for a contract.
func (r *Repository) ContractRemaining(ctx context.Context, contractNo string) (map[string]float64, error) {
	ctx, span := tracing.StartSpan(ctx, "order.Repository.ContractRemaining")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("contract_item_no", "remaining_quantity")
	sb.From("contract_items")
	sb.Where(sb.Equal("contract_no", contractNo))

	query, args := sb.Build()
	var rows []struct {
		ContractItemNo    string  `db:"contract_item_no"`
		RemainingQuantity float64 `db:"remaining_quantity"`
	}
	if err := r.exec(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Errorf("Failed to get contract items for %s", contractNo)
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get contract items")
	}

	remaining := make(map[string]float64, len(rows))
	for _, row := range rows {
		remaining[row.ContractItemNo] = row.RemainingQuantity
	}
	return remaining, nil
}

// SaveOrder writes the order header fields the saga may change.
func (r *Repository) SaveOrder(ctx context.Context, order *models.Order) error {
	ctx, span := tracing.StartSpan(ctx, "order.Repository.SaveOrder")
	defer span.End()

	order.UpdatedAt = time.Now().UTC()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("orders")
	ub.Set(
		ub.Assign("status", order.Status),
		ub.Assign("po_no", order.PONo),
		ub.Assign("payment_term", order.PaymentTerm),
		ub.Assign("ship_date", order.ShipDate),
		ub.Assign("updated_at", order.UpdatedAt),
	)
	ub.Where(ub.Equal("id", order.ID))

	query, args := ub.Build()
	if _, err := r.exec(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Errorf("Failed to save order %s", order.SoNo)
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to save order")
	}
	return nil
}

const upsertLineQuery = `
INSERT INTO order_lines (
	id, order_id, item_no, material_no, contract_item_no, quantity, original_quantity,
	request_date, confirmed_date, plant, item_status, attention_type, draft, erp_confirmed_qty,
	planner_header_code, planner_confirmed_qty, planner_on_hand_stock, planner_dispatch_date, planner_plant,
	created_at, updated_at
) VALUES (
	:id, :order_id, :item_no, :material_no, :contract_item_no, :quantity, :original_quantity,
	:request_date, :confirmed_date, :plant, :item_status, :attention_type, :draft, :erp_confirmed_qty,
	:planner_header_code, :planner_confirmed_qty, :planner_on_hand_stock, :planner_dispatch_date, :planner_plant,
	:created_at, :updated_at
)
ON CONFLICT (order_id, item_no) DO UPDATE SET
	material_no = EXCLUDED.material_no,
	quantity = EXCLUDED.quantity,
	request_date = EXCLUDED.request_date,
	confirmed_date = EXCLUDED.confirmed_date,
	plant = EXCLUDED.plant,
	item_status = EXCLUDED.item_status,
	attention_type = EXCLUDED.attention_type,
	draft = EXCLUDED.draft,
	erp_confirmed_qty = EXCLUDED.erp_confirmed_qty,
	planner_header_code = EXCLUDED.planner_header_code,
	planner_confirmed_qty = EXCLUDED.planner_confirmed_qty,
	planner_on_hand_stock = EXCLUDED.planner_on_hand_stock,
	planner_dispatch_date = EXCLUDED.planner_dispatch_date,
	planner_plant = EXCLUDED.planner_plant,
	updated_at = EXCLUDED.updated_at`

// SaveLines upserts the order's lines, keyed by (order_id, item_no) so
// split children minted during the saga insert cleanly.
func (r *Repository) SaveLines(ctx context.Context, orderID uuid.UUID, lines []models.OrderLine) error {
	ctx, span := tracing.StartSpan(ctx, "order.Repository.SaveLines")
	defer span.End()

	ex := r.exec(ctx)
	now := time.Now().UTC()

	for i := range lines {
		lines[i].OrderID = orderID
		lines[i].UpdatedAt = now
		if lines[i].CreatedAt.IsZero() {
			lines[i].CreatedAt = now
		}

		if _, err := ex.NamedExecContext(ctx, upsertLineQuery, fromModel(lines[i])); err != nil {
			r.logger.WithContext(ctx).WithError(err).Errorf("Failed to save line %s of order %s", lines[i].ItemNo, orderID)
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to save order lines")
		}
	}
	return nil
}

// UpdateAttention writes just a line's attention flags, used by the manual
// reconciliation flow to clear R5 without touching anything else.
func (r *Repository) UpdateAttention(ctx context.Context, orderID uuid.UUID, itemNo string, attention models.AttentionSet) error {
	ctx, span := tracing.StartSpan(ctx, "order.Repository.UpdateAttention")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("order_lines")
	ub.Set(
		ub.Assign("attention_type", attention),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("order_id", orderID),
		ub.Equal("item_no", itemNo),
	)

	query, args := ub.Build()
	result, err := r.exec(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Errorf("Failed to update attention for line %s", itemNo)
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update attention flags")
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, "order line not found")
	}
	return nil
}
