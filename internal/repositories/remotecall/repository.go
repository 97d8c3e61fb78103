package remotecall

import (
	"context"
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

// Repository persists the remote-call audit trail. Writes deliberately use
// the pool instead of the transaction in the context: the audit record of a
// failed saga must survive the saga's rollback.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new remote call repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Log records one outbound planner/ERP call.
func (r *Repository) Log(ctx context.Context, call *models.RemoteCall) error {
	ctx, span := tracing.StartSpan(ctx, "remotecall.Repository.Log")
	defer span.End()

	if call.ID == uuid.Nil {
		call.ID = uuid.New()
	}
	if call.CreatedAt.IsZero() {
		call.CreatedAt = time.Now().UTC()
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(models.RemoteCall{}.TableName())
	sb.Cols("id", "so_no", "system", "operation", "header_code", "success", "retry_required", "error_message", "created_at")
	sb.Values(call.ID, call.SoNo, call.System, call.Operation, call.HeaderCode, call.Success, call.RetryRequired, call.ErrorMessage, call.CreatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Errorf("Failed to log remote call for %s", call.SoNo)
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to log remote call")
	}
	return nil
}

// ListRetryRequired returns the calls awaiting manual reconciliation for an
// order, oldest first.
func (r *Repository) ListRetryRequired(ctx context.Context, soNo string) ([]models.RemoteCall, error) {
	ctx, span := tracing.StartSpan(ctx, "remotecall.Repository.ListRetryRequired")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "so_no", "system", "operation", "header_code", "success", "retry_required", "error_message", "created_at")
	sb.From(models.RemoteCall{}.TableName())
	sb.Where(
		sb.Equal("so_no", soNo),
		sb.Equal("retry_required", true),
	)
	sb.OrderBy("created_at")

	query, args := sb.Build()
	var calls []models.RemoteCall
	if err := r.db.SelectContext(ctx, &calls, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Errorf("Failed to list retry-required calls for %s", soNo)
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list remote calls")
	}
	return calls, nil
}

// Resolve clears the retry flag after a human reconciled the discrepancy.
func (r *Repository) Resolve(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "remotecall.Repository.Resolve")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(models.RemoteCall{}.TableName())
	ub.Set(ub.Assign("retry_required", false))
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Errorf("Failed to resolve remote call %s", id)
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve remote call")
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, "remote call not found")
	}
	return nil
}
