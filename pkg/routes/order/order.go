package order

import (
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectolinq"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	orderrepo "github.com/Ramsey-B/aster/internal/repositories/order"
	"github.com/Ramsey-B/aster/internal/repositories/remotecall"
	"github.com/Ramsey-B/aster/pkg/changeset"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/redis"
	"github.com/Ramsey-B/aster/pkg/saga"
	"github.com/Ramsey-B/aster/pkg/utils"
)

// Register registers order routes
func Register(g *echo.Group) {
	g.GET("/:so_no", GetOrder)
	g.POST("/:so_no/changes", ChangeOrder)
	g.GET("/:so_no/remote-calls", ListRetryRequired)
	g.POST("/:so_no/remote-calls/:id/resolve", ResolveRemoteCall)
	g.DELETE("/:so_no/lines/:item_no/attention/:flag", ClearAttention)
}

// OrderResponse is an order with its lines.
type OrderResponse struct {
	Order *models.Order      `json:"order"`
	Lines []models.OrderLine `json:"lines"`
}

// GetOrder returns an order and its lines
func GetOrder(c echo.Context) error {
	ctx := c.Request().Context()
	soNo := c.Param("so_no")

	ctx, repo, err := ectoinject.GetContext[*orderrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	order, lines, err := repo.GetBySoNo(ctx, soNo)
	if err != nil {
		return err
	}
	if order == nil {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "order %s not found", soNo)
	}

	return c.JSON(http.StatusOK, OrderResponse{Order: order, Lines: lines})
}

// ChangeOrder runs an order change saga. At most one change per order runs
// at a time; a concurrent request gets a 409 instead of queueing.
func ChangeOrder(c echo.Context) error {
	ctx := c.Request().Context()

	req, err := utils.BindRequest[models.ChangeOrderRequest](c)
	if err != nil {
		return err
	}
	req.SoNo = c.Param("so_no")
	if req.SoNo == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "so_no is required")
	}

	ctx, locker, err := ectoinject.GetContext[*redis.OrderLocker](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	lock, err := locker.Acquire(ctx, req.SoNo)
	if err != nil {
		if errors.Is(err, redis.ErrOrderBusy) {
			return httperror.NewHTTPError(http.StatusConflict, err.Error())
		}
		return err
	}
	defer lock.Release(ctx)

	ctx, coordinator, err := ectoinject.GetContext[*saga.Coordinator](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := coordinator.Execute(ctx, req)
	if err != nil {
		var validationErr *changeset.ValidationError
		switch {
		case errors.As(err, &validationErr):
			return c.JSON(http.StatusBadRequest, map[string]any{
				"success":           false,
				"validation_errors": validationErr.Messages,
			})
		case errors.Is(err, saga.ErrOrderNotFound):
			return httperror.NewHTTPErrorf(http.StatusNotFound, "order %s not found", req.SoNo)
		case errors.Is(err, saga.ErrOrderNotEditable):
			return httperror.NewHTTPErrorf(http.StatusConflict, "order %s can no longer be changed", req.SoNo)
		}
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// ListRetryRequired lists the order's remote calls awaiting reconciliation
func ListRetryRequired(c echo.Context) error {
	ctx := c.Request().Context()
	soNo := c.Param("so_no")

	ctx, repo, err := ectoinject.GetContext[*remotecall.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	calls, err := repo.ListRetryRequired(ctx, soNo)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, calls)
}

// ResolveRemoteCall marks a retry-required remote call as reconciled
func ResolveRemoteCall(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperror.WrapError(http.StatusBadRequest, err)
	}

	ctx, repo, err := ectoinject.GetContext[*remotecall.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if err := repo.Resolve(ctx, id); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

// ClearAttention clears one attention flag on a line after manual review.
func ClearAttention(c echo.Context) error {
	ctx := c.Request().Context()
	soNo := c.Param("so_no")
	itemNo := c.Param("item_no")

	flag, err := models.ParseAttentionFlag(c.Param("flag"))
	if err != nil {
		return httperror.WrapError(http.StatusBadRequest, err)
	}

	ctx, repo, err := ectoinject.GetContext[*orderrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	order, lines, err := repo.GetBySoNo(ctx, soNo)
	if err != nil {
		return err
	}
	if order == nil {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "order %s not found", soNo)
	}

	line := ectolinq.Find(lines, func(line models.OrderLine) bool {
		return line.ItemNo == itemNo
	})
	if ectolinq.IsEmpty(line) {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "line %s not found on order %s", itemNo, soNo)
	}

	line.AttentionType.Remove(flag)
	if err := repo.UpdateAttention(ctx, order.ID, itemNo, line.AttentionType); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"item_no":        itemNo,
		"attention_type": line.AttentionType,
	})
}
