package order

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/utils"
)

func changeContext(t *testing.T, body string) echo.Context {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/SO-1001/changes", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := echo.New().NewContext(req, httptest.NewRecorder())
	c.SetParamNames("so_no")
	c.SetParamValues("SO-1001")
	return c
}

func TestChangeOrderBindsSoNoFromPath(t *testing.T) {
	c := changeContext(t, `{"lines":[{"item_no":"10","quantity":60}]}`)

	req, err := utils.BindRequest[models.ChangeOrderRequest](c)
	require.NoError(t, err, "a body without so_no must bind against the path param")

	assert.Equal(t, "SO-1001", req.SoNo)
	require.Len(t, req.Lines, 1)
	assert.Equal(t, "10", req.Lines[0].ItemNo)
	assert.Equal(t, 60.0, req.Lines[0].Quantity)
}

func TestChangeOrderPathOverridesBodySoNo(t *testing.T) {
	c := changeContext(t, `{"so_no":"SO-9999","lines":[{"item_no":"10","quantity":60}]}`)

	req, err := utils.BindRequest[models.ChangeOrderRequest](c)
	require.NoError(t, err)

	// The handler re-asserts the path value after binding.
	req.SoNo = c.Param("so_no")
	assert.Equal(t, "SO-1001", req.SoNo)
}

func TestChangeOrderRejectsInvalidLine(t *testing.T) {
	c := changeContext(t, `{"lines":[{"item_no":"10","quantity":-5}]}`)

	_, err := utils.BindRequest[models.ChangeOrderRequest](c)
	require.Error(t, err)
}
