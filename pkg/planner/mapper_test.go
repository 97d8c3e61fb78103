package planner

import (
	"strings"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/aster/pkg/channel"
	"github.com/Ramsey-B/aster/pkg/models"
)

func testLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestNewHeaderCode(t *testing.T) {
	code := NewHeaderCode("SO-1001")
	assert.True(t, strings.HasPrefix(code, "SO-1001-"))
	assert.NotEqual(t, code, NewHeaderCode("SO-1001"), "header codes must be unique per inquiry")
}

func TestBuildInquiry(t *testing.T) {
	m := NewMapper(testLogger())
	order := &models.Order{SoNo: "SO-1001", SalesChannel: models.ChannelDomestic}

	cs := models.NewChangeSet("SO-1001")
	cs.Lines["10"] = models.LineChange{
		ItemNo:      "10",
		Op:          models.ChangeOpUpdate,
		MaterialNo:  "MAT-A",
		Quantity:    50,
		RequestDate: date(2026, time.March, 1),
	}
	cs.Lines["20"] = models.LineChange{
		ItemNo:     "20",
		Op:         models.ChangeOpDelete,
		MaterialNo: "MAT-B",
	}

	req := m.BuildInquiry(order, cs, channel.ForOrder(order))

	assert.NotEmpty(t, req.HeaderCode)
	// Deleted lines are not re-inquired.
	require.Len(t, req.Lines, 1)

	line := req.Lines[0]
	assert.Equal(t, "10", line.LineNumber)
	assert.Equal(t, "MAT-A", line.ProductCode)
	assert.Equal(t, 50.0, line.RequestedQuantity)
	assert.Equal(t, "2026-03-01", line.RequestDate)
	// Domestic channel checks inventory and splits by date.
	assert.True(t, line.UseInventory)
	assert.True(t, line.UseConsignmentInventory)
	assert.Equal(t, channel.SplitByDate, line.OrderSplitLogic)
}

func TestBuildInquiryExportChannel(t *testing.T) {
	m := NewMapper(testLogger())
	order := &models.Order{SoNo: "SO-2001", SalesChannel: models.ChannelExport}

	cs := models.NewChangeSet("SO-2001")
	cs.Lines["10"] = models.LineChange{ItemNo: "10", Op: models.ChangeOpUpdate, Quantity: 10}

	req := m.BuildInquiry(order, cs, channel.ForOrder(order))
	require.Len(t, req.Lines, 1)

	// Export orders plan from production only and never split.
	assert.False(t, req.Lines[0].UseInventory)
	assert.False(t, req.Lines[0].UseConsignmentInventory)
	assert.Equal(t, channel.NoSplit, req.Lines[0].OrderSplitLogic)
}

func TestApplyResponseFoldsCommitments(t *testing.T) {
	m := NewMapper(testLogger())

	cs := models.NewChangeSet("SO-1001")
	cs.Lines["10"] = models.LineChange{
		ItemNo:        "10",
		Op:            models.ChangeOpUpdate,
		MaterialNo:    "MAT-A",
		Quantity:      50,
		Plant:         "P01",
		ChangedFields: models.NewFieldSet(models.FieldQuantity),
	}

	resp := &InquiryResponse{
		HeaderCode: "SO-1001-abc",
		ResponseLines: []ResponseLine{
			{LineNumber: "10", Quantity: 50, DispatchDate: "2026-03-10", WarehouseCode: "P01", OnHandStock: true},
		},
	}

	out, err := m.ApplyResponse(cs, resp, nil)
	require.NoError(t, err)

	change := out.Lines["10"]
	assert.Equal(t, "SO-1001-abc", change.PlannerHeaderCode)
	require.NotNil(t, change.ConfirmedQuantity)
	assert.Equal(t, 50.0, *change.ConfirmedQuantity)
	assert.True(t, change.OnHandStock)
	require.NotNil(t, change.DispatchDate)
	assert.Equal(t, "2026-03-10", change.DispatchDate.Format("2006-01-02"))

	// The original change-set is not mutated.
	assert.Empty(t, cs.Lines["10"].PlannerHeaderCode)
}

func TestApplyResponseSplitsLine(t *testing.T) {
	m := NewMapper(testLogger())

	lines := []models.OrderLine{
		{ItemNo: "10", Quantity: 50},
		{ItemNo: "20", Quantity: 30},
	}

	cs := models.NewChangeSet("SO-1001")
	cs.Lines["10"] = models.LineChange{
		ItemNo:         "10",
		Op:             models.ChangeOpUpdate,
		MaterialNo:     "MAT-A",
		ContractItemNo: "C-50-10",
		Quantity:       50,
		Plant:          "P01",
		ChangedFields:  models.NewFieldSet(models.FieldQuantity),
	}

	// The planner can fill 30 from stock now and 20 from production later.
	resp := &InquiryResponse{
		HeaderCode: "SO-1001-abc",
		ResponseLines: []ResponseLine{
			{LineNumber: "10", Quantity: 30, DispatchDate: "2026-03-10", WarehouseCode: "P01", OnHandStock: true},
			{LineNumber: "10.1", Quantity: 20, DispatchDate: "2026-04-02", WarehouseCode: "P02"},
		},
	}

	out, err := m.ApplyResponse(cs, resp, lines)
	require.NoError(t, err)
	require.Len(t, out.Lines, 2)

	parent := out.Lines["10"]
	assert.Equal(t, 30.0, parent.Quantity)
	assert.True(t, parent.ChangedFields.Changed(models.FieldQuantity))

	// New item number is the next multiple of 10 above the current max (20).
	child, ok := out.Lines["30"]
	require.True(t, ok, "split child should be minted as item 30")
	assert.Equal(t, models.ChangeOpInsert, child.Op)
	assert.Equal(t, "10", child.ParentItemNo)
	assert.Equal(t, 20.0, child.Quantity)
	assert.Equal(t, "MAT-A", child.MaterialNo)
	assert.Equal(t, "C-50-10", child.ContractItemNo)
	assert.Equal(t, "P02", child.Plant)
	assert.Equal(t, "SO-1001-abc", child.PlannerHeaderCode)

	// Quantity is conserved across the split.
	assert.Equal(t, cs.Lines["10"].Quantity, parent.Quantity+child.Quantity)
}

func TestApplyResponseSplitWithoutParent(t *testing.T) {
	m := NewMapper(testLogger())

	cs := models.NewChangeSet("SO-1001")
	cs.Lines["10"] = models.LineChange{ItemNo: "10", Op: models.ChangeOpUpdate, Quantity: 50}

	// Only suffixed children, no re-confirmed parent line: accepting this
	// would leave the original quantity on line 10 and double-count.
	resp := &InquiryResponse{
		HeaderCode: "SO-1001-abc",
		ResponseLines: []ResponseLine{
			{LineNumber: "10.1", Quantity: 30, DispatchDate: "2026-03-10"},
			{LineNumber: "10.2", Quantity: 20, DispatchDate: "2026-04-02"},
		},
	}

	_, err := m.ApplyResponse(cs, resp, []models.OrderLine{{ItemNo: "10", Quantity: 50}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "without re-confirming parent")
}

func TestApplyResponseQuantityConservation(t *testing.T) {
	m := NewMapper(testLogger())

	cs := models.NewChangeSet("SO-1001")
	cs.Lines["10"] = models.LineChange{ItemNo: "10", Op: models.ChangeOpUpdate, Quantity: 50}

	resp := &InquiryResponse{
		HeaderCode: "SO-1001-abc",
		ResponseLines: []ResponseLine{
			{LineNumber: "10", Quantity: 30},
			{LineNumber: "10.1", Quantity: 10},
		},
	}

	_, err := m.ApplyResponse(cs, resp, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sum to")
}

func TestApplyResponseUnknownLine(t *testing.T) {
	m := NewMapper(testLogger())

	cs := models.NewChangeSet("SO-1001")
	cs.Lines["10"] = models.LineChange{ItemNo: "10", Op: models.ChangeOpUpdate, Quantity: 50}

	resp := &InquiryResponse{
		ResponseLines: []ResponseLine{{LineNumber: "70", Quantity: 50}},
	}

	_, err := m.ApplyResponse(cs, resp, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no matching change-set item")
}

func TestMapErrors(t *testing.T) {
	messages := MapErrors([]InquiryError{
		{ItemNo: "10", FirstCode: "CAP", SecondCode: "001", Message: "no capacity"},
		{ItemNo: "20", FirstCode: "MAT", Message: "unknown material"},
	})

	require.Len(t, messages, 2)
	assert.Equal(t, "CAP/001", messages[0].Code)
	assert.Equal(t, "no capacity", messages[0].Message)
	assert.Equal(t, "MAT", messages[1].Code)
}
