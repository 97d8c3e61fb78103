package changeset

import (
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

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

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }
func boolPtr(b bool) *bool        { return &b }

func testOrder() *models.Order {
	return &models.Order{
		SoNo:        "SO-1001",
		Status:      models.OrderStatusConfirmed,
		ContractNo:  "C-50",
		PONo:        "PO-1",
		PaymentTerm: "NET30",
		ShipDate:    date(2026, time.March, 15),
	}
}

func testLines() []models.OrderLine {
	return []models.OrderLine{
		{
			ItemNo:           "10",
			MaterialNo:       "MAT-A",
			ContractItemNo:   "C-50-10",
			Quantity:         50,
			OriginalQuantity: 50,
			RequestDate:      date(2026, time.March, 1),
			Plant:            "P01",
			ItemStatus:       models.ItemStatusConfirmed,
			Reservation: &models.PlannerReservation{
				HeaderCode:        "SO-1001-abc",
				ConfirmedQuantity: 50,
			},
		},
		{
			ItemNo:         "20",
			MaterialNo:     "MAT-B",
			ContractItemNo: "C-50-20",
			Quantity:       30,
			Plant:          "P01",
			ItemStatus:     models.ItemStatusAllocated,
		},
	}
}

func TestBuildNoOp(t *testing.T) {
	b := NewBuilder(testLogger())

	// Same values as stored: nothing should be marked.
	req := models.ChangeOrderRequest{
		SoNo:        "SO-1001",
		PONo:        strPtr("PO-1"),
		PaymentTerm: strPtr("NET30"),
		Lines: []models.ChangeOrderLineRequest{
			{ItemNo: "10", Quantity: 50, Plant: "P01"},
		},
	}

	cs, err := b.Build(testOrder(), testLines(), req, nil)
	require.NoError(t, err)
	assert.True(t, cs.IsEmpty())
}

func TestBuildHeaderAndLineDiff(t *testing.T) {
	b := NewBuilder(testLogger())

	req := models.ChangeOrderRequest{
		SoNo:     "SO-1001",
		PONo:     strPtr("PO-2"),
		ShipDate: date(2026, time.March, 20),
		Lines: []models.ChangeOrderLineRequest{
			{ItemNo: "10", Quantity: 40, RequestDate: date(2026, time.March, 5)},
		},
	}

	cs, err := b.Build(testOrder(), testLines(), req, nil)
	require.NoError(t, err)

	assert.True(t, cs.Header.ChangedFields.Changed(models.FieldPONo))
	assert.True(t, cs.Header.ChangedFields.Changed(models.FieldShipDate))
	assert.False(t, cs.Header.ChangedFields.Changed(models.FieldPaymentTerm))

	require.Contains(t, cs.Lines, "10")
	change := cs.Lines["10"]
	assert.Equal(t, models.ChangeOpUpdate, change.Op)
	assert.Equal(t, 40.0, change.Quantity)
	assert.True(t, change.ChangedFields.Changed(models.FieldQuantity))
	assert.True(t, change.ChangedFields.Changed(models.FieldRequestDate))
	assert.False(t, change.ChangedFields.Changed(models.FieldPlant))

	// Line 20 was not in the request; it stays untouched.
	assert.NotContains(t, cs.Lines, "20")
}

func TestBuildDeleteIsExplicit(t *testing.T) {
	b := NewBuilder(testLogger())

	req := models.ChangeOrderRequest{
		SoNo: "SO-1001",
		Lines: []models.ChangeOrderLineRequest{
			{ItemNo: "20", Operation: models.LineOperationDelete},
		},
	}

	cs, err := b.Build(testOrder(), testLines(), req, nil)
	require.NoError(t, err)
	require.Contains(t, cs.Lines, "20")
	assert.Equal(t, models.ChangeOpDelete, cs.Lines["20"].Op)

	// Deleting a line that does not exist is a validation error.
	req.Lines[0].ItemNo = "99"
	_, err = b.Build(testOrder(), testLines(), req, nil)
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "LINE_NOT_FOUND", validationErr.Messages[0].Code)
}

func TestBuildInsertMintsItemNumbers(t *testing.T) {
	b := NewBuilder(testLogger())

	req := models.ChangeOrderRequest{
		SoNo: "SO-1001",
		Lines: []models.ChangeOrderLineRequest{
			{Operation: models.LineOperationInsert, MaterialNo: "MAT-C", Quantity: 10, Plant: "P01"},
			{Operation: models.LineOperationInsert, MaterialNo: "MAT-D", Quantity: 5, Plant: "P01"},
		},
	}

	cs, err := b.Build(testOrder(), testLines(), req, nil)
	require.NoError(t, err)

	// Existing max is 20, so new lines get 30 and 40.
	require.Contains(t, cs.Lines, "30")
	require.Contains(t, cs.Lines, "40")
	assert.Equal(t, models.ChangeOpInsert, cs.Lines["30"].Op)
	assert.Equal(t, "MAT-C", cs.Lines["30"].MaterialNo)
	assert.Equal(t, "MAT-D", cs.Lines["40"].MaterialNo)
}

func TestBuildPreSplit(t *testing.T) {
	b := NewBuilder(testLogger())

	req := models.ChangeOrderRequest{
		SoNo: "SO-1001",
		Lines: []models.ChangeOrderLineRequest{
			{
				ItemNo:   "10",
				Quantity: 30,
				SplitItems: []models.SplitItemRequest{
					{Quantity: 20, RequestDate: date(2026, time.April, 1)},
				},
			},
		},
	}

	cs, err := b.Build(testOrder(), testLines(), req, nil)
	require.NoError(t, err)

	require.Contains(t, cs.Lines, "30")
	child := cs.Lines["30"]
	assert.Equal(t, models.ChangeOpInsert, child.Op)
	assert.Equal(t, "10", child.ParentItemNo)
	assert.Equal(t, 20.0, child.Quantity)
	// Split children inherit material, contract reference and plant.
	assert.Equal(t, "MAT-A", child.MaterialNo)
	assert.Equal(t, "C-50-10", child.ContractItemNo)
	assert.Equal(t, "P01", child.Plant)
}

func TestBuildSplitValidation(t *testing.T) {
	b := NewBuilder(testLogger())

	tests := []struct {
		name     string
		splits   []models.SplitItemRequest
		wantCode string
	}{
		{
			name:     "exceeds planner-confirmed quantity",
			splits:   []models.SplitItemRequest{{Quantity: 60}},
			wantCode: "SPLIT_EXCEEDS_CONFIRMED",
		},
		{
			name:     "sum of splits exceeds confirmed",
			splits:   []models.SplitItemRequest{{Quantity: 30}, {Quantity: 25}},
			wantCode: "SPLIT_EXCEEDS_CONFIRMED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := models.ChangeOrderRequest{
				SoNo: "SO-1001",
				Lines: []models.ChangeOrderLineRequest{
					{ItemNo: "10", SplitItems: tt.splits},
				},
			}

			_, err := b.Build(testOrder(), testLines(), req, nil)
			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.wantCode, validationErr.Messages[0].Code)
		})
	}
}

func TestBuildContractQuantityValidation(t *testing.T) {
	b := NewBuilder(testLogger())

	// Item 10 already allocates 50 against C-50-10 and the contract has 10
	// remaining, so anything up to 60 passes and more fails.
	remaining := map[string]float64{"C-50-10": 10}

	req := models.ChangeOrderRequest{
		SoNo: "SO-1001",
		Lines: []models.ChangeOrderLineRequest{
			{ItemNo: "10", Quantity: 60},
		},
	}
	_, err := b.Build(testOrder(), testLines(), req, remaining)
	require.NoError(t, err)

	req.Lines[0].Quantity = 61
	_, err = b.Build(testOrder(), testLines(), req, remaining)
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "CONTRACT_QUANTITY_EXCEEDED", validationErr.Messages[0].Code)
}

func TestBuildToleranceFlags(t *testing.T) {
	b := NewBuilder(testLogger())

	req := models.ChangeOrderRequest{
		SoNo: "SO-1001",
		Lines: []models.ChangeOrderLineRequest{
			{
				ItemNo:                "10",
				UnlimitedTolerance:    boolPtr(true),
				OverDeliveryTolerance: floatPtr(5),
			},
		},
	}

	cs, err := b.Build(testOrder(), testLines(), req, nil)
	require.NoError(t, err)

	change := cs.Lines["10"]
	assert.True(t, change.UnlimitedTolerance)
	assert.True(t, change.ChangedFields.Changed(models.FieldUnlimitedTolerance))
	assert.True(t, change.ChangedFields.Changed(models.FieldOverTolerance))
	assert.False(t, change.ChangedFields.Changed(models.FieldUnderTolerance))
}
