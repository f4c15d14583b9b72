package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	inventoryapp "github.com/clinicpos/backend/internal/application/inventory"
	"github.com/clinicpos/backend/internal/domain/inventory"
	"github.com/clinicpos/backend/internal/domain/sales"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newLedgerServer wires the ledger handler onto a test engine backed by the
// in-memory fake repositories
func newLedgerServer(f *fakeLedger) *gin.Engine {
	gin.SetMode(gin.TestMode)

	scope := f.scope()
	consumption := inventoryapp.NewConsumptionService(scope, inventory.NewFEFOAllocator(), nil, zap.NewNop())
	refunds := inventoryapp.NewRefundService(scope, nil, zap.NewNop())
	intake := inventoryapp.NewIntakeService(scope, nil, zap.NewNop())
	queries := inventoryapp.NewLedgerQueryService(scope)

	h := NewLedgerHandler(consumption, refunds, intake, queries)

	engine := gin.New()
	api := engine.Group("/api/v1/ledger")
	api.POST("/consume", h.Consume)
	api.POST("/allocate", h.Allocate)
	api.POST("/refunds/full", h.RefundAll)
	api.POST("/refunds/partial", h.RefundPartial)
	api.POST("/receipts", h.Receive)
	api.POST("/adjustments", h.Adjust)
	api.POST("/transfers", h.Transfer)
	api.GET("/sales/:id/moves", h.MovesBySale)
	api.GET("/refunds/:id/moves", h.MovesByRefund)
	api.GET("/balances", h.Balance)
	api.GET("/balances/verify", h.VerifyBalance)
	api.GET("/on-hand", h.OnHand)
	api.GET("/batches/expiring", h.ExpiringBatches)
	return engine
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body any, actorID string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actorID != "" {
		req.Header.Set(ActorIDHeader, actorID)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

// seedStock registers a default location, one batch, and its balance
func seedStock(f *fakeLedger, productID uuid.UUID, number string, expiry *time.Time, quantity int64) (*inventory.Location, *inventory.StockBatch) {
	loc, ok := func() (*inventory.Location, bool) {
		for _, l := range f.locations {
			if l.IsDefault {
				return l, true
			}
		}
		return nil, false
	}()
	if !ok {
		loc, _ = inventory.NewLocation("DISP-1", "Dispensary")
		loc.IsDefault = true
		f.locations[loc.ID] = loc
	}

	batch, _ := inventory.NewStockBatch(productID, number, expiry, time.Now().AddDate(0, 0, -7), decimal.NewFromInt(10))
	f.batches[batch.ID] = batch
	f.putBalance(productID, batch.ID, loc.ID, quantity)
	return loc, batch
}

func futureDate(days int) *time.Time {
	t := time.Now().AddDate(0, 0, days)
	return &t
}

func TestLedgerHandler_Consume(t *testing.T) {
	t.Run("consumes a finalized sale FEFO", func(t *testing.T) {
		f := newFakeLedger()
		productID := uuid.New()
		loc, batch := seedStock(f, productID, "LOT-A", futureDate(30), 20)
		sale := f.seedSale(productID, &loc.ID, 8)
		engine := newLedgerServer(f)

		w := doJSON(t, engine, http.MethodPost, "/api/v1/ledger/consume",
			ConsumeRequest{SaleID: sale.ID.String()}, uuid.NewString())

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		env := decodeEnvelope(t, w)
		assert.True(t, env.Success)

		var moves []inventoryapp.MoveDTO
		require.NoError(t, json.Unmarshal(env.Data, &moves))
		require.Len(t, moves, 1)
		assert.Equal(t, "SALE_OUT", moves[0].MoveType)
		assert.Equal(t, int64(-8), moves[0].Quantity)
		assert.Equal(t, batch.ID.String(), moves[0].BatchID)

		bal := f.balances[balanceKey(productID, batch.ID, loc.ID)]
		assert.Equal(t, int64(12), bal.Quantity)
	})

	t.Run("draws from the earliest expiring batch first", func(t *testing.T) {
		f := newFakeLedger()
		productID := uuid.New()
		loc, late := seedStock(f, productID, "LOT-LATE", futureDate(90), 10)
		early, _ := inventory.NewStockBatch(productID, "LOT-EARLY", futureDate(10), time.Now().AddDate(0, 0, -3), decimal.NewFromInt(10))
		f.batches[early.ID] = early
		f.putBalance(productID, early.ID, loc.ID, 5)
		sale := f.seedSale(productID, &loc.ID, 8)
		engine := newLedgerServer(f)

		w := doJSON(t, engine, http.MethodPost, "/api/v1/ledger/consume",
			ConsumeRequest{SaleID: sale.ID.String()}, uuid.NewString())

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		env := decodeEnvelope(t, w)
		var moves []inventoryapp.MoveDTO
		require.NoError(t, json.Unmarshal(env.Data, &moves))
		require.Len(t, moves, 2)
		assert.Equal(t, early.ID.String(), moves[0].BatchID)
		assert.Equal(t, int64(-5), moves[0].Quantity)
		assert.Equal(t, late.ID.String(), moves[1].BatchID)
		assert.Equal(t, int64(-3), moves[1].Quantity)
	})

	t.Run("replaying a sale returns the original moves without new writes", func(t *testing.T) {
		f := newFakeLedger()
		productID := uuid.New()
		loc, _ := seedStock(f, productID, "LOT-A", futureDate(30), 20)
		sale := f.seedSale(productID, &loc.ID, 8)
		engine := newLedgerServer(f)

		first := doJSON(t, engine, http.MethodPost, "/api/v1/ledger/consume",
			ConsumeRequest{SaleID: sale.ID.String()}, uuid.NewString())
		require.Equal(t, http.StatusOK, first.Code)
		movesAfterFirst := len(f.moves)

		second := doJSON(t, engine, http.MethodPost, "/api/v1/ledger/consume",
			ConsumeRequest{SaleID: sale.ID.String()}, uuid.NewString())
		require.Equal(t, http.StatusOK, second.Code)

		assert.Equal(t, movesAfterFirst, len(f.moves))
		assert.JSONEq(t, first.Body.String(), second.Body.String())
	})

	t.Run("insufficient stock rejects the whole sale", func(t *testing.T) {
		f := newFakeLedger()
		productID := uuid.New()
		loc, batch := seedStock(f, productID, "LOT-A", futureDate(30), 3)
		sale := f.seedSale(productID, &loc.ID, 8)
		engine := newLedgerServer(f)

		w := doJSON(t, engine, http.MethodPost, "/api/v1/ledger/consume",
			ConsumeRequest{SaleID: sale.ID.String()}, uuid.NewString())

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		env := decodeEnvelope(t, w)
		require.NotNil(t, env.Error)
		assert.Equal(t, "ERR_INSUFFICIENT_STOCK", env.Error.Code)
		assert.Empty(t, f.moves)
		assert.Equal(t, int64(3), f.balances[balanceKey(productID, batch.ID, loc.ID)].Quantity)
	})

	t.Run("missing actor header is unauthorized", func(t *testing.T) {
		f := newFakeLedger()
		engine := newLedgerServer(f)

		w := doJSON(t, engine, http.MethodPost, "/api/v1/ledger/consume",
			ConsumeRequest{SaleID: uuid.NewString()}, "")

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown sale is not found", func(t *testing.T) {
		f := newFakeLedger()
		engine := newLedgerServer(f)

		w := doJSON(t, engine, http.MethodPost, "/api/v1/ledger/consume",
			ConsumeRequest{SaleID: uuid.NewString()}, uuid.NewString())

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestLedgerHandler_Allocate(t *testing.T) {
	t.Run("previews without writing", func(t *testing.T) {
		f := newFakeLedger()
		productID := uuid.New()
		_, batch := seedStock(f, productID, "LOT-A", futureDate(30), 20)
		engine := newLedgerServer(f)

		w := doJSON(t, engine, http.MethodPost, "/api/v1/ledger/allocate",
			AllocateRequest{ProductID: productID.String(), Quantity: 6}, "")

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		env := decodeEnvelope(t, w)
		var allocs []inventoryapp.AllocationDTO
		require.NoError(t, json.Unmarshal(env.Data, &allocs))
		require.Len(t, allocs, 1)
		assert.Equal(t, batch.ID.String(), allocs[0].BatchID)
		assert.Equal(t, int64(6), allocs[0].Quantity)
		assert.Empty(t, f.moves)
	})

	t.Run("expired-only stock is rejected unless allowed", func(t *testing.T) {
		f := newFakeLedger()
		productID := uuid.New()
		expired := time.Now().AddDate(0, 0, -1)
		seedStock(f, productID, "LOT-OLD", &expired, 20)
		engine := newLedgerServer(f)

		denied := doJSON(t, engine, http.MethodPost, "/api/v1/ledger/allocate",
			AllocateRequest{ProductID: productID.String(), Quantity: 6}, "")
		assert.Equal(t, http.StatusUnprocessableEntity, denied.Code)

		allowed := doJSON(t, engine, http.MethodPost, "/api/v1/ledger/allocate",
			AllocateRequest{ProductID: productID.String(), Quantity: 6, AllowExpired: true}, "")
		assert.Equal(t, http.StatusOK, allowed.Code)
	})
}

func TestLedgerHandler_RefundAll(t *testing.T) {
	t.Run("reverses every consumption move", func(t *testing.T) {
		f := newFakeLedger()
		productID := uuid.New()
		loc, batch := seedStock(f, productID, "LOT-A", futureDate(30), 20)
		sale := f.seedSale(productID, &loc.ID, 8)
		engine := newLedgerServer(f)

		require.Equal(t, http.StatusOK, doJSON(t, engine, http.MethodPost, "/api/v1/ledger/consume",
			ConsumeRequest{SaleID: sale.ID.String()}, uuid.NewString()).Code)

		w := doJSON(t, engine, http.MethodPost, "/api/v1/ledger/refunds/full",
			RefundAllRequest{SaleID: sale.ID.String()}, uuid.NewString())

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		env := decodeEnvelope(t, w)
		var moves []inventoryapp.MoveDTO
		require.NoError(t, json.Unmarshal(env.Data, &moves))
		require.Len(t, moves, 1)
		assert.Equal(t, "REFUND_IN", moves[0].MoveType)
		assert.Equal(t, int64(8), moves[0].Quantity)
		assert.NotNil(t, moves[0].ReversedMoveID)

		assert.Equal(t, int64(20), f.balances[balanceKey(productID, batch.ID, loc.ID)].Quantity)
	})

	t.Run("refunding an unconsumed sale yields no moves", func(t *testing.T) {
		f := newFakeLedger()
		productID := uuid.New()
		loc, _ := seedStock(f, productID, "LOT-A", futureDate(30), 20)
		sale := f.seedSale(productID, &loc.ID, 8)
		engine := newLedgerServer(f)

		w := doJSON(t, engine, http.MethodPost, "/api/v1/ledger/refunds/full",
			RefundAllRequest{SaleID: sale.ID.String()}, uuid.NewString())

		require.Equal(t, http.StatusOK, w.Code)
		env := decodeEnvelope(t, w)
		var moves []inventoryapp.MoveDTO
		require.NoError(t, json.Unmarshal(env.Data, &moves))
		assert.Empty(t, moves)
	})

	t.Run("refund of a cancelled sale is rejected", func(t *testing.T) {
		f := newFakeLedger()
		productID := uuid.New()
		loc, _ := seedStock(f, productID, "LOT-A", futureDate(30), 20)
		sale := f.seedSale(productID, &loc.ID, 8)
		sale.Status = sales.SaleStatusCancelled
		engine := newLedgerServer(f)

		w := doJSON(t, engine, http.MethodPost, "/api/v1/ledger/refunds/full",
			RefundAllRequest{SaleID: sale.ID.String()}, uuid.NewString())

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		env := decodeEnvelope(t, w)
		require.NotNil(t, env.Error)
		assert.Equal(t, "ERR_INVALID_REFUND_STATE", env.Error.Code)
	})
}

func TestLedgerHandler_Receive(t *testing.T) {
	t.Run("creates the batch and balance on first receipt", func(t *testing.T) {
		f := newFakeLedger()
		loc, _ := inventory.NewLocation("STORE-1", "Back store")
		f.locations[loc.ID] = loc
		productID := uuid.New()
		engine := newLedgerServer(f)

		w := doJSON(t, engine, http.MethodPost, "/api/v1/ledger/receipts", ReceiveStockRequest{
			ProductID:   productID.String(),
			LocationID:  loc.ID.String(),
			BatchNumber: "LOT-2026-014",
			ExpiryDate:  "2026-12-31",
			UnitCost:    12.5,
			Quantity:    50,
			Reference:   "PO-1001",
		}, uuid.NewString())

		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		env := decodeEnvelope(t, w)
		var move inventoryapp.MoveDTO
		require.NoError(t, json.Unmarshal(env.Data, &move))
		assert.Equal(t, "PURCHASE_IN", move.MoveType)
		assert.Equal(t, int64(50), move.Quantity)

		require.Len(t, f.batches, 1)
		for _, b := range f.batches {
			assert.Equal(t, "LOT-2026-014", b.BatchNumber)
			require.NotNil(t, b.ExpiryDate)
		}
	})

	t.Run("zero quantity fails validation", func(t *testing.T) {
		f := newFakeLedger()
		engine := newLedgerServer(f)

		w := doJSON(t, engine, http.MethodPost, "/api/v1/ledger/receipts", ReceiveStockRequest{
			ProductID:   uuid.NewString(),
			LocationID:  uuid.NewString(),
			BatchNumber: "LOT-1",
			Reference:   "PO-1",
		}, uuid.NewString())

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestLedgerHandler_Adjust(t *testing.T) {
	t.Run("negative adjustment cannot push the balance below zero", func(t *testing.T) {
		f := newFakeLedger()
		productID := uuid.New()
		loc, batch := seedStock(f, productID, "LOT-A", futureDate(30), 3)
		engine := newLedgerServer(f)

		w := doJSON(t, engine, http.MethodPost, "/api/v1/ledger/adjustments", AdjustStockRequest{
			ProductID:  productID.String(),
			BatchID:    batch.ID.String(),
			LocationID: loc.ID.String(),
			Quantity:   -5,
			Reason:     "damaged vials",
			Reference:  "ADJ-1",
		}, uuid.NewString())

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		env := decodeEnvelope(t, w)
		require.NotNil(t, env.Error)
		assert.Equal(t, "ERR_NEGATIVE_BALANCE", env.Error.Code)
	})

	t.Run("records a decrease", func(t *testing.T) {
		f := newFakeLedger()
		productID := uuid.New()
		loc, batch := seedStock(f, productID, "LOT-A", futureDate(30), 10)
		engine := newLedgerServer(f)

		w := doJSON(t, engine, http.MethodPost, "/api/v1/ledger/adjustments", AdjustStockRequest{
			ProductID:  productID.String(),
			BatchID:    batch.ID.String(),
			LocationID: loc.ID.String(),
			Quantity:   -4,
			Reason:     "expired disposal",
			Reference:  "ADJ-2",
		}, uuid.NewString())

		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.Equal(t, int64(6), f.balances[balanceKey(productID, batch.ID, loc.ID)].Quantity)
	})
}

func TestLedgerHandler_Transfer(t *testing.T) {
	f := newFakeLedger()
	productID := uuid.New()
	from, batch := seedStock(f, productID, "LOT-A", futureDate(30), 10)
	to, _ := inventory.NewLocation("FRIDGE-1", "Vaccine fridge")
	f.locations[to.ID] = to
	engine := newLedgerServer(f)

	w := doJSON(t, engine, http.MethodPost, "/api/v1/ledger/transfers", TransferStockRequest{
		ProductID:      productID.String(),
		BatchID:        batch.ID.String(),
		FromLocationID: from.ID.String(),
		ToLocationID:   to.ID.String(),
		Quantity:       4,
		Reference:      "TRF-1",
	}, uuid.NewString())

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, int64(6), f.balances[balanceKey(productID, batch.ID, from.ID)].Quantity)
	assert.Equal(t, int64(4), f.balances[balanceKey(productID, batch.ID, to.ID)].Quantity)
}

func TestLedgerHandler_Queries(t *testing.T) {
	f := newFakeLedger()
	productID := uuid.New()
	loc, batch := seedStock(f, productID, "LOT-A", futureDate(10), 15)
	sale := f.seedSale(productID, &loc.ID, 5)
	engine := newLedgerServer(f)

	require.Equal(t, http.StatusOK, doJSON(t, engine, http.MethodPost, "/api/v1/ledger/consume",
		ConsumeRequest{SaleID: sale.ID.String()}, uuid.NewString()).Code)

	t.Run("moves by sale", func(t *testing.T) {
		w := doJSON(t, engine, http.MethodGet,
			fmt.Sprintf("/api/v1/ledger/sales/%s/moves", sale.ID), nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		env := decodeEnvelope(t, w)
		var moves []inventoryapp.MoveDTO
		require.NoError(t, json.Unmarshal(env.Data, &moves))
		assert.Len(t, moves, 1)
	})

	t.Run("balance for key", func(t *testing.T) {
		w := doJSON(t, engine, http.MethodGet,
			fmt.Sprintf("/api/v1/ledger/balances?product_id=%s&batch_id=%s&location_id=%s",
				productID, batch.ID, loc.ID), nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		env := decodeEnvelope(t, w)
		var data QuantityData
		require.NoError(t, json.Unmarshal(env.Data, &data))
		assert.Equal(t, int64(10), data.Quantity)
	})

	t.Run("on hand per product and location", func(t *testing.T) {
		w := doJSON(t, engine, http.MethodGet,
			fmt.Sprintf("/api/v1/ledger/on-hand?product_id=%s&location_id=%s", productID, loc.ID), nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		env := decodeEnvelope(t, w)
		var data QuantityData
		require.NoError(t, json.Unmarshal(env.Data, &data))
		assert.Equal(t, int64(10), data.Quantity)
	})

	t.Run("expiring batches within window", func(t *testing.T) {
		w := doJSON(t, engine, http.MethodGet, "/api/v1/ledger/batches/expiring?within_days=30", nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		env := decodeEnvelope(t, w)
		var batches []BatchResponse
		require.NoError(t, json.Unmarshal(env.Data, &batches))
		require.Len(t, batches, 1)
		assert.Equal(t, "LOT-A", batches[0].BatchNumber)
	})

	t.Run("verify balance reports a consistent key", func(t *testing.T) {
		// The fake ledger only holds moves written through the services, so
		// the sum of moves should not match the seeded opening balance. Seed a
		// clean key instead.
		f2 := newFakeLedger()
		p2 := uuid.New()
		loc2, _ := inventory.NewLocation("STORE-2", "Store")
		f2.locations[loc2.ID] = loc2
		engine2 := newLedgerServer(f2)

		recv := doJSON(t, engine2, http.MethodPost, "/api/v1/ledger/receipts", ReceiveStockRequest{
			ProductID:   p2.String(),
			LocationID:  loc2.ID.String(),
			BatchNumber: "LOT-V",
			Quantity:    9,
			Reference:   "PO-V",
		}, uuid.NewString())
		require.Equal(t, http.StatusCreated, recv.Code)

		var batchID string
		for _, b := range f2.batches {
			batchID = b.ID.String()
		}

		w := doJSON(t, engine2, http.MethodGet,
			fmt.Sprintf("/api/v1/ledger/balances/verify?product_id=%s&batch_id=%s&location_id=%s",
				p2, batchID, loc2.ID), nil, "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	})

	t.Run("bad within_days is rejected", func(t *testing.T) {
		w := doJSON(t, engine, http.MethodGet, "/api/v1/ledger/batches/expiring?within_days=zero", nil, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
