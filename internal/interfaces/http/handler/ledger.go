package handler

import (
	"strconv"
	"time"

	inventoryapp "github.com/clinicpos/backend/internal/application/inventory"
	"github.com/clinicpos/backend/internal/domain/inventory"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerHandler exposes the stock ledger operations: consumption at sale
// finalization, refunds, intake, and the read-side queries.
type LedgerHandler struct {
	BaseHandler
	consumption *inventoryapp.ConsumptionService
	refunds     *inventoryapp.RefundService
	intake      *inventoryapp.IntakeService
	queries     *inventoryapp.LedgerQueryService
}

// NewLedgerHandler creates a new LedgerHandler
func NewLedgerHandler(
	consumption *inventoryapp.ConsumptionService,
	refunds *inventoryapp.RefundService,
	intake *inventoryapp.IntakeService,
	queries *inventoryapp.LedgerQueryService,
) *LedgerHandler {
	return &LedgerHandler{
		consumption: consumption,
		refunds:     refunds,
		intake:      intake,
		queries:     queries,
	}
}

// ===================== Request types =====================

// ConsumeRequest finalizes stock consumption for a sale
type ConsumeRequest struct {
	SaleID string `json:"sale_id" binding:"required,uuid"`
	// LocationID overrides the sale's location; empty falls back to the
	// sale's location, then the default location
	LocationID string `json:"location_id" binding:"omitempty,uuid"`
}

// AllocateRequest previews a FEFO allocation without writing moves
type AllocateRequest struct {
	ProductID    string `json:"product_id" binding:"required,uuid"`
	LocationID   string `json:"location_id" binding:"omitempty,uuid"`
	Quantity     int64  `json:"quantity" binding:"required,gt=0"`
	AllowExpired bool   `json:"allow_expired"`
}

// RefundAllRequest reverses every consumption move of a sale
type RefundAllRequest struct {
	SaleID string `json:"sale_id" binding:"required,uuid"`
}

// RefundPartialRequest applies a recorded refund document against the ledger
type RefundPartialRequest struct {
	SaleID   string `json:"sale_id" binding:"required,uuid"`
	RefundID string `json:"refund_id" binding:"required,uuid"`
}

// ReceiveStockRequest records received stock into a batch
type ReceiveStockRequest struct {
	ProductID    string  `json:"product_id" binding:"required,uuid"`
	LocationID   string  `json:"location_id" binding:"required,uuid"`
	BatchNumber  string  `json:"batch_number" binding:"required,min=1,max=100"`
	ExpiryDate   string  `json:"expiry_date" binding:"omitempty"`
	ReceivedDate string  `json:"received_date" binding:"omitempty"`
	UnitCost     float64 `json:"unit_cost" binding:"gte=0"`
	Quantity     int64   `json:"quantity" binding:"required,gt=0"`
	Reference    string  `json:"reference" binding:"required,min=1,max=255"`
}

// AdjustStockRequest records a signed manual correction against one batch
type AdjustStockRequest struct {
	ProductID  string `json:"product_id" binding:"required,uuid"`
	BatchID    string `json:"batch_id" binding:"required,uuid"`
	LocationID string `json:"location_id" binding:"required,uuid"`
	// Quantity is signed: positive adds stock, negative removes it
	Quantity  int64  `json:"quantity" binding:"required"`
	Reason    string `json:"reason" binding:"required,min=1,max=255"`
	Reference string `json:"reference" binding:"required,min=1,max=255"`
}

// TransferStockRequest moves batch stock between two locations
type TransferStockRequest struct {
	ProductID      string `json:"product_id" binding:"required,uuid"`
	BatchID        string `json:"batch_id" binding:"required,uuid"`
	FromLocationID string `json:"from_location_id" binding:"required,uuid"`
	ToLocationID   string `json:"to_location_id" binding:"required,uuid,nefield=FromLocationID"`
	Quantity       int64  `json:"quantity" binding:"required,gt=0"`
	Reference      string `json:"reference" binding:"required,min=1,max=255"`
}

// ===================== Write operations =====================

// Consume records the stock consumption for a finalized sale. Replaying the
// same sale returns the original moves instead of writing new ones.
func (h *LedgerHandler) Consume(c *gin.Context) {
	var req ConsumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	actorID, err := getActorID(c)
	if err != nil {
		h.Unauthorized(c, "Valid actor ID required")
		return
	}

	saleID, err := uuid.Parse(req.SaleID)
	if err != nil {
		h.BadRequest(c, "Invalid sale ID")
		return
	}
	locationID := uuid.Nil
	if req.LocationID != "" {
		if locationID, err = uuid.Parse(req.LocationID); err != nil {
			h.BadRequest(c, "Invalid location ID")
			return
		}
	}

	moves, err := h.consumption.Consume(c.Request.Context(), saleID, locationID, actorID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, inventoryapp.ToMoveDTOs(moves))
}

// Allocate previews the FEFO plan for a quantity without writing anything
func (h *LedgerHandler) Allocate(c *gin.Context) {
	var req AllocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		h.BadRequest(c, "Invalid product ID")
		return
	}
	locationID := uuid.Nil
	if req.LocationID != "" {
		if locationID, err = uuid.Parse(req.LocationID); err != nil {
			h.BadRequest(c, "Invalid location ID")
			return
		}
	}

	plan, err := h.consumption.Allocate(c.Request.Context(), productID, locationID, req.Quantity, req.AllowExpired)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, inventoryapp.ToAllocationDTOs(plan))
}

// RefundAll reverses every consumption move of a sale in one transaction
func (h *LedgerHandler) RefundAll(c *gin.Context) {
	var req RefundAllRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	actorID, err := getActorID(c)
	if err != nil {
		h.Unauthorized(c, "Valid actor ID required")
		return
	}

	saleID, err := uuid.Parse(req.SaleID)
	if err != nil {
		h.BadRequest(c, "Invalid sale ID")
		return
	}

	moves, err := h.refunds.RefundAll(c.Request.Context(), saleID, actorID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, inventoryapp.ToMoveDTOs(moves))
}

// RefundPartial applies a recorded refund document's lines against the ledger
func (h *LedgerHandler) RefundPartial(c *gin.Context) {
	var req RefundPartialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	actorID, err := getActorID(c)
	if err != nil {
		h.Unauthorized(c, "Valid actor ID required")
		return
	}

	saleID, err := uuid.Parse(req.SaleID)
	if err != nil {
		h.BadRequest(c, "Invalid sale ID")
		return
	}
	refundID, err := uuid.Parse(req.RefundID)
	if err != nil {
		h.BadRequest(c, "Invalid refund ID")
		return
	}

	moves, err := h.refunds.RefundPartial(c.Request.Context(), saleID, refundID, actorID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, inventoryapp.ToMoveDTOs(moves))
}

// Receive records received stock, creating the batch on first sight
func (h *LedgerHandler) Receive(c *gin.Context) {
	var req ReceiveStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	actorID, err := getActorID(c)
	if err != nil {
		h.Unauthorized(c, "Valid actor ID required")
		return
	}

	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		h.BadRequest(c, "Invalid product ID")
		return
	}
	locationID, err := uuid.Parse(req.LocationID)
	if err != nil {
		h.BadRequest(c, "Invalid location ID")
		return
	}
	expiry, err := parseOptionalDate(req.ExpiryDate)
	if err != nil {
		h.BadRequest(c, "Invalid expiry date")
		return
	}
	received := time.Now()
	if req.ReceivedDate != "" {
		if received, err = parseDateTime(req.ReceivedDate); err != nil {
			h.BadRequest(c, "Invalid received date")
			return
		}
	}

	move, err := h.intake.ReceiveStock(c.Request.Context(), inventoryapp.ReceiveStockCommand{
		ProductID:    productID,
		LocationID:   locationID,
		BatchNumber:  req.BatchNumber,
		ExpiryDate:   expiry,
		ReceivedDate: received,
		UnitCost:     decimal.NewFromFloat(req.UnitCost),
		Quantity:     req.Quantity,
		Reference:    req.Reference,
		ActorID:      actorID,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, inventoryapp.ToMoveDTO(move))
}

// Adjust records a signed manual stock correction
func (h *LedgerHandler) Adjust(c *gin.Context) {
	var req AdjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	actorID, err := getActorID(c)
	if err != nil {
		h.Unauthorized(c, "Valid actor ID required")
		return
	}

	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		h.BadRequest(c, "Invalid product ID")
		return
	}
	batchID, err := uuid.Parse(req.BatchID)
	if err != nil {
		h.BadRequest(c, "Invalid batch ID")
		return
	}
	locationID, err := uuid.Parse(req.LocationID)
	if err != nil {
		h.BadRequest(c, "Invalid location ID")
		return
	}

	move, err := h.intake.AdjustStock(c.Request.Context(), inventoryapp.AdjustStockCommand{
		ProductID:  productID,
		BatchID:    batchID,
		LocationID: locationID,
		Quantity:   req.Quantity,
		Reason:     req.Reason,
		Reference:  req.Reference,
		ActorID:    actorID,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, inventoryapp.ToMoveDTO(move))
}

// Transfer moves batch stock between two locations as a paired out/in
func (h *LedgerHandler) Transfer(c *gin.Context) {
	var req TransferStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	actorID, err := getActorID(c)
	if err != nil {
		h.Unauthorized(c, "Valid actor ID required")
		return
	}

	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		h.BadRequest(c, "Invalid product ID")
		return
	}
	batchID, err := uuid.Parse(req.BatchID)
	if err != nil {
		h.BadRequest(c, "Invalid batch ID")
		return
	}
	fromID, err := uuid.Parse(req.FromLocationID)
	if err != nil {
		h.BadRequest(c, "Invalid source location ID")
		return
	}
	toID, err := uuid.Parse(req.ToLocationID)
	if err != nil {
		h.BadRequest(c, "Invalid target location ID")
		return
	}

	moves, err := h.intake.TransferStock(c.Request.Context(), inventoryapp.TransferStockCommand{
		ProductID:      productID,
		BatchID:        batchID,
		FromLocationID: fromID,
		ToLocationID:   toID,
		Quantity:       req.Quantity,
		Reference:      req.Reference,
		ActorID:        actorID,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, inventoryapp.ToMoveDTOs(moves))
}

// ===================== Read operations =====================

// MovesBySale returns every ledger move linked to a sale
func (h *LedgerHandler) MovesBySale(c *gin.Context) {
	saleID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid sale ID")
		return
	}

	moves, err := h.queries.MovesBySale(c.Request.Context(), saleID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, inventoryapp.ToMoveDTOs(moves))
}

// MovesByRefund returns every ledger move created by a refund
func (h *LedgerHandler) MovesByRefund(c *gin.Context) {
	refundID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid refund ID")
		return
	}

	moves, err := h.queries.MovesByRefund(c.Request.Context(), refundID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, inventoryapp.ToMoveDTOs(moves))
}

// Balance returns the on-hand quantity for a (product, batch, location) key
func (h *LedgerHandler) Balance(c *gin.Context) {
	productID, batchID, locationID, ok := h.balanceKeyFromQuery(c)
	if !ok {
		return
	}

	quantity, err := h.queries.BalanceFor(c.Request.Context(), productID, batchID, locationID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, QuantityData{Quantity: quantity})
}

// OnHand returns the total on-hand quantity for a product at a location
func (h *LedgerHandler) OnHand(c *gin.Context) {
	productID, err := uuid.Parse(c.Query("product_id"))
	if err != nil {
		h.BadRequest(c, "Invalid product ID")
		return
	}
	locationID, err := uuid.Parse(c.Query("location_id"))
	if err != nil {
		h.BadRequest(c, "Invalid location ID")
		return
	}

	total, err := h.queries.OnHand(c.Request.Context(), productID, locationID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, QuantityData{Quantity: total})
}

// ExpiringBatches returns batches expiring within the given number of days
func (h *LedgerHandler) ExpiringBatches(c *gin.Context) {
	withinDays := 30
	if raw := c.Query("within_days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.BadRequest(c, "within_days must be a positive integer")
			return
		}
		withinDays = parsed
	}

	batches, err := h.queries.ExpiringBatches(c.Request.Context(), withinDays)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	out := make([]BatchResponse, len(batches))
	for i := range batches {
		out[i] = toBatchResponse(&batches[i])
	}
	h.Success(c, out)
}

// VerifyBalance checks that the move log reconciles to the materialized
// balance for one key
func (h *LedgerHandler) VerifyBalance(c *gin.Context) {
	productID, batchID, locationID, ok := h.balanceKeyFromQuery(c)
	if !ok {
		return
	}

	if err := h.queries.VerifyBalance(c.Request.Context(), productID, batchID, locationID); err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, gin.H{"consistent": true})
}

func (h *LedgerHandler) balanceKeyFromQuery(c *gin.Context) (productID, batchID, locationID uuid.UUID, ok bool) {
	var err error
	if productID, err = uuid.Parse(c.Query("product_id")); err != nil {
		h.BadRequest(c, "Invalid product ID")
		return productID, batchID, locationID, false
	}
	if batchID, err = uuid.Parse(c.Query("batch_id")); err != nil {
		h.BadRequest(c, "Invalid batch ID")
		return productID, batchID, locationID, false
	}
	if locationID, err = uuid.Parse(c.Query("location_id")); err != nil {
		h.BadRequest(c, "Invalid location ID")
		return productID, batchID, locationID, false
	}
	return productID, batchID, locationID, true
}

// BatchResponse is the transport representation of a stock batch
type BatchResponse struct {
	ID           string  `json:"id"`
	ProductID    string  `json:"product_id"`
	BatchNumber  string  `json:"batch_number"`
	ExpiryDate   *string `json:"expiry_date,omitempty"`
	ReceivedDate string  `json:"received_date"`
	UnitCost     float64 `json:"unit_cost"`
}

func toBatchResponse(b *inventory.StockBatch) BatchResponse {
	resp := BatchResponse{
		ID:           b.ID.String(),
		ProductID:    b.ProductID.String(),
		BatchNumber:  b.BatchNumber,
		ReceivedDate: b.ReceivedDate.Format("2006-01-02"),
		UnitCost:     b.UnitCost.InexactFloat64(),
	}
	if b.ExpiryDate != nil {
		s := b.ExpiryDate.Format("2006-01-02")
		resp.ExpiryDate = &s
	}
	return resp
}
