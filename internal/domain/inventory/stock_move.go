package inventory

import (
	"fmt"
	"time"

	"github.com/clinicpos/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// MoveType represents the type of ledger move
type MoveType string

const (
	// MoveTypePurchaseIn represents stock received from a supplier
	MoveTypePurchaseIn MoveType = "PURCHASE_IN"
	// MoveTypeSaleOut represents stock consumed by a finalized sale
	MoveTypeSaleOut MoveType = "SALE_OUT"
	// MoveTypeRefundIn represents stock returned by a sale refund
	MoveTypeRefundIn MoveType = "REFUND_IN"
	// MoveTypeAdjustmentIn represents a positive manual correction
	MoveTypeAdjustmentIn MoveType = "ADJUSTMENT_IN"
	// MoveTypeAdjustmentOut represents a negative manual correction
	MoveTypeAdjustmentOut MoveType = "ADJUSTMENT_OUT"
	// MoveTypeTransferIn represents stock arriving from another location
	MoveTypeTransferIn MoveType = "TRANSFER_IN"
	// MoveTypeTransferOut represents stock leaving for another location
	MoveTypeTransferOut MoveType = "TRANSFER_OUT"
)

// String returns the string representation of MoveType
func (t MoveType) String() string {
	return string(t)
}

// IsValid returns true if the move type is valid
func (t MoveType) IsValid() bool {
	switch t {
	case MoveTypePurchaseIn,
		MoveTypeSaleOut,
		MoveTypeRefundIn,
		MoveTypeAdjustmentIn,
		MoveTypeAdjustmentOut,
		MoveTypeTransferIn,
		MoveTypeTransferOut:
		return true
	}
	return false
}

// IsInbound returns true if this move type increases the balance
func (t MoveType) IsInbound() bool {
	switch t {
	case MoveTypePurchaseIn, MoveTypeRefundIn, MoveTypeAdjustmentIn, MoveTypeTransferIn:
		return true
	}
	return false
}

// IsOutbound returns true if this move type decreases the balance
func (t MoveType) IsOutbound() bool {
	switch t {
	case MoveTypeSaleOut, MoveTypeAdjustmentOut, MoveTypeTransferOut:
		return true
	}
	return false
}

// StockMove is an immutable, signed-quantity entry in the append-only move
// log. Inbound moves carry positive quantities, outbound moves negative ones,
// and a quantity of zero is never recorded. Corrections are modeled as new
// moves; updates and deletes are rejected at the repository layer.
//
// ReversedMoveID links a full reversal to the move it undoes; SourceMoveID
// links a partial reversal to the allocation it draws back from. A move points
// to at most one prior move, and a reversal can never target another reversal.
type StockMove struct {
	shared.BaseEntity
	ProductID  uuid.UUID `gorm:"type:uuid;not null;index:idx_move_key,priority:1"`
	BatchID    uuid.UUID `gorm:"type:uuid;not null;index:idx_move_key,priority:2"`
	LocationID uuid.UUID `gorm:"type:uuid;not null;index:idx_move_key,priority:3"`
	MoveType   MoveType  `gorm:"type:varchar(30);not null;index"`
	Quantity   int64     `gorm:"not null"`
	ActorID    uuid.UUID `gorm:"type:uuid;not null"`
	OccurredAt time.Time `gorm:"type:timestamptz;not null"`

	SaleID     *uuid.UUID `gorm:"type:uuid;index"`
	SaleLineID *uuid.UUID `gorm:"type:uuid;index"`
	RefundID   *uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_move_refund_source,priority:1"`

	// ReversedMoveID is set on a full reversal and points at the reversed move
	ReversedMoveID *uuid.UUID `gorm:"type:uuid;index"`
	// SourceMoveID is set on a partial reversal and points at the original allocation
	SourceMoveID *uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_move_refund_source,priority:2"`

	// IdempotencyKey uniquely identifies the logical operation that produced
	// this move, so a concurrent retry collides on the unique index instead of
	// double-writing.
	IdempotencyKey string `gorm:"type:varchar(255);not null;uniqueIndex"`
}

// TableName returns the table name for GORM
func (StockMove) TableName() string {
	return "stock_moves"
}

func newStockMove(
	productID, batchID, locationID uuid.UUID,
	moveType MoveType,
	quantity int64,
	actorID uuid.UUID,
	idempotencyKey string,
) (*StockMove, error) {
	if productID == uuid.Nil || batchID == uuid.Nil || locationID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_MOVE_KEY", "Product, batch and location IDs are required")
	}
	if !moveType.IsValid() {
		return nil, shared.NewDomainError("INVALID_MOVE_TYPE", "Invalid move type")
	}
	if quantity == 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Move quantity cannot be zero")
	}
	if moveType.IsInbound() && quantity < 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Inbound moves must carry a positive quantity")
	}
	if moveType.IsOutbound() && quantity > 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Outbound moves must carry a negative quantity")
	}
	if actorID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_ACTOR", "Actor ID cannot be empty")
	}
	if idempotencyKey == "" {
		return nil, shared.NewDomainError("INVALID_IDEMPOTENCY_KEY", "Idempotency key cannot be empty")
	}
	return &StockMove{
		BaseEntity:     shared.NewBaseEntity(),
		ProductID:      productID,
		BatchID:        batchID,
		LocationID:     locationID,
		MoveType:       moveType,
		Quantity:       quantity,
		ActorID:        actorID,
		OccurredAt:     time.Now(),
		IdempotencyKey: idempotencyKey,
	}, nil
}

// NewPurchaseInMove records stock received into a batch at a location
func NewPurchaseInMove(
	productID, batchID, locationID uuid.UUID,
	quantity int64,
	actorID uuid.UUID,
	reference string,
) (*StockMove, error) {
	key := fmt.Sprintf("purchase:%s:batch:%s:location:%s", reference, batchID, locationID)
	return newStockMove(productID, batchID, locationID, MoveTypePurchaseIn, quantity, actorID, key)
}

// NewSaleOutMove records consumption of one batch allocation by a sale line.
// Quantity is the positive number of units consumed; the move is stored with
// a negative sign.
func NewSaleOutMove(
	productID, batchID, locationID uuid.UUID,
	quantity int64,
	saleID, saleLineID, actorID uuid.UUID,
) (*StockMove, error) {
	if quantity <= 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Consumed quantity must be positive")
	}
	key := fmt.Sprintf("sale:%s:line:%s:batch:%s", saleID, saleLineID, batchID)
	m, err := newStockMove(productID, batchID, locationID, MoveTypeSaleOut, -quantity, actorID, key)
	if err != nil {
		return nil, err
	}
	m.SaleID = &saleID
	m.SaleLineID = &saleLineID
	return m, nil
}

// NewFullReversalMove reverses a sale-out move in full, returning stock to the
// exact (product, batch, location) it was drawn from.
func NewFullReversalMove(original *StockMove, quantity int64, actorID uuid.UUID) (*StockMove, error) {
	if original == nil {
		return nil, shared.NewDomainError("INVALID_MOVE", "Original move is required")
	}
	if original.MoveType != MoveTypeSaleOut {
		return nil, shared.ErrReversalOfReversal
	}
	if quantity <= 0 || quantity > -original.Quantity {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Reversal quantity must be positive and within the original")
	}
	key := fmt.Sprintf("refund-all:sale:%s:move:%s", original.SaleID, original.ID)
	m, err := newStockMove(
		original.ProductID, original.BatchID, original.LocationID,
		MoveTypeRefundIn, quantity, actorID, key,
	)
	if err != nil {
		return nil, err
	}
	reversedID := original.ID
	m.ReversedMoveID = &reversedID
	m.SaleID = original.SaleID
	m.SaleLineID = original.SaleLineID
	return m, nil
}

// NewPartialReversalMove reverses part of a sale-out move on behalf of a
// refund. The (refund, source move) pair is unique: a given allocation can be
// partially reversed by a given refund at most once.
func NewPartialReversalMove(source *StockMove, refundID uuid.UUID, quantity int64, actorID uuid.UUID) (*StockMove, error) {
	if source == nil {
		return nil, shared.NewDomainError("INVALID_MOVE", "Source move is required")
	}
	if source.MoveType != MoveTypeSaleOut {
		return nil, shared.ErrReversalOfReversal
	}
	if refundID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_REFUND", "Refund ID cannot be empty")
	}
	if quantity <= 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Reversal quantity must be positive")
	}
	key := fmt.Sprintf("refund:%s:source:%s", refundID, source.ID)
	m, err := newStockMove(
		source.ProductID, source.BatchID, source.LocationID,
		MoveTypeRefundIn, quantity, actorID, key,
	)
	if err != nil {
		return nil, err
	}
	sourceID := source.ID
	m.RefundID = &refundID
	m.SourceMoveID = &sourceID
	m.SaleID = source.SaleID
	m.SaleLineID = source.SaleLineID
	return m, nil
}

// NewAdjustmentMove records a signed manual correction with a reason encoded
// in the idempotency reference by the caller.
func NewAdjustmentMove(
	productID, batchID, locationID uuid.UUID,
	signedQuantity int64,
	actorID uuid.UUID,
	reference string,
) (*StockMove, error) {
	moveType := MoveTypeAdjustmentIn
	if signedQuantity < 0 {
		moveType = MoveTypeAdjustmentOut
	}
	key := fmt.Sprintf("adjustment:%s:batch:%s:location:%s", reference, batchID, locationID)
	return newStockMove(productID, batchID, locationID, moveType, signedQuantity, actorID, key)
}

// NewTransferMoves records a location transfer as a paired out/in entry
func NewTransferMoves(
	productID, batchID uuid.UUID,
	fromLocationID, toLocationID uuid.UUID,
	quantity int64,
	actorID uuid.UUID,
	reference string,
) (*StockMove, *StockMove, error) {
	if quantity <= 0 {
		return nil, nil, shared.NewDomainError("INVALID_QUANTITY", "Transfer quantity must be positive")
	}
	if fromLocationID == toLocationID {
		return nil, nil, shared.NewDomainError("INVALID_TRANSFER", "Transfer source and destination must differ")
	}
	outKey := fmt.Sprintf("transfer:%s:batch:%s:out:%s", reference, batchID, fromLocationID)
	out, err := newStockMove(productID, batchID, fromLocationID, MoveTypeTransferOut, -quantity, actorID, outKey)
	if err != nil {
		return nil, nil, err
	}
	inKey := fmt.Sprintf("transfer:%s:batch:%s:in:%s", reference, batchID, toLocationID)
	in, err := newStockMove(productID, batchID, toLocationID, MoveTypeTransferIn, quantity, actorID, inKey)
	if err != nil {
		return nil, nil, err
	}
	return out, in, nil
}

// IsReversal returns true if this move reverses another move
func (m *StockMove) IsReversal() bool {
	return m.ReversedMoveID != nil || m.SourceMoveID != nil
}

// AbsQuantity returns the unsigned magnitude of the move
func (m *StockMove) AbsQuantity() int64 {
	if m.Quantity < 0 {
		return -m.Quantity
	}
	return m.Quantity
}
