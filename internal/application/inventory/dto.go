package inventory

import (
	"time"

	"github.com/clinicpos/backend/internal/domain/inventory"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReceiveStockCommand records stock received into a batch at a location.
// Reference identifies the upstream purchase document and doubles as the
// idempotency anchor: receiving the same reference for the same batch and
// location twice is a no-op.
type ReceiveStockCommand struct {
	ProductID    uuid.UUID
	LocationID   uuid.UUID
	BatchNumber  string
	ExpiryDate   *time.Time
	ReceivedDate time.Time
	UnitCost     decimal.Decimal
	Quantity     int64
	Reference    string
	ActorID      uuid.UUID
}

// AdjustStockCommand records a signed manual correction against one batch
type AdjustStockCommand struct {
	ProductID  uuid.UUID
	BatchID    uuid.UUID
	LocationID uuid.UUID
	// Quantity is signed: positive adds stock, negative removes it
	Quantity  int64
	Reason    string
	Reference string
	ActorID   uuid.UUID
}

// TransferStockCommand moves batch stock between two locations
type TransferStockCommand struct {
	ProductID      uuid.UUID
	BatchID        uuid.UUID
	FromLocationID uuid.UUID
	ToLocationID   uuid.UUID
	Quantity       int64
	Reference      string
	ActorID        uuid.UUID
}

// MoveDTO is the transport representation of a ledger move
type MoveDTO struct {
	ID             string  `json:"id"`
	ProductID      string  `json:"product_id"`
	BatchID        string  `json:"batch_id"`
	LocationID     string  `json:"location_id"`
	MoveType       string  `json:"move_type"`
	Quantity       int64   `json:"quantity"`
	ActorID        string  `json:"actor_id"`
	OccurredAt     string  `json:"occurred_at"`
	SaleID         *string `json:"sale_id,omitempty"`
	SaleLineID     *string `json:"sale_line_id,omitempty"`
	RefundID       *string `json:"refund_id,omitempty"`
	ReversedMoveID *string `json:"reversed_move_id,omitempty"`
	SourceMoveID   *string `json:"source_move_id,omitempty"`
}

// ToMoveDTO converts a move to its transport representation
func ToMoveDTO(m *inventory.StockMove) MoveDTO {
	dto := MoveDTO{
		ID:         m.ID.String(),
		ProductID:  m.ProductID.String(),
		BatchID:    m.BatchID.String(),
		LocationID: m.LocationID.String(),
		MoveType:   m.MoveType.String(),
		Quantity:   m.Quantity,
		ActorID:    m.ActorID.String(),
		OccurredAt: m.OccurredAt.Format(time.RFC3339),
	}
	dto.SaleID = uuidPtrString(m.SaleID)
	dto.SaleLineID = uuidPtrString(m.SaleLineID)
	dto.RefundID = uuidPtrString(m.RefundID)
	dto.ReversedMoveID = uuidPtrString(m.ReversedMoveID)
	dto.SourceMoveID = uuidPtrString(m.SourceMoveID)
	return dto
}

// ToMoveDTOs converts a move slice to transport representations
func ToMoveDTOs(moves []inventory.StockMove) []MoveDTO {
	out := make([]MoveDTO, len(moves))
	for i := range moves {
		out[i] = ToMoveDTO(&moves[i])
	}
	return out
}

// AllocationDTO is the transport representation of one planned batch draw
type AllocationDTO struct {
	BatchID     string  `json:"batch_id"`
	BatchNumber string  `json:"batch_number"`
	ExpiryDate  *string `json:"expiry_date,omitempty"`
	Quantity    int64   `json:"quantity"`
}

// ToAllocationDTOs converts an allocation plan to transport representations
func ToAllocationDTOs(plan inventory.AllocationPlan) []AllocationDTO {
	out := make([]AllocationDTO, len(plan.Allocations))
	for i, a := range plan.Allocations {
		dto := AllocationDTO{
			BatchID:     a.Batch.ID.String(),
			BatchNumber: a.Batch.BatchNumber,
			Quantity:    a.Quantity,
		}
		if a.Batch.ExpiryDate != nil {
			s := a.Batch.ExpiryDate.Format("2006-01-02")
			dto.ExpiryDate = &s
		}
		out[i] = dto
	}
	return out
}

func uuidPtrString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}
