package handler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	inventoryapp "github.com/clinicpos/backend/internal/application/inventory"
	"github.com/clinicpos/backend/internal/domain/inventory"
	"github.com/clinicpos/backend/internal/domain/sales"
	"github.com/clinicpos/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// fakeLedger is an in-memory stand-in for the whole persistence layer. The
// handlers run real application services against it, so a request exercises
// the full allocation and reversal logic without a database.
type fakeLedger struct {
	locations map[uuid.UUID]*inventory.Location
	batches   map[uuid.UUID]*inventory.StockBatch
	balances  map[string]*inventory.StockBalance
	moves     []inventory.StockMove
	sales     map[uuid.UUID]*sales.Sale
	refunds   map[uuid.UUID]*sales.Refund
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		locations: make(map[uuid.UUID]*inventory.Location),
		batches:   make(map[uuid.UUID]*inventory.StockBatch),
		balances:  make(map[string]*inventory.StockBalance),
		sales:     make(map[uuid.UUID]*sales.Sale),
		refunds:   make(map[uuid.UUID]*sales.Refund),
	}
}

func (f *fakeLedger) scope() *inventoryapp.NoOpTransactionScope {
	return inventoryapp.NewNoOpTransactionScope(
		&fakeLocationRepo{f},
		&fakeBatchRepo{f},
		&fakeBalanceRepo{f},
		&fakeMoveRepo{f},
		&fakeSaleRepo{f},
		&fakeRefundRepo{f},
	)
}

func balanceKey(productID, batchID, locationID uuid.UUID) string {
	return productID.String() + "|" + batchID.String() + "|" + locationID.String()
}

func (f *fakeLedger) putBalance(productID, batchID, locationID uuid.UUID, quantity int64) {
	bal, _ := inventory.NewStockBalance(productID, batchID, locationID)
	bal.Quantity = quantity
	f.balances[balanceKey(productID, batchID, locationID)] = bal
}

// ---- LocationRepository ----

type fakeLocationRepo struct{ f *fakeLedger }

func (r *fakeLocationRepo) FindByID(_ context.Context, id uuid.UUID) (*inventory.Location, error) {
	if loc, ok := r.f.locations[id]; ok {
		return loc, nil
	}
	return nil, shared.ErrNotFound
}

func (r *fakeLocationRepo) FindByCode(_ context.Context, code string) (*inventory.Location, error) {
	for _, loc := range r.f.locations {
		if loc.Code == code {
			return loc, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeLocationRepo) FindDefault(_ context.Context) (*inventory.Location, error) {
	for _, loc := range r.f.locations {
		if loc.IsDefault && loc.Active {
			return loc, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeLocationRepo) FindActive(_ context.Context) ([]inventory.Location, error) {
	var out []inventory.Location
	for _, loc := range r.f.locations {
		if loc.Active {
			out = append(out, *loc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r *fakeLocationRepo) Save(_ context.Context, location *inventory.Location) error {
	for _, existing := range r.f.locations {
		if existing.Code == location.Code && existing.ID != location.ID {
			return shared.ErrAlreadyExists
		}
	}
	r.f.locations[location.ID] = location
	return nil
}

// ---- StockBatchRepository ----

type fakeBatchRepo struct{ f *fakeLedger }

func (r *fakeBatchRepo) FindByID(_ context.Context, id uuid.UUID) (*inventory.StockBatch, error) {
	if b, ok := r.f.batches[id]; ok {
		return b, nil
	}
	return nil, shared.ErrNotFound
}

func (r *fakeBatchRepo) FindByIDs(_ context.Context, ids []uuid.UUID) ([]inventory.StockBatch, error) {
	var out []inventory.StockBatch
	for _, id := range ids {
		if b, ok := r.f.batches[id]; ok {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (r *fakeBatchRepo) FindByProductAndNumber(_ context.Context, productID uuid.UUID, number string) (*inventory.StockBatch, error) {
	for _, b := range r.f.batches {
		if b.ProductID == productID && b.BatchNumber == number {
			return b, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeBatchRepo) FindByProduct(_ context.Context, productID uuid.UUID) ([]inventory.StockBatch, error) {
	var out []inventory.StockBatch
	for _, b := range r.f.batches {
		if b.ProductID == productID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (r *fakeBatchRepo) FindExpiringBefore(_ context.Context, cutoff time.Time) ([]inventory.StockBatch, error) {
	var out []inventory.StockBatch
	for _, b := range r.f.batches {
		if b.ExpiryDate != nil && b.ExpiryDate.Before(cutoff) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (r *fakeBatchRepo) Save(_ context.Context, batch *inventory.StockBatch) error {
	for _, existing := range r.f.batches {
		if existing.ProductID == batch.ProductID && existing.BatchNumber == batch.BatchNumber && existing.ID != batch.ID {
			return shared.ErrAlreadyExists
		}
	}
	r.f.batches[batch.ID] = batch
	return nil
}

// ---- StockBalanceRepository ----

type fakeBalanceRepo struct{ f *fakeLedger }

func (r *fakeBalanceRepo) FindByKey(_ context.Context, productID, batchID, locationID uuid.UUID) (*inventory.StockBalance, error) {
	if bal, ok := r.f.balances[balanceKey(productID, batchID, locationID)]; ok {
		return bal, nil
	}
	return nil, shared.ErrNotFound
}

func (r *fakeBalanceRepo) FindByProductAndLocation(_ context.Context, productID, locationID uuid.UUID) ([]inventory.StockBalance, error) {
	return r.collect(func(b *inventory.StockBalance) bool {
		return b.ProductID == productID && b.LocationID == locationID
	}), nil
}

func (r *fakeBalanceRepo) LockByProductsAndLocation(_ context.Context, productIDs []uuid.UUID, locationID uuid.UUID) ([]inventory.StockBalance, error) {
	wanted := make(map[uuid.UUID]struct{}, len(productIDs))
	for _, id := range productIDs {
		wanted[id] = struct{}{}
	}
	return r.collect(func(b *inventory.StockBalance) bool {
		_, ok := wanted[b.ProductID]
		return ok && b.LocationID == locationID
	}), nil
}

func (r *fakeBalanceRepo) LockByBatchIDs(_ context.Context, locationID uuid.UUID, batchIDs []uuid.UUID) ([]inventory.StockBalance, error) {
	wanted := make(map[uuid.UUID]struct{}, len(batchIDs))
	for _, id := range batchIDs {
		wanted[id] = struct{}{}
	}
	return r.collect(func(b *inventory.StockBalance) bool {
		_, ok := wanted[b.BatchID]
		return ok && b.LocationID == locationID
	}), nil
}

func (r *fakeBalanceRepo) GetOrCreate(_ context.Context, productID, batchID, locationID uuid.UUID) (*inventory.StockBalance, error) {
	key := balanceKey(productID, batchID, locationID)
	if bal, ok := r.f.balances[key]; ok {
		return bal, nil
	}
	bal, err := inventory.NewStockBalance(productID, batchID, locationID)
	if err != nil {
		return nil, err
	}
	r.f.balances[key] = bal
	return bal, nil
}

func (r *fakeBalanceRepo) Save(_ context.Context, balance *inventory.StockBalance) error {
	r.f.balances[balanceKey(balance.ProductID, balance.BatchID, balance.LocationID)] = balance
	return nil
}

func (r *fakeBalanceRepo) SumByProductAndLocation(_ context.Context, productID, locationID uuid.UUID) (int64, error) {
	var total int64
	for _, b := range r.f.balances {
		if b.ProductID == productID && b.LocationID == locationID {
			total += b.Quantity
		}
	}
	return total, nil
}

func (r *fakeBalanceRepo) collect(match func(*inventory.StockBalance) bool) []inventory.StockBalance {
	var out []inventory.StockBalance
	for _, b := range r.f.balances {
		if match(b) {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.Compare(out[i].BatchID.String(), out[j].BatchID.String()) < 0
	})
	return out
}

// ---- StockMoveRepository ----

type fakeMoveRepo struct{ f *fakeLedger }

func (r *fakeMoveRepo) FindByID(_ context.Context, id uuid.UUID) (*inventory.StockMove, error) {
	for i := range r.f.moves {
		if r.f.moves[i].ID == id {
			return &r.f.moves[i], nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeMoveRepo) FindBySale(_ context.Context, saleID uuid.UUID) ([]inventory.StockMove, error) {
	return r.filter(func(m *inventory.StockMove) bool {
		return m.SaleID != nil && *m.SaleID == saleID
	}), nil
}

func (r *fakeMoveRepo) FindBySaleAndType(_ context.Context, saleID uuid.UUID, moveType inventory.MoveType) ([]inventory.StockMove, error) {
	return r.filter(func(m *inventory.StockMove) bool {
		return m.SaleID != nil && *m.SaleID == saleID && m.MoveType == moveType
	}), nil
}

func (r *fakeMoveRepo) FindBySaleLineAndType(_ context.Context, saleLineID uuid.UUID, moveType inventory.MoveType) ([]inventory.StockMove, error) {
	return r.filter(func(m *inventory.StockMove) bool {
		return m.SaleLineID != nil && *m.SaleLineID == saleLineID && m.MoveType == moveType
	}), nil
}

func (r *fakeMoveRepo) FindByRefund(_ context.Context, refundID uuid.UUID) ([]inventory.StockMove, error) {
	return r.filter(func(m *inventory.StockMove) bool {
		return m.RefundID != nil && *m.RefundID == refundID
	}), nil
}

func (r *fakeMoveRepo) SumReversedBySources(_ context.Context, sourceMoveIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	wanted := make(map[uuid.UUID]struct{}, len(sourceMoveIDs))
	for _, id := range sourceMoveIDs {
		wanted[id] = struct{}{}
	}
	sums := make(map[uuid.UUID]int64)
	for i := range r.f.moves {
		m := &r.f.moves[i]
		source := m.SourceMoveID
		if source == nil {
			source = m.ReversedMoveID
		}
		if source == nil {
			continue
		}
		if _, ok := wanted[*source]; ok {
			sums[*source] += m.Quantity
		}
	}
	return sums, nil
}

func (r *fakeMoveRepo) ExistsByRefundAndSource(_ context.Context, refundID, sourceMoveID uuid.UUID) (bool, error) {
	for i := range r.f.moves {
		m := &r.f.moves[i]
		if m.RefundID != nil && *m.RefundID == refundID && m.SourceMoveID != nil && *m.SourceMoveID == sourceMoveID {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeMoveRepo) SumByKey(_ context.Context, productID, batchID, locationID uuid.UUID) (int64, error) {
	var total int64
	for i := range r.f.moves {
		m := &r.f.moves[i]
		if m.ProductID == productID && m.BatchID == batchID && m.LocationID == locationID {
			total += m.Quantity
		}
	}
	return total, nil
}

func (r *fakeMoveRepo) FindByProduct(_ context.Context, productID uuid.UUID, limit int) ([]inventory.StockMove, error) {
	moves := r.filter(func(m *inventory.StockMove) bool { return m.ProductID == productID })
	if limit > 0 && len(moves) > limit {
		moves = moves[:limit]
	}
	return moves, nil
}

func (r *fakeMoveRepo) Create(_ context.Context, move *inventory.StockMove) error {
	for i := range r.f.moves {
		if r.f.moves[i].IdempotencyKey == move.IdempotencyKey {
			return shared.ErrAlreadyExists
		}
	}
	r.f.moves = append(r.f.moves, *move)
	return nil
}

func (r *fakeMoveRepo) CreateBatch(ctx context.Context, moves []*inventory.StockMove) error {
	for _, m := range moves {
		if err := r.Create(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeMoveRepo) filter(match func(*inventory.StockMove) bool) []inventory.StockMove {
	var out []inventory.StockMove
	for i := range r.f.moves {
		if match(&r.f.moves[i]) {
			out = append(out, r.f.moves[i])
		}
	}
	return out
}

// ---- Sale / Refund repositories ----

type fakeSaleRepo struct{ f *fakeLedger }

func (r *fakeSaleRepo) FindByID(_ context.Context, id uuid.UUID) (*sales.Sale, error) {
	if s, ok := r.f.sales[id]; ok {
		return s, nil
	}
	return nil, shared.ErrNotFound
}

func (r *fakeSaleRepo) LockByID(ctx context.Context, id uuid.UUID) (*sales.Sale, error) {
	return r.FindByID(ctx, id)
}

type fakeRefundRepo struct{ f *fakeLedger }

func (r *fakeRefundRepo) FindByID(_ context.Context, id uuid.UUID) (*sales.Refund, error) {
	if rf, ok := r.f.refunds[id]; ok {
		return rf, nil
	}
	return nil, shared.ErrNotFound
}

// seedSale builds a finalized single-line sale for the given product
func (f *fakeLedger) seedSale(productID uuid.UUID, locationID *uuid.UUID, quantity int64) *sales.Sale {
	sale := &sales.Sale{
		BaseEntity: shared.NewBaseEntity(),
		Number:     fmt.Sprintf("S-%04d", len(f.sales)+1),
		Status:     sales.SaleStatusFinalized,
		LocationID: locationID,
	}
	line := sales.SaleLine{
		BaseEntity: shared.NewBaseEntity(),
		SaleID:     sale.ID,
		LineNo:     1,
		ProductID:  productID,
		Quantity:   quantity,
		Stockable:  true,
	}
	sale.Lines = []sales.SaleLine{line}
	f.sales[sale.ID] = sale
	return sale
}
