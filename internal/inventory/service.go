package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medimartlabs/medimart-backend/pkg/db/models"
	pkgerrors "github.com/medimartlabs/medimart-backend/pkg/errors"
)

// Service moves quantity between a product's aggregate counter and its
// expiry-dated batches. Deduct and Restore must run inside the caller's
// transaction so inventory changes commit or roll back with the order
// transition that triggered them.
type Service interface {
	CheckAvailability(ctx context.Context, tenantID uuid.UUID, lines []models.OrderLine) ([]string, error)
	Deduct(ctx context.Context, tx *gorm.DB, tenantID, orderID uuid.UUID, lines []models.OrderLine) error
	Restore(ctx context.Context, tx *gorm.DB, tenantID, orderID uuid.UUID, lines []models.OrderLine) error
}

type service struct {
	db *gorm.DB
}

// NewService builds an inventory service bound to the provided database.
func NewService(db *gorm.DB) (Service, error) {
	if db == nil {
		return nil, fmt.Errorf("database required")
	}
	return &service{db: db}, nil
}

// CheckAvailability is an advisory read: it reports which lines exceed the
// product aggregate right now. Deduct re-checks atomically, so a clean result
// here is not a reservation.
func (s *service) CheckAvailability(ctx context.Context, tenantID uuid.UUID, lines []models.OrderLine) ([]string, error) {
	if tenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id required")
	}

	var unavailable []string
	for _, line := range lines {
		var product models.Product
		err := s.db.WithContext(ctx).
			Where("id = ? AND tenant_id = ?", line.ProductID, tenantID).
			First(&product).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				unavailable = append(unavailable, line.ProductName)
				continue
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}
		if product.TotalQuantity < line.Quantity {
			unavailable = append(unavailable, line.ProductName)
		}
	}
	return unavailable, nil
}

// Deduct takes stock for an order. Per line the aggregate decrement is a
// single conditional update, so two racing deductions can never both succeed
// on the last units. Batch consumption follows FEFO: drain the
// soonest-to-expire batch before touching the next. One StockMovement row is
// written per batch touched so Restore can replay the exact layout.
func (s *service) Deduct(ctx context.Context, tx *gorm.DB, tenantID, orderID uuid.UUID, lines []models.OrderLine) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for inventory deduct")
	}
	if tenantID == uuid.Nil || orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "tenant and order ids required")
	}

	var unavailable []string
	for _, line := range lines {
		if line.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid quantity for %s", line.ProductName))
		}
		res := tx.WithContext(ctx).Exec(`
			UPDATE products
			SET total_quantity = total_quantity - ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND tenant_id = ? AND total_quantity >= ?
		`, line.Quantity, line.ProductID, tenantID, line.Quantity)
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "decrement product aggregate")
		}
		if res.RowsAffected == 0 {
			unavailable = append(unavailable, line.ProductName)
		}
	}
	if len(unavailable) > 0 {
		// the surrounding tx rolls back any decrements already applied
		return pkgerrors.New(pkgerrors.CodeInsufficientStock, "requested quantity not available").
			WithDetails(unavailable)
	}

	for _, line := range lines {
		if err := s.consumeBatches(ctx, tx, tenantID, orderID, line); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) consumeBatches(ctx context.Context, tx *gorm.DB, tenantID, orderID uuid.UUID, line models.OrderLine) error {
	var batches []models.StockBatch
	err := tx.WithContext(ctx).
		Where("product_id = ? AND tenant_id = ? AND quantity > 0", line.ProductID, tenantID).
		Order("expiry_date ASC, created_at ASC").
		Find(&batches).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock batches")
	}

	remaining := line.Quantity
	for _, batch := range batches {
		if remaining == 0 {
			break
		}
		take := batch.Quantity
		if take > remaining {
			take = remaining
		}
		res := tx.WithContext(ctx).Exec(`
			UPDATE stock_batches
			SET quantity = quantity - ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND quantity >= ?
		`, take, batch.ID, take)
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "decrement stock batch")
		}
		if res.RowsAffected == 0 {
			return pkgerrors.New(pkgerrors.CodeLedgerConflict, "stock batch changed underneath deduction").
				WithDetails(line.ProductName)
		}

		movement := &models.StockMovement{
			OrderID:   orderID,
			ProductID: line.ProductID,
			BatchID:   batch.ID,
			Quantity:  take,
			Direction: models.StockMovementDeduct,
		}
		if err := tx.WithContext(ctx).Create(movement).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record stock movement")
		}
		remaining -= take
	}

	if remaining > 0 {
		// aggregate said yes but batches could not cover it; fatal to the transition
		return pkgerrors.New(pkgerrors.CodeLedgerConflict, "batch quantities do not cover the product aggregate").
			WithDetails(line.ProductName)
	}
	return nil
}

// Restore returns an order's stock. When the order has recorded deduct
// movements the original batch layout is replayed exactly; otherwise the
// quantity is credited to the earliest-expiry batch as an approximation.
func (s *service) Restore(ctx context.Context, tx *gorm.DB, tenantID, orderID uuid.UUID, lines []models.OrderLine) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for inventory restore")
	}
	if tenantID == uuid.Nil || orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "tenant and order ids required")
	}

	var movements []models.StockMovement
	err := tx.WithContext(ctx).
		Where("order_id = ? AND direction = ?", orderID, models.StockMovementDeduct).
		Order("created_at ASC").
		Find(&movements).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock movements")
	}

	if len(movements) > 0 {
		return s.restoreFromMovements(ctx, tx, tenantID, orderID, movements)
	}
	return s.restoreApproximate(ctx, tx, tenantID, orderID, lines)
}

func (s *service) restoreFromMovements(ctx context.Context, tx *gorm.DB, tenantID, orderID uuid.UUID, movements []models.StockMovement) error {
	perProduct := map[uuid.UUID]int{}
	for _, movement := range movements {
		res := tx.WithContext(ctx).Exec(`
			UPDATE stock_batches
			SET quantity = quantity + ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, movement.Quantity, movement.BatchID)
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "credit stock batch")
		}
		if res.RowsAffected == 0 {
			return pkgerrors.New(pkgerrors.CodeLedgerConflict, "recorded batch missing during restore")
		}

		restore := &models.StockMovement{
			OrderID:   orderID,
			ProductID: movement.ProductID,
			BatchID:   movement.BatchID,
			Quantity:  movement.Quantity,
			Direction: models.StockMovementRestore,
		}
		if err := tx.WithContext(ctx).Create(restore).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record restore movement")
		}
		perProduct[movement.ProductID] += movement.Quantity
	}

	for productID, qty := range perProduct {
		if err := s.creditAggregate(ctx, tx, tenantID, productID, qty); err != nil {
			return err
		}
	}
	return nil
}

// restoreApproximate credits the earliest-expiring batch unconditionally.
// Batches carry no capacity ceiling, so "has room" cannot be evaluated; the
// conservative choice is to keep FEFO pressure on the oldest stock.
func (s *service) restoreApproximate(ctx context.Context, tx *gorm.DB, tenantID, orderID uuid.UUID, lines []models.OrderLine) error {
	for _, line := range lines {
		var batch models.StockBatch
		err := tx.WithContext(ctx).
			Where("product_id = ? AND tenant_id = ?", line.ProductID, tenantID).
			Order("expiry_date ASC, created_at ASC").
			First(&batch).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeLedgerConflict, "no batch available to receive restored stock").
					WithDetails(line.ProductName)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load earliest-expiry batch")
		}

		res := tx.WithContext(ctx).Exec(`
			UPDATE stock_batches
			SET quantity = quantity + ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, line.Quantity, batch.ID)
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "credit stock batch")
		}

		restore := &models.StockMovement{
			OrderID:   orderID,
			ProductID: line.ProductID,
			BatchID:   batch.ID,
			Quantity:  line.Quantity,
			Direction: models.StockMovementRestore,
		}
		if err := tx.WithContext(ctx).Create(restore).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record restore movement")
		}

		if err := s.creditAggregate(ctx, tx, tenantID, line.ProductID, line.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) creditAggregate(ctx context.Context, tx *gorm.DB, tenantID, productID uuid.UUID, qty int) error {
	res := tx.WithContext(ctx).Exec(`
		UPDATE products
		SET total_quantity = total_quantity + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND tenant_id = ?
	`, qty, productID, tenantID)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "credit product aggregate")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeLedgerConflict, "product missing during restore")
	}
	return nil
}
