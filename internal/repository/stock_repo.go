package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wjiang/picktrace/internal/domain"
)

// StockRepository handles instrument reference data.
type StockRepository struct {
	db *gorm.DB
}

// NewStockRepository creates a new StockRepository.
func NewStockRepository(db *gorm.DB) *StockRepository {
	return &StockRepository{db: db}
}

// GetByTicker retrieves one stock row, or domain.ErrNotFound.
func (r *StockRepository) GetByTicker(ctx context.Context, ticker string) (*domain.Stock, error) {
	var stock domain.Stock
	if err := r.db.WithContext(ctx).Where("ticker = ?", ticker).First(&stock).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &stock, nil
}

// EnsureExists inserts the stock if its ticker is new; existing rows keep
// their data.
func (r *StockRepository) EnsureExists(ctx context.Context, stock *domain.Stock) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "ticker"}},
			DoNothing: true,
		}).
		Create(stock).Error
}

// UpdatePrice writes a fresh quote onto the stock row.
func (r *StockRepository) UpdatePrice(ctx context.Context, ticker string, price float64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.Stock{}).
		Where("ticker = ?", ticker).
		Updates(map[string]interface{}{
			"last_price":       price,
			"price_updated_at": at,
		}).Error
}

// ListByTickers fetches stock rows for the given tickers.
func (r *StockRepository) ListByTickers(ctx context.Context, tickers []string) ([]domain.Stock, error) {
	if len(tickers) == 0 {
		return nil, nil
	}
	var stocks []domain.Stock
	if err := r.db.WithContext(ctx).Where("ticker IN ?", tickers).Find(&stocks).Error; err != nil {
		return nil, err
	}
	return stocks, nil
}
