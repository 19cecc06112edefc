package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	market "energy-exchange/internal/market/domain"
	"energy-exchange/internal/platform/pgutil"
)

const (
	marketKey         = "default"
	defaultListLimit  = 200
	offerColumns      = "id, seller, energy_amount::text, price_per_unit::text, offer_type, status, filled_amount::text, created_at, expires_at, updated_at"
	tradeColumns      = "id, offer_id, buyer, seller, energy_amount::text, price_per_unit::text, total_cost::text, executed_at"
	defaultOffersTbl  = "energy_offers"
	defaultTradesTbl  = "trades"
	defaultMarketsTbl = "market"
)

// Repository persists market records in Postgres.
type Repository struct {
	db          *sql.DB
	marketTable string
	offersTable string
	tradesTable string
}

// Option configures the repository.
type Option func(*Repository)

// WithOffersTable overrides the offers table name.
func WithOffersTable(table string) Option {
	return func(r *Repository) {
		if r != nil && table != "" {
			r.offersTable = table
		}
	}
}

// WithTradesTable overrides the trades table name.
func WithTradesTable(table string) Option {
	return func(r *Repository) {
		if r != nil && table != "" {
			r.tradesTable = table
		}
	}
}

// NewRepository constructs a repository.
func NewRepository(db *sql.DB, opts ...Option) *Repository {
	repo := &Repository{db: db, marketTable: defaultMarketsTbl, offersTable: defaultOffersTbl, tradesTable: defaultTradesTbl}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// GetMarket loads the market.
func (r *Repository) GetMarket(ctx context.Context) (*market.Market, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("market repo: nil db")
	}
	var (
		authority            string
		offers, volume       pgutil.Uint64
		isActive             bool
		createdAt, updatedAt time.Time
	)
	err := r.db.QueryRowContext(ctx, `
SELECT authority, total_offers::text, total_volume_traded::text, is_active, created_at, updated_at
FROM `+r.marketTable+`
WHERE id = $1`, marketKey).Scan(&authority, &offers, &volume, &isActive, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("market repo: get market: %w", err)
	}
	return market.RestoreMarket(authority, offers.V, volume.V, isActive, createdAt, updatedAt), nil
}

// CreateMarket inserts the market row once.
func (r *Repository) CreateMarket(ctx context.Context, m *market.Market) error {
	if r == nil || r.db == nil {
		return errors.New("market repo: nil db")
	}
	if m == nil {
		return market.ErrNilAggregate
	}
	res, err := r.db.ExecContext(ctx, `
INSERT INTO `+r.marketTable+` (id, authority, total_offers, total_volume_traded, is_active, created_at, updated_at)
VALUES ($1, $2, $3::numeric, $4::numeric, $5, $6, $7)
ON CONFLICT (id) DO NOTHING`,
		marketKey, m.Authority(), pgutil.Uint64Param(m.TotalOffers()), pgutil.Uint64Param(m.TotalVolumeTraded()),
		m.IsActive(), m.CreatedAt(), m.UpdatedAt())
	if err != nil {
		return fmt.Errorf("market repo: create market: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return market.ErrAlreadyInitialized
	}
	return nil
}

// SaveMarket updates counters and the active flag.
func (r *Repository) SaveMarket(ctx context.Context, m *market.Market) error {
	if r == nil || r.db == nil {
		return errors.New("market repo: nil db")
	}
	if m == nil {
		return market.ErrNilAggregate
	}
	return r.saveMarket(ctx, r.db, m)
}

// CreateOffer inserts the offer and saves the market in one transaction.
func (r *Repository) CreateOffer(ctx context.Context, offer *market.Offer, m *market.Market) error {
	if r == nil || r.db == nil {
		return errors.New("market repo: nil db")
	}
	if offer == nil || m == nil {
		return market.ErrNilAggregate
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO `+r.offersTable+` (id, seller, energy_amount, price_per_unit, offer_type, status, filled_amount, created_at, expires_at, updated_at)
VALUES ($1, $2, $3::numeric, $4::numeric, $5, $6, $7::numeric, $8, $9, $10)`,
		offer.ID(), offer.Seller(), pgutil.Uint64Param(offer.EnergyAmount()), pgutil.Uint64Param(offer.PricePerUnit()),
		string(offer.Type()), string(offer.Status()), pgutil.Uint64Param(offer.FilledAmount()),
		offer.CreatedAt(), offer.ExpiresAt(), offer.UpdatedAt())
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("market repo: insert offer: %w", err)
	}
	if err := r.saveMarket(ctx, tx, m); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// FindOffer loads an offer.
func (r *Repository) FindOffer(ctx context.Context, offerID string) (*market.Offer, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("market repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+offerColumns+` FROM `+r.offersTable+` WHERE id = $1`, offerID)
	offer, err := scanOffer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("market repo: find offer: %w", err)
	}
	return offer, nil
}

// SaveOffer updates an offer's mutable fields.
func (r *Repository) SaveOffer(ctx context.Context, offer *market.Offer) error {
	if r == nil || r.db == nil {
		return errors.New("market repo: nil db")
	}
	if offer == nil {
		return market.ErrNilAggregate
	}
	return r.saveOffer(ctx, r.db, offer)
}

// ListOffers returns matching offers newest first.
func (r *Repository) ListOffers(ctx context.Context, filter market.OfferFilter) ([]*market.Offer, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("market repo: nil db")
	}
	var (
		where []string
		args  []any
	)
	if filter.Seller != "" {
		args = append(args, filter.Seller)
		where = append(where, fmt.Sprintf("seller = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)

	query := `SELECT ` + offerColumns + ` FROM ` + r.offersTable
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("market repo: list offers: %w", err)
	}
	defer rows.Close()

	result := make([]*market.Offer, 0)
	for rows.Next() {
		offer, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, offer)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// RecordTrade stores the trade and saves offer and market in one transaction.
func (r *Repository) RecordTrade(ctx context.Context, trade market.Trade, offer *market.Offer, m *market.Market) error {
	if r == nil || r.db == nil {
		return errors.New("market repo: nil db")
	}
	if offer == nil || m == nil {
		return market.ErrNilAggregate
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO `+r.tradesTable+` (id, offer_id, buyer, seller, energy_amount, price_per_unit, total_cost, executed_at)
VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8)`,
		trade.ID, trade.OfferID, trade.Buyer, trade.Seller, pgutil.Uint64Param(trade.EnergyAmount),
		pgutil.Uint64Param(trade.PricePerUnit), pgutil.Uint64Param(trade.TotalCost), trade.ExecutedAt)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("market repo: insert trade: %w", err)
	}
	if err := r.saveOffer(ctx, tx, offer); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := r.saveMarket(ctx, tx, m); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// ListTrades returns matching trades oldest first.
func (r *Repository) ListTrades(ctx context.Context, filter market.TradeFilter) ([]market.Trade, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("market repo: nil db")
	}
	var (
		where []string
		args  []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.OfferID != "" {
		add("offer_id = $%d", filter.OfferID)
	}
	if filter.Seller != "" {
		add("seller = $%d", filter.Seller)
	}
	if filter.Buyer != "" {
		add("buyer = $%d", filter.Buyer)
	}
	if !filter.From.IsZero() {
		add("executed_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("executed_at < $%d", filter.To)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)

	query := `SELECT ` + tradeColumns + ` FROM ` + r.tradesTable
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(` ORDER BY executed_at ASC, id ASC LIMIT $%d`, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("market repo: list trades: %w", err)
	}
	defer rows.Close()

	result := make([]market.Trade, 0)
	for rows.Next() {
		var (
			trade               market.Trade
			energy, price, cost pgutil.Uint64
		)
		if err := rows.Scan(&trade.ID, &trade.OfferID, &trade.Buyer, &trade.Seller, &energy, &price, &cost, &trade.ExecutedAt); err != nil {
			return nil, err
		}
		trade.EnergyAmount = energy.V
		trade.PricePerUnit = price.V
		trade.TotalCost = cost.V
		trade.ExecutedAt = trade.ExecutedAt.UTC()
		result = append(result, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Repository) saveMarket(ctx context.Context, db queryer, m *market.Market) error {
	res, err := db.ExecContext(ctx, `
UPDATE `+r.marketTable+`
SET total_offers = $2::numeric, total_volume_traded = $3::numeric, is_active = $4, updated_at = $5
WHERE id = $1`,
		marketKey, pgutil.Uint64Param(m.TotalOffers()), pgutil.Uint64Param(m.TotalVolumeTraded()), m.IsActive(), m.UpdatedAt())
	if err != nil {
		return fmt.Errorf("market repo: save market: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return market.ErrNotInitialized
	}
	return nil
}

func (r *Repository) saveOffer(ctx context.Context, db queryer, offer *market.Offer) error {
	res, err := db.ExecContext(ctx, `
UPDATE `+r.offersTable+`
SET status = $2, filled_amount = $3::numeric, updated_at = $4
WHERE id = $1`,
		offer.ID(), string(offer.Status()), pgutil.Uint64Param(offer.FilledAmount()), offer.UpdatedAt())
	if err != nil {
		return fmt.Errorf("market repo: save offer: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return market.ErrOfferNotFound
	}
	return nil
}

func scanOffer(row rowScanner) (*market.Offer, error) {
	var (
		offerID, seller, offerType, status string
		energy, price, filled              pgutil.Uint64
		createdAt, expiresAt, updatedAt    time.Time
	)
	if err := row.Scan(&offerID, &seller, &energy, &price, &offerType, &status, &filled, &createdAt, &expiresAt, &updatedAt); err != nil {
		return nil, err
	}
	return market.RestoreOffer(offerID, seller, energy.V, price.V, market.OfferType(offerType), market.OfferStatus(status),
		filled.V, createdAt, expiresAt, updatedAt), nil
}
