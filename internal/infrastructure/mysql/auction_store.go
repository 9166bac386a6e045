package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"auction-core/internal/domain"
)

// MySQLAuctionStore implements domain.AuctionStore on database/sql. The
// per-auction exclusive lock is SELECT ... FOR UPDATE on the auction row;
// deadlock and lock-wait errors are translated into domain.ErrConflict so
// callers can retry.
type MySQLAuctionStore struct {
	db *sql.DB
}

func NewMySQLAuctionStore(db *sql.DB) *MySQLAuctionStore {
	return &MySQLAuctionStore{db: db}
}

const auctionColumns = `id, seller_id, description, start_price, buyout_price, min_step,
        duration_hours, end_at, anti_sniper_window_secs, anti_sniper_extend_secs,
        max_extensions, extension_count, status, winner_id, created_at, updated_at`

func (s *MySQLAuctionStore) CreateAuction(ctx context.Context, a *domain.Auction) error {
	query := `
        INSERT INTO auctions (` + auctionColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	var endAt interface{}
	if !a.EndAt.IsZero() {
		endAt = a.EndAt
	}
	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.SellerID, a.Description, a.StartPrice, a.BuyoutPrice, a.MinStep,
		a.DurationHours, endAt,
		int(a.AntiSniperWindow.Seconds()), int(a.AntiSniperExtend.Seconds()),
		a.MaxExtensions, a.ExtensionCount, int(a.Status), a.WinnerID,
		a.CreatedAt, a.UpdatedAt)
	return translateErr(err)
}

func (s *MySQLAuctionStore) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = ?`
	row := s.db.QueryRowContext(ctx, query, auctionID)
	return scanAuction(row)
}

func (s *MySQLAuctionStore) TopBids(ctx context.Context, auctionID string, n int) ([]*domain.TopBid, error) {
	rows, err := s.db.QueryContext(ctx, topBidsQuery, auctionID, n)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	return scanTopBids(rows)
}

func (s *MySQLAuctionStore) ListExpired(ctx context.Context, now time.Time) ([]string, error) {
	query := `
        SELECT id FROM auctions
        WHERE status = ? AND end_at IS NOT NULL AND end_at <= ?
        ORDER BY end_at ASC
    `
	rows, err := s.db.QueryContext(ctx, query, int(domain.AuctionActive), now)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *MySQLAuctionStore) BeginExclusive(ctx context.Context, auctionID string) (domain.AuctionTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, translateErr(err)
	}

	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = ? FOR UPDATE`
	auction, err := scanAuction(tx.QueryRowContext(ctx, query, auctionID))
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	return &auctionTx{tx: tx, auction: auction}, nil
}

type auctionTx struct {
	tx      *sql.Tx
	auction *domain.Auction
}

func (t *auctionTx) Auction() *domain.Auction {
	return t.auction
}

func (t *auctionTx) TopBids(ctx context.Context, n int) ([]*domain.TopBid, error) {
	rows, err := t.tx.QueryContext(ctx, topBidsQuery, t.auction.ID, n)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	return scanTopBids(rows)
}

func (t *auctionTx) InsertBid(ctx context.Context, bid *domain.Bid) error {
	query := `
        INSERT INTO bids (id, auction_id, bidder_id, amount, is_removed, created_at)
        VALUES (?, ?, ?, ?, FALSE, ?)
    `
	_, err := t.tx.ExecContext(ctx, query,
		bid.ID, bid.AuctionID, bid.BidderID, bid.Amount, bid.CreatedAt)
	return translateErr(err)
}

func (t *auctionTx) UpdateAuction(ctx context.Context, a *domain.Auction) error {
	query := `
        UPDATE auctions
        SET status = ?, end_at = ?, extension_count = ?, winner_id = ?, updated_at = ?
        WHERE id = ?
    `
	var endAt interface{}
	if !a.EndAt.IsZero() {
		endAt = a.EndAt
	}
	_, err := t.tx.ExecContext(ctx, query,
		int(a.Status), endAt, a.ExtensionCount, a.WinnerID, a.UpdatedAt, a.ID)
	return translateErr(err)
}

func (t *auctionTx) Finalize(ctx context.Context, status domain.AuctionStatus, winnerID *string, now time.Time) (bool, error) {
	if !status.IsTerminal() {
		return false, fmt.Errorf("finalize to non-terminal status %s", status)
	}
	// The WHERE status guard is the claim: concurrent schedulers and racing
	// buyouts resolve to exactly one winner of this update.
	query := `
        UPDATE auctions
        SET status = ?, winner_id = ?, updated_at = ?
        WHERE id = ? AND status = ?
    `
	res, err := t.tx.ExecContext(ctx, query,
		int(status), winnerID, now, t.auction.ID, int(domain.AuctionActive))
	if err != nil {
		return false, translateErr(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (t *auctionTx) RemoveBid(ctx context.Context, bidID, removedBy, reason string) (bool, error) {
	query := `
        UPDATE bids
        SET is_removed = TRUE, removed_reason = ?, removed_by = ?
        WHERE id = ? AND auction_id = ? AND is_removed = FALSE
    `
	res, err := t.tx.ExecContext(ctx, query, reason, removedBy, bidID, t.auction.ID)
	if err != nil {
		return false, translateErr(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (t *auctionTx) Commit() error {
	return translateErr(t.tx.Commit())
}

func (t *auctionTx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// topBidsQuery backs both winner determination and the top-3 view. Ordering
// is amount desc then earliest bid first; removed bids never count.
// Relies on the (auction_id, is_removed, amount, created_at) index.
const topBidsQuery = `
        SELECT id, bidder_id, amount, created_at
        FROM bids
        WHERE auction_id = ? AND is_removed = FALSE
        ORDER BY amount DESC, created_at ASC
        LIMIT ?
    `

func scanTopBids(rows *sql.Rows) ([]*domain.TopBid, error) {
	var top []*domain.TopBid
	for rows.Next() {
		var b domain.TopBid
		if err := rows.Scan(&b.BidID, &b.BidderID, &b.Amount, &b.CreatedAt); err != nil {
			return nil, err
		}
		top = append(top, &b)
	}
	return top, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAuction(row rowScanner) (*domain.Auction, error) {
	var a domain.Auction
	var status, windowSecs, extendSecs int
	var endAt sql.NullTime

	err := row.Scan(
		&a.ID, &a.SellerID, &a.Description, &a.StartPrice, &a.BuyoutPrice, &a.MinStep,
		&a.DurationHours, &endAt, &windowSecs, &extendSecs,
		&a.MaxExtensions, &a.ExtensionCount, &status, &a.WinnerID,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAuctionNotFound
		}
		return nil, translateErr(err)
	}

	a.Status = domain.AuctionStatus(status)
	a.AntiSniperWindow = time.Duration(windowSecs) * time.Second
	a.AntiSniperExtend = time.Duration(extendSecs) * time.Second
	if endAt.Valid {
		a.EndAt = endAt.Time
	}
	return &a, nil
}

// MySQL error numbers for deadlock and lock wait timeout.
const (
	erLockDeadlock    = 1213
	erLockWaitTimeout = 1205
)

func translateErr(err error) error {
	if err == nil {
		return nil
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		if mysqlErr.Number == erLockDeadlock || mysqlErr.Number == erLockWaitTimeout {
			return fmt.Errorf("%w: %v", domain.ErrConflict, err)
		}
	}
	return err
}
