package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"auction-core/internal/domain"
)

// In-memory doubles for the persistence and Redis ports. The store models
// the guarded terminal update and commit/rollback buffering so the services
// are exercised against the same semantics the MySQL implementation has.

type memStore struct {
	mu       sync.Mutex
	auctions map[string]*domain.Auction
	bids     map[string][]*domain.Bid
	locks    map[string]*sync.Mutex // per-auction row lock held for the tx lifetime

	beginErr   map[string]error // one-shot BeginExclusive failures per auction
	commitErrs []error          // popped on each Commit
}

func newMemStore() *memStore {
	return &memStore{
		auctions: make(map[string]*domain.Auction),
		bids:     make(map[string][]*domain.Bid),
		locks:    make(map[string]*sync.Mutex),
		beginErr: make(map[string]error),
	}
}

func copyAuction(a *domain.Auction) *domain.Auction {
	c := *a
	if a.BuyoutPrice != nil {
		v := *a.BuyoutPrice
		c.BuyoutPrice = &v
	}
	if a.WinnerID != nil {
		v := *a.WinnerID
		c.WinnerID = &v
	}
	return &c
}

func (s *memStore) CreateAuction(ctx context.Context, auction *domain.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auctions[auction.ID] = copyAuction(auction)
	return nil
}

func (s *memStore) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.auctions[auctionID]
	if !ok {
		return nil, domain.ErrAuctionNotFound
	}
	return copyAuction(a), nil
}

func topBidsOf(bids []*domain.Bid, n int) []*domain.TopBid {
	var live []*domain.Bid
	for _, b := range bids {
		if !b.IsRemoved {
			live = append(live, b)
		}
	}
	sort.SliceStable(live, func(i, j int) bool {
		if live[i].Amount != live[j].Amount {
			return live[i].Amount > live[j].Amount
		}
		return live[i].CreatedAt.Before(live[j].CreatedAt)
	})
	if len(live) > n {
		live = live[:n]
	}
	top := make([]*domain.TopBid, 0, len(live))
	for _, b := range live {
		top = append(top, &domain.TopBid{
			BidID:     b.ID,
			BidderID:  b.BidderID,
			Amount:    b.Amount,
			CreatedAt: b.CreatedAt,
		})
	}
	return top
}

func (s *memStore) TopBids(ctx context.Context, auctionID string, n int) ([]*domain.TopBid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return topBidsOf(s.bids[auctionID], n), nil
}

func (s *memStore) ListExpired(ctx context.Context, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, a := range s.auctions {
		if a.Status == domain.AuctionActive && !a.EndAt.After(now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *memStore) BeginExclusive(ctx context.Context, auctionID string) (domain.AuctionTx, error) {
	s.mu.Lock()
	if err, ok := s.beginErr[auctionID]; ok {
		delete(s.beginErr, auctionID)
		s.mu.Unlock()
		return nil, err
	}
	if _, ok := s.auctions[auctionID]; !ok {
		s.mu.Unlock()
		return nil, domain.ErrAuctionNotFound
	}
	rowLock, ok := s.locks[auctionID]
	if !ok {
		rowLock = &sync.Mutex{}
		s.locks[auctionID] = rowLock
	}
	s.mu.Unlock()

	// Block until the row is free, then snapshot the committed state, same
	// as SELECT ... FOR UPDATE.
	rowLock.Lock()
	s.mu.Lock()
	a := copyAuction(s.auctions[auctionID])
	s.mu.Unlock()
	return &memTx{s: s, auction: a, rowLock: rowLock}, nil
}

type removalOp struct {
	bidID  string
	by     string
	reason string
}

type finalizeOp struct {
	status   domain.AuctionStatus
	winnerID *string
	at       time.Time
}

type memTx struct {
	s        *memStore
	auction  *domain.Auction
	rowLock  *sync.Mutex
	inserted []*domain.Bid
	updated  *domain.Auction
	final    *finalizeOp
	removals []removalOp
	done     bool
}

func (tx *memTx) Auction() *domain.Auction {
	return tx.auction
}

func (tx *memTx) TopBids(ctx context.Context, n int) ([]*domain.TopBid, error) {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	all := append([]*domain.Bid{}, tx.s.bids[tx.auction.ID]...)
	all = append(all, tx.inserted...)
	return topBidsOf(all, n), nil
}

func (tx *memTx) InsertBid(ctx context.Context, bid *domain.Bid) error {
	b := *bid
	tx.inserted = append(tx.inserted, &b)
	return nil
}

func (tx *memTx) UpdateAuction(ctx context.Context, auction *domain.Auction) error {
	tx.updated = copyAuction(auction)
	return nil
}

func (tx *memTx) Finalize(ctx context.Context, status domain.AuctionStatus, winnerID *string, now time.Time) (bool, error) {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	row, ok := tx.s.auctions[tx.auction.ID]
	if !ok || row.Status != domain.AuctionActive {
		return false, nil
	}
	tx.final = &finalizeOp{status: status, winnerID: winnerID, at: now}
	return true, nil
}

func (tx *memTx) RemoveBid(ctx context.Context, bidID, removedBy, reason string) (bool, error) {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	for _, b := range tx.s.bids[tx.auction.ID] {
		if b.ID == bidID && !b.IsRemoved {
			tx.removals = append(tx.removals, removalOp{bidID: bidID, by: removedBy, reason: reason})
			return true, nil
		}
	}
	return false, nil
}

func (tx *memTx) Commit() error {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	if tx.done {
		return fmt.Errorf("commit on finished tx")
	}
	tx.done = true
	defer tx.rowLock.Unlock()

	if len(tx.s.commitErrs) > 0 {
		err := tx.s.commitErrs[0]
		tx.s.commitErrs = tx.s.commitErrs[1:]
		if err != nil {
			return err
		}
	}

	for _, b := range tx.inserted {
		tx.s.bids[b.AuctionID] = append(tx.s.bids[b.AuctionID], b)
	}
	if tx.updated != nil {
		tx.s.auctions[tx.updated.ID] = copyAuction(tx.updated)
	}
	if tx.final != nil {
		row := tx.s.auctions[tx.auction.ID]
		row.Status = tx.final.status
		row.WinnerID = tx.final.winnerID
		row.UpdatedAt = tx.final.at
	}
	for _, rm := range tx.removals {
		for _, b := range tx.s.bids[tx.auction.ID] {
			if b.ID == rm.bidID {
				b.IsRemoved = true
				by, reason := rm.by, rm.reason
				b.RemovedByUserID = &by
				b.RemovedReason = &reason
			}
		}
	}
	return nil
}

func (tx *memTx) Rollback() error {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	if tx.done {
		return nil
	}
	tx.done = true
	tx.rowLock.Unlock()
	return nil
}

func conflictErr() error {
	return fmt.Errorf("%w: deadlock detected", domain.ErrConflict)
}

type fakeGuard struct {
	mu       sync.Mutex
	cooldown map[string]bool
	seen     map[string]bool
	started  []string
	marked   []string
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{
		cooldown: make(map[string]bool),
		seen:     make(map[string]bool),
	}
}

func guardKey(auctionID, bidderID string) string {
	return auctionID + "|" + bidderID
}

func (g *fakeGuard) InCooldown(ctx context.Context, auctionID, bidderID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cooldown[guardKey(auctionID, bidderID)], nil
}

func (g *fakeGuard) StartCooldown(ctx context.Context, auctionID, bidderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := guardKey(auctionID, bidderID)
	g.cooldown[key] = true
	g.started = append(g.started, key)
	return nil
}

func (g *fakeGuard) SeenRequest(ctx context.Context, idempotencyKey string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seen[idempotencyKey], nil
}

func (g *fakeGuard) MarkRequest(ctx context.Context, idempotencyKey string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen[idempotencyKey] = true
	g.marked = append(g.marked, idempotencyKey)
	return nil
}

type fakeConfirms struct {
	mu     sync.Mutex
	tokens map[string]string
	minted int
}

func newFakeConfirms() *fakeConfirms {
	return &fakeConfirms{tokens: make(map[string]string)}
}

func confirmKey(auctionID, bidderID string, action domain.BidAction) string {
	return auctionID + "|" + bidderID + "|" + action.String()
}

func (c *fakeConfirms) Mint(ctx context.Context, auctionID, bidderID string, action domain.BidAction) (*domain.ConfirmationToken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.minted++
	token := fmt.Sprintf("tok_%d", c.minted)
	c.tokens[confirmKey(auctionID, bidderID, action)] = token
	return &domain.ConfirmationToken{
		Token:     token,
		AuctionID: auctionID,
		BidderID:  bidderID,
		Action:    action,
		ExpiresAt: time.Now().Add(5 * time.Second),
	}, nil
}

func (c *fakeConfirms) Consume(ctx context.Context, auctionID, bidderID string, action domain.BidAction, token string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := confirmKey(auctionID, bidderID, action)
	if c.tokens[key] != token {
		return false, nil
	}
	delete(c.tokens, key)
	return true, nil
}

type fakeGate struct {
	blacklisted map[string]bool
}

func newFakeGate() *fakeGate {
	return &fakeGate{blacklisted: make(map[string]bool)}
}

func (g *fakeGate) IsBlacklisted(ctx context.Context, userID string) (bool, error) {
	return g.blacklisted[userID], nil
}

type fakeNotifier struct {
	mu      sync.Mutex
	updates []string
	direct  map[string][]interface{}
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{direct: make(map[string][]interface{})}
}

func (n *fakeNotifier) PostUpdate(ctx context.Context, auctionID string, view *domain.AuctionView) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, auctionID)
	return nil
}

func (n *fakeNotifier) NotifyUser(ctx context.Context, userID string, message interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.direct[userID] = append(n.direct[userID], message)
	return nil
}

func (n *fakeNotifier) messagesFor(userID string) []interface{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.direct[userID]
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*domain.AuctionEvent
}

func (p *fakePublisher) PublishAuctionEvent(ctx context.Context, event *domain.AuctionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) ofType(t domain.AuctionEventType) []*domain.AuctionEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*domain.AuctionEvent
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fakeLeader struct {
	leader bool
}

func (l *fakeLeader) BecomeLeader(ctx context.Context, instanceID string) (bool, error) {
	return l.leader, nil
}

func (l *fakeLeader) IsLeader(ctx context.Context, instanceID string) (bool, error) {
	return l.leader, nil
}

func (l *fakeLeader) ReleaseLeadership(ctx context.Context, instanceID string) error {
	l.leader = false
	return nil
}
