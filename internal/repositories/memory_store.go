package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"learnhub/internal/models"
)

// MemoryStore is an in-process Store. Transactions stage their writes
// and apply them under one lock at commit, after re-checking the
// statistics version, so concurrent transactions behave like the
// Postgres store: the loser gets ErrVersionConflict and nothing it
// wrote is visible.
type MemoryStore struct {
	mu       sync.RWMutex
	stats    map[string]models.UserStatistics
	badges   map[string]map[string]models.AwardedBadge
	ledger   map[string][]models.XPLedgerEntry
	receipts map[string]map[string]time.Time

	logger *zap.Logger
	now    func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		stats:    make(map[string]models.UserStatistics),
		badges:   make(map[string]map[string]models.AwardedBadge),
		ledger:   make(map[string][]models.XPLedgerEntry),
		receipts: make(map[string]map[string]time.Time),
		logger:   logger,
		now:      time.Now,
	}
}

// Repositories returns auto-commit repositories
func (s *MemoryStore) Repositories() *Collection {
	return s.collection(nil)
}

// WithTransaction runs fn against staged repositories and commits the
// staged writes atomically when fn succeeds.
func (s *MemoryStore) WithTransaction(ctx context.Context, fn func(*Collection) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := newMemTx()
	if err := fn(s.collection(tx)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.commit(tx)
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) collection(tx *memTx) *Collection {
	view := &memView{store: s, tx: tx}
	return &Collection{
		Statistics: (*memStatistics)(view),
		Badges:     (*memBadges)(view),
		XP:         (*memXP)(view),
		Receipts:   (*memReceipts)(view),
	}
}

// ===============================
// STAGING
// ===============================

type statsWrite struct {
	stats           models.UserStatistics
	expectedVersion int64
}

type memTx struct {
	stats    map[string]statsWrite
	badges   []models.AwardedBadge
	ledger   []models.XPLedgerEntry
	receipts []receiptWrite
}

type receiptWrite struct {
	userID, key string
	at          time.Time
}

func newMemTx() *memTx {
	return &memTx{stats: make(map[string]statsWrite)}
}

func (t *memTx) hasBadge(userID, badgeID string) bool {
	for _, b := range t.badges {
		if b.UserID == userID && b.BadgeID == badgeID {
			return true
		}
	}
	return false
}

func (t *memTx) hasReceipt(userID, key string) bool {
	for _, r := range t.receipts {
		if r.userID == userID && r.key == key {
			return true
		}
	}
	return false
}

// commit validates every staged write against committed state and then
// applies all of them. Nothing is applied if any check fails.
func (s *MemoryStore) commit(tx *memTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for userID, w := range tx.stats {
		if s.stats[userID].Version != w.expectedVersion {
			s.logger.Debug("Statistics version conflict at commit",
				zap.String("user_id", userID),
				zap.Int64("expected_version", w.expectedVersion),
				zap.Int64("current_version", s.stats[userID].Version),
			)
			return ErrVersionConflict
		}
	}
	for _, b := range tx.badges {
		if _, ok := s.badges[b.UserID][b.BadgeID]; ok {
			return ErrVersionConflict
		}
	}
	for _, r := range tx.receipts {
		if _, ok := s.receipts[r.userID][r.key]; ok {
			return ErrVersionConflict
		}
	}

	for userID, w := range tx.stats {
		s.stats[userID] = w.stats
	}
	for _, b := range tx.badges {
		s.putBadgeLocked(b)
	}
	for _, e := range tx.ledger {
		s.ledger[e.UserID] = append(s.ledger[e.UserID], e)
	}
	for _, r := range tx.receipts {
		s.putReceiptLocked(r)
	}
	return nil
}

func (s *MemoryStore) putBadgeLocked(b models.AwardedBadge) {
	if s.badges[b.UserID] == nil {
		s.badges[b.UserID] = make(map[string]models.AwardedBadge)
	}
	s.badges[b.UserID][b.BadgeID] = b
}

func (s *MemoryStore) putReceiptLocked(r receiptWrite) {
	if s.receipts[r.userID] == nil {
		s.receipts[r.userID] = make(map[string]time.Time)
	}
	s.receipts[r.userID][r.key] = r.at
}

// memView is the shared state behind the four repository facades.
// tx is nil for auto-commit access.
type memView struct {
	store *MemoryStore
	tx    *memTx
}

// ===============================
// STATISTICS
// ===============================

type memStatistics memView

func (r *memStatistics) Get(ctx context.Context, userID string) (*models.UserStatistics, error) {
	if r.tx != nil {
		if w, ok := r.tx.stats[userID]; ok {
			stats := w.stats
			return &stats, nil
		}
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	stats, ok := r.store.stats[userID]
	if !ok {
		return nil, nil
	}
	return &stats, nil
}

func (r *memStatistics) Put(ctx context.Context, stats *models.UserStatistics, expectedVersion int64) error {
	updated := *stats
	updated.Version = expectedVersion + 1
	updated.UpdatedAt = r.store.now().UTC()

	if r.tx != nil {
		if w, ok := r.tx.stats[stats.UserID]; ok {
			// A second Put in one transaction compares against the staged row.
			if w.stats.Version != expectedVersion {
				return ErrVersionConflict
			}
			r.tx.stats[stats.UserID] = statsWrite{stats: updated, expectedVersion: w.expectedVersion}
		} else {
			r.store.mu.RLock()
			current := r.store.stats[stats.UserID].Version
			r.store.mu.RUnlock()
			if current != expectedVersion {
				return ErrVersionConflict
			}
			r.tx.stats[stats.UserID] = statsWrite{stats: updated, expectedVersion: expectedVersion}
		}
	} else {
		r.store.mu.Lock()
		if r.store.stats[stats.UserID].Version != expectedVersion {
			r.store.mu.Unlock()
			return ErrVersionConflict
		}
		r.store.stats[stats.UserID] = updated
		r.store.mu.Unlock()
	}

	stats.Version = updated.Version
	stats.UpdatedAt = updated.UpdatedAt
	return nil
}

// ===============================
// BADGES
// ===============================

type memBadges memView

func (r *memBadges) HasBadge(ctx context.Context, userID, badgeID string) (bool, error) {
	if r.tx != nil && r.tx.hasBadge(userID, badgeID) {
		return true, nil
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	_, ok := r.store.badges[userID][badgeID]
	return ok, nil
}

func (r *memBadges) ListByUser(ctx context.Context, userID string) ([]models.AwardedBadge, error) {
	r.store.mu.RLock()
	out := make([]models.AwardedBadge, 0, len(r.store.badges[userID]))
	for _, b := range r.store.badges[userID] {
		out = append(out, b)
	}
	r.store.mu.RUnlock()

	if r.tx != nil {
		for _, b := range r.tx.badges {
			if b.UserID == userID {
				out = append(out, b)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].EarnedAt.Equal(out[j].EarnedAt) {
			return out[i].BadgeID < out[j].BadgeID
		}
		return out[i].EarnedAt.Before(out[j].EarnedAt)
	})
	return out, nil
}

func (r *memBadges) Award(ctx context.Context, badge models.AwardedBadge) error {
	has, _ := r.HasBadge(ctx, badge.UserID, badge.BadgeID)
	if has {
		return ErrAlreadyAwarded
	}
	if r.tx != nil {
		r.tx.badges = append(r.tx.badges, badge)
		return nil
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.badges[badge.UserID][badge.BadgeID]; ok {
		return ErrAlreadyAwarded
	}
	r.store.putBadgeLocked(badge)
	return nil
}

// ===============================
// XP LEDGER
// ===============================

type memXP memView

func (r *memXP) Append(ctx context.Context, entry *models.XPLedgerEntry) error {
	if err := prepareLedgerEntry(entry, r.store.now().UTC()); err != nil {
		return err
	}
	if r.tx != nil {
		r.tx.ledger = append(r.tx.ledger, *entry)
		return nil
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.ledger[entry.UserID] = append(r.store.ledger[entry.UserID], *entry)
	return nil
}

func (r *memXP) ListByUser(ctx context.Context, userID string) ([]models.XPLedgerEntry, error) {
	r.store.mu.RLock()
	out := make([]models.XPLedgerEntry, len(r.store.ledger[userID]))
	copy(out, r.store.ledger[userID])
	r.store.mu.RUnlock()

	if r.tx != nil {
		for _, e := range r.tx.ledger {
			if e.UserID == userID {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

func (r *memXP) SumByUser(ctx context.Context, userID string) (int64, error) {
	entries, err := r.ListByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		total += e.Amount
	}
	return total, nil
}

// ===============================
// RECEIPTS
// ===============================

type memReceipts memView

func (r *memReceipts) Exists(ctx context.Context, userID, key string) (bool, error) {
	if r.tx != nil && r.tx.hasReceipt(userID, key) {
		return true, nil
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	_, ok := r.store.receipts[userID][key]
	return ok, nil
}

func (r *memReceipts) Record(ctx context.Context, userID, key string, at time.Time) error {
	exists, _ := r.Exists(ctx, userID, key)
	if exists {
		return ErrDuplicateReceipt
	}
	if r.tx != nil {
		r.tx.receipts = append(r.tx.receipts, receiptWrite{userID: userID, key: key, at: at})
		return nil
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.receipts[userID][key]; ok {
		return ErrDuplicateReceipt
	}
	r.store.putReceiptLocked(receiptWrite{userID: userID, key: key, at: at})
	return nil
}
