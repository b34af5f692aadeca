package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type inMemoryStore struct {
	mu           sync.RWMutex
	balances     map[string]decimal.Decimal
	transactions map[string]Transaction
	byWallet     map[string][]string

	locks sync.Map // wallet id -> *sync.Mutex
}

// NewInMemory creates a concurrency-safe in-memory store useful for unit
// tests and local development. Wallets are locked individually so distinct
// wallets never contend.
func NewInMemory() Store {
	return &inMemoryStore{
		balances:     make(map[string]decimal.Decimal),
		transactions: make(map[string]Transaction),
		byWallet:     make(map[string][]string),
	}
}

func (s *inMemoryStore) EnsureAccount(_ context.Context, walletID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.balances[walletID]; !exists {
		s.balances[walletID] = decimal.Zero
	}
	return nil
}

func (s *inMemoryStore) Balance(_ context.Context, walletID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	balance, exists := s.balances[walletID]
	if !exists {
		return decimal.Zero, ErrAccountNotFound
	}
	return balance, nil
}

func (s *inMemoryStore) Transaction(_ context.Context, id string) (Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transactions[id]
	if !ok {
		return Transaction{}, ErrTransactionNotFound
	}
	return t, nil
}

func (s *inMemoryStore) Transactions(_ context.Context, filter Filter) (Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Transaction
	for _, id := range s.byWallet[filter.WalletID] {
		t := s.transactions[id]
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if len(filter.Types) > 0 && !containsType(filter.Types, t.Type) {
			continue
		}
		matched = append(matched, t)
	}

	// byWallet is in insertion order; listings are newest first.
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}

	page := Page{Total: len(matched)}
	start := min(max(filter.Offset, 0), len(matched))
	end := len(matched)
	if filter.Limit > 0 {
		end = min(start+filter.Limit, len(matched))
	}
	page.Items = append([]Transaction(nil), matched[start:end]...)
	return page, nil
}

func (s *inMemoryStore) Totals(_ context.Context, walletID string) (Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.balances[walletID]; !ok {
		return Totals{}, ErrAccountNotFound
	}

	totals := Totals{CashIn: decimal.Zero, PaidOut: decimal.Zero, PendingPayout: decimal.Zero, Fees: decimal.Zero}
	for _, id := range s.byWallet[walletID] {
		t := s.transactions[id]
		switch {
		case t.Type == TypeCashIn:
			totals.CashIn = totals.CashIn.Add(t.Amount)
		case t.Type == TypePayout && t.Status == StatusCompleted:
			totals.PaidOut = totals.PaidOut.Add(t.Magnitude())
		case t.Type == TypePayout && t.Status == StatusPending:
			totals.PendingPayout = totals.PendingPayout.Add(t.Magnitude())
		case t.Type == TypeFee && t.Status == StatusCompleted:
			totals.Fees = totals.Fees.Add(t.Magnitude())
		}
	}
	return totals, nil
}

func (s *inMemoryStore) FundedAccounts(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, balance := range s.balances {
		if balance.IsPositive() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *inMemoryStore) WithWallet(_ context.Context, walletID string, fn func(tx StoreTx) error) error {
	lock := s.walletLock(walletID)
	lock.Lock()
	defer lock.Unlock()

	balance, err := s.Balance(context.Background(), walletID)
	if err != nil {
		return err
	}

	tx := &inMemoryTx{
		store:    s,
		walletID: walletID,
		balance:  balance,
		delta:    decimal.Zero,
		statuses: make(map[string]statusChange),
	}
	if err := fn(tx); err != nil {
		return err
	}
	s.commit(tx)
	return nil
}

func (s *inMemoryStore) walletLock(walletID string) *sync.Mutex {
	lock, _ := s.locks.LoadOrStore(walletID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func (s *inMemoryStore) commit(tx *inMemoryTx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tx.inserts {
		s.transactions[t.ID] = t
		s.byWallet[t.WalletID] = append(s.byWallet[t.WalletID], t.ID)
	}
	for id, change := range tx.statuses {
		t := s.transactions[id]
		t.Status = change.status
		t.UpdatedAt = change.at
		s.transactions[id] = t
	}
	s.balances[tx.walletID] = s.balances[tx.walletID].Add(tx.delta)
}

type statusChange struct {
	status Status
	at     time.Time
}

// inMemoryTx stages writes until the WithWallet callback succeeds.
type inMemoryTx struct {
	store    *inMemoryStore
	walletID string
	balance  decimal.Decimal
	delta    decimal.Decimal
	inserts  []Transaction
	statuses map[string]statusChange
}

func (tx *inMemoryTx) Balance() decimal.Decimal { return tx.balance }

func (tx *inMemoryTx) Transaction(ctx context.Context, id string) (Transaction, error) {
	for _, t := range tx.inserts {
		if t.ID == id {
			return tx.overlay(t), nil
		}
	}
	t, err := tx.store.Transaction(ctx, id)
	if err != nil {
		return Transaction{}, err
	}
	return tx.overlay(t), nil
}

func (tx *inMemoryTx) FindByReference(_ context.Context, typ Type, reference string) (Transaction, bool, error) {
	for _, t := range tx.view() {
		if t.Type == typ && t.Reference == reference {
			return t, true, nil
		}
	}
	return Transaction{}, false, nil
}

func (tx *inMemoryTx) PendingPayout(_ context.Context) (Transaction, bool, error) {
	for _, t := range tx.view() {
		if t.Type == TypePayout && t.Status == StatusPending {
			return t, true, nil
		}
	}
	return Transaction{}, false, nil
}

func (tx *inMemoryTx) Related(_ context.Context, id string, typ Type) ([]Transaction, error) {
	var out []Transaction
	for _, t := range tx.view() {
		if t.RelatedID == id && t.Type == typ {
			out = append(out, t)
		}
	}
	return out, nil
}

func (tx *inMemoryTx) Insert(_ context.Context, t Transaction) error {
	tx.inserts = append(tx.inserts, t)
	return nil
}

func (tx *inMemoryTx) UpdateStatus(ctx context.Context, id string, status Status, at time.Time) error {
	for i := range tx.inserts {
		if tx.inserts[i].ID == id {
			tx.inserts[i].Status = status
			tx.inserts[i].UpdatedAt = at
			return nil
		}
	}
	if _, err := tx.store.Transaction(ctx, id); err != nil {
		return err
	}
	tx.statuses[id] = statusChange{status: status, at: at}
	return nil
}

func (tx *inMemoryTx) AddBalance(_ context.Context, delta decimal.Decimal) error {
	tx.balance = tx.balance.Add(delta)
	tx.delta = tx.delta.Add(delta)
	return nil
}

// view returns the wallet's committed rows merged with staged writes.
func (tx *inMemoryTx) view() []Transaction {
	tx.store.mu.RLock()
	ids := tx.store.byWallet[tx.walletID]
	rows := make([]Transaction, 0, len(ids)+len(tx.inserts))
	for _, id := range ids {
		rows = append(rows, tx.overlay(tx.store.transactions[id]))
	}
	tx.store.mu.RUnlock()
	return append(rows, tx.inserts...)
}

func (tx *inMemoryTx) overlay(t Transaction) Transaction {
	if change, ok := tx.statuses[t.ID]; ok {
		t.Status = change.status
		t.UpdatedAt = change.at
	}
	return t
}

func containsType(types []Type, t Type) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}
