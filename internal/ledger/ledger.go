// Package ledger provides atomic per-identity credit accounting.
//
// The ledger supports a reserve/commit-or-refund pattern: a generation
// reserves one credit up front via TryDebit, and either keeps the debit on
// success or calls Refund when a downstream step fails. Every debit therefore
// resolves to exactly one of commit or refund.
package ledger

import (
	"context"
	"sync"

	"github.com/glamlab/stylist-gateway/internal/apperr"
)

// DefaultCredits is the balance granted on first observation of an identity.
const DefaultCredits = 10

// Ledger maps identity keys to non-negative credit balances.
type Ledger interface {
	// Balance returns the current balance, creating the identity with the
	// default balance if unseen.
	Balance(ctx context.Context, identity string) (int, error)

	// TryDebit atomically checks and decrements the balance. Under concurrent
	// calls for one identity, debits are linearizable: no two callers both
	// succeed past the last remaining credit. Returns the new balance, or an
	// INSUFFICIENT_CREDIT error when the balance cannot cover amount.
	TryDebit(ctx context.Context, identity string, amount int) (int, error)

	// Refund reverses a prior debit and returns the new balance. Refund never
	// fails; refunding an unseen identity re-establishes it.
	Refund(ctx context.Context, identity string, amount int) (int, error)
}

// MemoryLedger keeps balances resident for the lifetime of the process,
// matching the reference behavior. Accounts carry their own lock so unrelated
// identities never contend.
type MemoryLedger struct {
	mu       sync.RWMutex
	accounts map[string]*account
	initial  int
}

type account struct {
	mu      sync.Mutex
	balance int
}

// NewMemoryLedger creates an in-memory ledger with the given starting balance.
func NewMemoryLedger(initial int) *MemoryLedger {
	if initial < 0 {
		initial = 0
	}
	return &MemoryLedger{
		accounts: make(map[string]*account),
		initial:  initial,
	}
}

// account returns the identity's record, lazily creating it.
func (l *MemoryLedger) account(identity string) *account {
	l.mu.RLock()
	acct, ok := l.accounts[identity]
	l.mu.RUnlock()
	if ok {
		return acct
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if acct, ok = l.accounts[identity]; ok {
		return acct
	}
	acct = &account{balance: l.initial}
	l.accounts[identity] = acct
	return acct
}

func (l *MemoryLedger) Balance(_ context.Context, identity string) (int, error) {
	acct := l.account(identity)
	acct.mu.Lock()
	defer acct.mu.Unlock()
	return acct.balance, nil
}

func (l *MemoryLedger) TryDebit(_ context.Context, identity string, amount int) (int, error) {
	acct := l.account(identity)
	acct.mu.Lock()
	defer acct.mu.Unlock()

	if acct.balance < amount {
		return acct.balance, apperr.InsufficientCredit()
	}
	acct.balance -= amount
	return acct.balance, nil
}

func (l *MemoryLedger) Refund(_ context.Context, identity string, amount int) (int, error) {
	acct := l.account(identity)
	acct.mu.Lock()
	defer acct.mu.Unlock()

	acct.balance += amount
	return acct.balance, nil
}
