package ledger

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/glamlab/stylist-gateway/internal/apperr"
)

// debitScript atomically initializes a missing balance to the default and
// decrements it if sufficient. Returns -1 when the balance cannot cover the
// amount, otherwise the new balance.
var debitScript = redis.NewScript(`
local bal = redis.call('GET', KEYS[1])
if not bal then
  bal = ARGV[2]
  redis.call('SET', KEYS[1], bal)
end
bal = tonumber(bal)
local amount = tonumber(ARGV[1])
if bal < amount then
  return -1
end
bal = bal - amount
redis.call('SET', KEYS[1], bal)
return bal
`)

// balanceScript reads a balance, initializing it to the default when unseen.
var balanceScript = redis.NewScript(`
local bal = redis.call('GET', KEYS[1])
if not bal then
  bal = ARGV[1]
  redis.call('SET', KEYS[1], bal)
end
return tonumber(bal)
`)

// RedisLedger implements Ledger on Redis. It exists to demonstrate that a
// durable backend substitutes for the in-process ledger without touching the
// orchestrator: the call contracts are identical, atomicity comes from Lua
// scripts executing single-threaded on the server.
type RedisLedger struct {
	client  *redis.Client
	initial int
}

// NewRedisLedger creates a Redis-backed ledger.
func NewRedisLedger(client *redis.Client, initial int) *RedisLedger {
	if initial < 0 {
		initial = 0
	}
	return &RedisLedger{client: client, initial: initial}
}

func balanceKey(identity string) string {
	return "credits:" + identity
}

func (l *RedisLedger) Balance(ctx context.Context, identity string) (int, error) {
	n, err := balanceScript.Run(ctx, l.client, []string{balanceKey(identity)}, l.initial).Int()
	if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return n, nil
}

func (l *RedisLedger) TryDebit(ctx context.Context, identity string, amount int) (int, error) {
	n, err := debitScript.Run(ctx, l.client, []string{balanceKey(identity)}, amount, l.initial).Int()
	if err != nil {
		return 0, fmt.Errorf("debit balance: %w", err)
	}
	if n < 0 {
		return 0, apperr.InsufficientCredit()
	}
	return n, nil
}

func (l *RedisLedger) Refund(ctx context.Context, identity string, amount int) (int, error) {
	n, err := l.client.IncrBy(ctx, balanceKey(identity), int64(amount)).Result()
	if err != nil {
		return 0, fmt.Errorf("refund balance: %w", err)
	}
	return int(n), nil
}
