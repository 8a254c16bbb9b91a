package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyBalancePrefix = "wallet:balance:"
	keyCreditPrefix  = "wallet:credit:"

	creditKeyTTL = 24 * time.Hour
)

// ErrInsufficientFunds means the debit was refused; no balance was touched.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Wallet is the boundary to the account-balance subsystem. The round engine
// never holds balances itself; it only debits stakes and credits payouts.
// Credit is idempotent per key: retrying a credit with the same key applies
// it at most once.
type Wallet interface {
	Debit(ctx context.Context, accountID string, amount float64) error
	Credit(ctx context.Context, accountID string, amount float64, key string) error
}

// RedisWallet keeps balances in Redis. Debits are refused below zero and
// rolled back on a lost race; credits are deduplicated with a SETNX marker
// per idempotency key.
type RedisWallet struct {
	client *redis.Client
}

func NewRedisWallet(client *redis.Client) *RedisWallet {
	return &RedisWallet{client: client}
}

func (w *RedisWallet) Debit(ctx context.Context, accountID string, amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("debit amount must be positive, got %.2f", amount)
	}

	balanceKey := keyBalancePrefix + accountID
	balance, err := w.client.Get(ctx, balanceKey).Float64()
	if err != nil || balance < amount {
		return ErrInsufficientFunds
	}

	newBalance, err := w.client.IncrByFloat(ctx, balanceKey, -amount).Result()
	if err != nil {
		return fmt.Errorf("debit %s: %w", accountID, err)
	}
	if newBalance < 0 {
		// Lost a race with a concurrent debit, undo
		w.client.IncrByFloat(ctx, balanceKey, amount)
		return ErrInsufficientFunds
	}

	return nil
}

func (w *RedisWallet) Credit(ctx context.Context, accountID string, amount float64, key string) error {
	if amount <= 0 {
		return fmt.Errorf("credit amount must be positive, got %.2f", amount)
	}

	applied, err := w.client.SetNX(ctx, keyCreditPrefix+key, accountID, creditKeyTTL).Result()
	if err != nil {
		return fmt.Errorf("credit %s key %s: %w", accountID, key, err)
	}
	if !applied {
		// Already credited under this key; a retry must not pay twice.
		return nil
	}

	if err := w.client.IncrByFloat(ctx, keyBalancePrefix+accountID, amount).Err(); err != nil {
		// Drop the marker so the retry path can apply the credit.
		w.client.Del(ctx, keyCreditPrefix+key)
		return fmt.Errorf("credit %s key %s: %w", accountID, key, err)
	}

	return nil
}

// Balance reads an account's current balance. Missing accounts read as zero.
func (w *RedisWallet) Balance(ctx context.Context, accountID string) (float64, error) {
	balance, err := w.client.Get(ctx, keyBalancePrefix+accountID).Float64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// SetBalance overwrites an account's balance. Admin/testing use only.
func (w *RedisWallet) SetBalance(ctx context.Context, accountID string, balance float64) error {
	return w.client.Set(ctx, keyBalancePrefix+accountID, balance, 0).Err()
}
