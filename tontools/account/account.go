// Package account exposes read access to any account and signed transfers
// for wallets created from a mnemonic.
package account

import (
	"context"
	"math/big"

	"github.com/toncenter/ton-tools-go/tontools/backend"
	. "github.com/toncenter/ton-tools-go/tontools/models"
	"github.com/toncenter/ton-tools-go/tontools/stack"
)

type Account struct {
	Address  Address
	provider backend.Provider
}

func New(provider backend.Provider, addr Address) *Account {
	return &Account{Address: addr, provider: provider}
}

func (a *Account) Balance(ctx context.Context) (*big.Int, error) {
	return a.provider.GetBalance(ctx, a.Address)
}

func (a *Account) State(ctx context.Context) (AccountState, error) {
	return a.provider.GetState(ctx, a.Address)
}

// Transactions returns up to limit transactions, newest first. A zero
// limit returns the whole history.
func (a *Account) Transactions(ctx context.Context, limit, pageSize int) ([]*Transaction, error) {
	return a.provider.GetTransactions(ctx, a.Address, limit, pageSize)
}

func (a *Account) RunGetMethod(ctx context.Context, method string, args ...stack.Value) ([]stack.Value, error) {
	return a.provider.RunGetMethod(ctx, a.Address, method, args)
}
