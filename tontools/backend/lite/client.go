// Package lite implements backend.Provider directly over lite servers with
// tonutils-go. Every nft and jetton lookup goes through get-methods.
package lite

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/toncenter/ton-tools-go/tontools/backend"
	"github.com/toncenter/ton-tools-go/tontools/backend/contracts"
	"github.com/toncenter/ton-tools-go/tontools/content"
	"github.com/toncenter/ton-tools-go/tontools/history"
	"github.com/toncenter/ton-tools-go/tontools/markets"
	. "github.com/toncenter/ton-tools-go/tontools/models"
	"github.com/toncenter/ton-tools-go/tontools/stack"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/ton"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

// DefaultPageSize is the most transactions a lite server returns at once.
const DefaultPageSize = 16

type Client struct {
	*contracts.Contracts
	chain Chain
}

var _ backend.Provider = (*Client)(nil)

func New(chain Chain, resolver *content.Resolver, names *markets.Registry) *Client {
	c := &Client{chain: chain}
	c.Contracts = contracts.New(c, resolver, names)
	return c
}

func (c *Client) RunGetMethod(ctx context.Context, addr Address, method string, args []stack.Value) ([]stack.Value, error) {
	params, err := stack.ToTonutils(args)
	if err != nil {
		return nil, err
	}
	res, err := c.chain.RunGetMethod(ctx, addr.ToTonutils(), method, params...)
	if err != nil {
		var execErr ton.ContractExecError
		if errors.As(err, &execErr) {
			return nil, &ReadMethodError{Method: method, ExitCode: int64(execErr.Code)}
		}
		return nil, fmt.Errorf("%w: %s on %s: %v", ErrBackendUnavailable, method, addr, err)
	}
	return stack.FromTonutilsStack(res)
}

func (c *Client) account(ctx context.Context, addr Address) (*tlb.Account, error) {
	acc, err := c.chain.GetAccount(ctx, addr.ToTonutils())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get account %s: %v", ErrBackendUnavailable, addr, err)
	}
	return acc, nil
}

func (c *Client) GetBalance(ctx context.Context, addr Address) (*big.Int, error) {
	acc, err := c.account(ctx, addr)
	if err != nil {
		return nil, err
	}
	if acc.State == nil {
		return new(big.Int), nil
	}
	return acc.State.Balance.Nano(), nil
}

func (c *Client) GetState(ctx context.Context, addr Address) (AccountState, error) {
	acc, err := c.account(ctx, addr)
	if err != nil {
		return "", err
	}
	if acc.State == nil {
		return StateUninitialized, nil
	}
	switch acc.State.Status {
	case tlb.AccountStatusActive:
		return StateActive, nil
	case tlb.AccountStatusFrozen:
		return StateFrozen, nil
	}
	return StateUninitialized, nil
}

func (c *Client) fetchTransactions(ctx context.Context, addr Address, cursor *history.Cursor, pageSize int) ([]*Transaction, error) {
	var lt uint64
	var hash []byte
	if cursor == nil {
		acc, err := c.account(ctx, addr)
		if err != nil {
			return nil, err
		}
		lt, hash = acc.LastTxLT, acc.LastTxHash
	} else {
		lt, hash = cursor.Lt, cursor.RawHash
	}
	if lt == 0 {
		return nil, nil
	}
	txs, err := c.chain.ListTransactions(ctx, addr.ToTonutils(), uint32(pageSize), lt, hash)
	if errors.Is(err, ton.ErrNoTransactionsWereFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list transactions of %s: %v", ErrBackendUnavailable, addr, err)
	}
	res := make([]*Transaction, 0, len(txs))
	for i := len(txs) - 1; i >= 0; i-- {
		tx, err := convertTransaction(txs[i])
		if err != nil {
			return nil, err
		}
		res = append(res, tx)
	}
	return res, nil
}

// GetTransactions follows the previous transaction links from the latest
// transaction of the account.
func (c *Client) GetTransactions(ctx context.Context, addr Address, limit, pageSize int) ([]*Transaction, error) {
	if pageSize <= 0 || pageSize > DefaultPageSize {
		pageSize = DefaultPageSize
	}
	p := history.Paginator{
		Fetch: func(ctx context.Context, cursor *history.Cursor, pageSize int) ([]*Transaction, error) {
			return c.fetchTransactions(ctx, addr, cursor, pageSize)
		},
		Advance:  history.BeforeLast,
		PageSize: pageSize,
		Limit:    limit,
	}
	return p.Collect(ctx)
}

// SendRawMessage sends a serialized external message and returns the hex
// hash of the message cell.
func (c *Client) SendRawMessage(ctx context.Context, boc []byte) (string, error) {
	root, err := cell.FromBOC(boc)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedBoc, err)
	}
	var msg tlb.ExternalMessage
	if err := tlb.LoadFromCell(&msg, root.BeginParse()); err != nil {
		return "", fmt.Errorf("%w: not an external message: %v", ErrMalformedBoc, err)
	}
	if err := c.chain.SendExternalMessage(ctx, &msg); err != nil {
		return "", fmt.Errorf("%w: failed to send message: %v", ErrBackendUnavailable, err)
	}
	return hex.EncodeToString(root.Hash()), nil
}
