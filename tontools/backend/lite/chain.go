package lite

import (
	"context"
	"fmt"
	"sync"
	"time"

	. "github.com/toncenter/ton-tools-go/tontools/models"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/liteclient"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/ton"
)

const (
	MainnetConfigUrl = "https://ton.org/global.config.json"
	TestnetConfigUrl = "https://ton.org/testnet-global.config.json"
)

// Chain is the part of the lite server api the adapter needs. Every call
// reads the state at the latest masterchain block.
type Chain interface {
	GetAccount(ctx context.Context, addr *address.Address) (*tlb.Account, error)
	RunGetMethod(ctx context.Context, addr *address.Address, method string, params ...any) ([]any, error)
	// ListTransactions returns up to limit transactions ending with the one
	// at lt/hash, oldest first.
	ListTransactions(ctx context.Context, addr *address.Address, limit uint32, lt uint64, hash []byte) ([]*tlb.Transaction, error)
	SendExternalMessage(ctx context.Context, msg *tlb.ExternalMessage) error
}

type tonutilsChain struct {
	api ton.APIClientWrapped

	mu              sync.Mutex
	masterCache     *ton.BlockIDExt
	masterCacheTime time.Time
}

// Dial connects to the lite servers listed in the global config at
// configUrl.
func Dial(ctx context.Context, configUrl string) (Chain, error) {
	pool := liteclient.NewConnectionPool()
	if err := pool.AddConnectionsFromConfigUrl(ctx, configUrl); err != nil {
		return nil, fmt.Errorf("%w: failed to fetch global config: %v", ErrBackendUnavailable, err)
	}
	return &tonutilsChain{api: ton.NewAPIClient(pool, ton.ProofCheckPolicyFast).WithRetry()}, nil
}

// NewChain wraps an existing tonutils api client.
func NewChain(api ton.APIClientWrapped) Chain {
	return &tonutilsChain{api: api}
}

func (c *tonutilsChain) master(ctx context.Context) (*ton.BlockIDExt, error) {
	c.mu.Lock()
	if c.masterCache != nil && time.Since(c.masterCacheTime) < time.Second {
		defer c.mu.Unlock()
		return c.masterCache, nil
	}
	c.mu.Unlock()

	master, err := c.api.CurrentMasterchainInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get masterchain info: %v", ErrBackendUnavailable, err)
	}

	c.mu.Lock()
	c.masterCache = master
	c.masterCacheTime = time.Now()
	c.mu.Unlock()
	return master, nil
}

func (c *tonutilsChain) GetAccount(ctx context.Context, addr *address.Address) (*tlb.Account, error) {
	master, err := c.master(ctx)
	if err != nil {
		return nil, err
	}
	return c.api.GetAccount(ctx, master, addr)
}

func (c *tonutilsChain) RunGetMethod(ctx context.Context, addr *address.Address, method string, params ...any) ([]any, error) {
	master, err := c.master(ctx)
	if err != nil {
		return nil, err
	}
	res, err := c.api.RunGetMethod(ctx, master, addr, method, params...)
	if err != nil {
		return nil, err
	}
	return res.AsTuple(), nil
}

func (c *tonutilsChain) ListTransactions(ctx context.Context, addr *address.Address, limit uint32, lt uint64, hash []byte) ([]*tlb.Transaction, error) {
	return c.api.ListTransactions(ctx, addr, limit, lt, hash)
}

func (c *tonutilsChain) SendExternalMessage(ctx context.Context, msg *tlb.ExternalMessage) error {
	return c.api.SendExternalMessage(ctx, msg)
}
