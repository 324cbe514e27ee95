package backend

import (
	"context"
	"math/big"

	. "github.com/toncenter/ton-tools-go/tontools/models"
	"github.com/toncenter/ton-tools-go/tontools/stack"
)

// Provider is the capability set every backend adapter implements. Adapters
// only translate backend shapes into stack values and domain objects.
type Provider interface {
	NftItemSource
	NftCollectionSource
	NftSaleSource
	JettonSource
	JettonWalletSource

	RunGetMethod(ctx context.Context, addr Address, method string, args []stack.Value) ([]stack.Value, error)
	GetBalance(ctx context.Context, addr Address) (*big.Int, error)
	GetState(ctx context.Context, addr Address) (AccountState, error)
	// GetTransactions returns up to limit transactions, newest first.
	GetTransactions(ctx context.Context, addr Address, limit, pageSize int) ([]*Transaction, error)

	GetNftItems(ctx context.Context, addrs []Address, concurrency int) ([]*NftItem, error)
	GetNftOwner(ctx context.Context, addr Address) (Address, error)
	// GetCollectionItems returns address-only items.
	GetCollectionItems(ctx context.Context, collection *NftCollection, pageSize int) ([]*NftItem, error)

	GetJettonWalletAddress(ctx context.Context, master, owner Address) (Address, error)
	GetWalletSeqno(ctx context.Context, addr Address) (uint32, error)
	SendRawMessage(ctx context.Context, boc []byte) (string, error)
}
