// Package contracts populates domain objects from get-method results. It
// is shared by every adapter that can run arbitrary get-methods.
package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/gofiber/fiber/v2/log"
	"github.com/toncenter/ton-tools-go/tontools/backend"
	"github.com/toncenter/ton-tools-go/tontools/content"
	"github.com/toncenter/ton-tools-go/tontools/markets"
	. "github.com/toncenter/ton-tools-go/tontools/models"
	"github.com/toncenter/ton-tools-go/tontools/parse"
	"github.com/toncenter/ton-tools-go/tontools/stack"
)

type Runner interface {
	RunGetMethod(ctx context.Context, addr Address, method string, args []stack.Value) ([]stack.Value, error)
}

type Contracts struct {
	runner  Runner
	content *content.Resolver
	markets *markets.Registry
}

func New(runner Runner, resolver *content.Resolver, names *markets.Registry) *Contracts {
	if names == nil {
		names = markets.Default()
	}
	return &Contracts{runner: runner, content: resolver, markets: names}
}

func (c *Contracts) run(ctx context.Context, addr Address, method string, want int, args ...stack.Value) ([]stack.Value, error) {
	values, err := c.runner.RunGetMethod(ctx, addr, method, args)
	if err != nil {
		return nil, err
	}
	if len(values) < want {
		return nil, fmt.Errorf("%w: %s returned %d entries, want %d", ErrUnexpectedStack, method, len(values), want)
	}
	return values, nil
}

type nftData struct {
	index      *big.Int
	collection *Address
	owner      Address
	content    stack.Value
}

func (c *Contracts) nftData(ctx context.Context, addr Address) (*nftData, error) {
	values, err := c.run(ctx, addr, "get_nft_data", 5)
	if err != nil {
		return nil, err
	}
	var res nftData
	if res.index, err = values[1].Int(); err != nil {
		return nil, fmt.Errorf("nft index: %w", err)
	}
	if res.collection, err = values[2].AddressOrNone(); err != nil {
		return nil, fmt.Errorf("nft collection: %w", err)
	}
	if res.owner, err = values[3].Address(); err != nil {
		return nil, fmt.Errorf("nft owner: %w", err)
	}
	res.content = values[4]
	return &res, nil
}

// nftMetadata asks the collection for the full content of the item and
// resolves it. Items outside of a collection carry their content directly.
func (c *Contracts) nftMetadata(ctx context.Context, data *nftData) (content.Metadata, error) {
	individual, err := data.content.Cell()
	if err != nil {
		return nil, err
	}
	if data.collection == nil {
		return c.content.ResolveCell(ctx, individual)
	}
	values, err := c.run(ctx, *data.collection, "get_nft_content", 1, stack.Number(data.index), stack.Cell(individual))
	if err != nil {
		return nil, err
	}
	full, err := values[0].Cell()
	if err != nil {
		return nil, err
	}
	url, err := parse.NftContentURL(full)
	if err != nil {
		return nil, err
	}
	return c.content.Resolve(ctx, url)
}

// saleBehind returns the sale held by owner or nil when owner is not a sale
// contract.
func (c *Contracts) saleBehind(ctx context.Context, owner Address) (*NftItemSale, error) {
	sale, err := c.GetNftSale(ctx, owner)
	if err != nil {
		if backend.NotForSale(err) {
			log.Debugf("%s is not a sale contract: %v", owner, err)
			return nil, nil
		}
		return nil, err
	}
	return sale, nil
}

func (c *Contracts) GetNftItem(ctx context.Context, addr Address) (*NftItem, error) {
	data, err := c.nftData(ctx, addr)
	if err != nil {
		return nil, err
	}
	info := &NftItemInfo{
		Index:             NewBigInt(data.index),
		CollectionAddress: data.collection,
		Owner:             data.owner,
	}
	if data.collection != nil {
		info.Collection = NewNftCollectionStub(*data.collection)
	}
	info.Metadata = content.Degrade(c.nftMetadata(ctx, data))
	if info.Sale, err = c.saleBehind(ctx, data.owner); err != nil {
		return nil, err
	}
	return &NftItem{Address: addr, Info: info}, nil
}

func (c *Contracts) GetNftItems(ctx context.Context, addrs []Address, concurrency int) ([]*NftItem, error) {
	return backend.Map(ctx, len(addrs), concurrency, func(ctx context.Context, i int) (*NftItem, error) {
		return c.GetNftItem(ctx, addrs[i])
	})
}

func (c *Contracts) GetNftSale(ctx context.Context, addr Address) (*NftItemSale, error) {
	values, err := c.runner.RunGetMethod(ctx, addr, "get_sale_data", nil)
	if err != nil {
		return nil, err
	}
	info, err := parse.ParseSale(values, c.markets)
	if err != nil {
		return nil, err
	}
	return &NftItemSale{Address: addr, Info: info}, nil
}

// GetNftOwner returns the seller when the item is listed on a known sale
// contract and the owner otherwise.
func (c *Contracts) GetNftOwner(ctx context.Context, addr Address) (Address, error) {
	data, err := c.nftData(ctx, addr)
	if err != nil {
		return Address{}, err
	}
	sale, err := c.saleBehind(ctx, data.owner)
	if err != nil {
		return Address{}, err
	}
	if sale != nil {
		return sale.Info.Owner, nil
	}
	return data.owner, nil
}

func (c *Contracts) GetCollection(ctx context.Context, addr Address) (*NftCollection, error) {
	values, err := c.run(ctx, addr, "get_collection_data", 3)
	if err != nil {
		return nil, err
	}
	next, err := values[0].Int()
	if err != nil {
		return nil, fmt.Errorf("collection next index: %w", err)
	}
	owner, err := values[2].AddressOrNone()
	if err != nil {
		return nil, fmt.Errorf("collection owner: %w", err)
	}
	info := &NftCollectionInfo{NextItemIndex: NewBigInt(next), Owner: owner}
	cnt, err := values[1].Cell()
	if err != nil {
		return nil, fmt.Errorf("collection content: %w", err)
	}
	info.Metadata = content.Degrade(c.content.ResolveCell(ctx, cnt))
	return &NftCollection{Address: addr, Info: info}, nil
}

// GetCollectionItems resolves every item address by index, at most
// concurrency lookups at a time.
func (c *Contracts) GetCollectionItems(ctx context.Context, collection *NftCollection, concurrency int) ([]*NftItem, error) {
	if !collection.IsFull() {
		if err := collection.Refresh(ctx, c); err != nil {
			return nil, err
		}
	}
	size, err := backend.CollectionSize(collection)
	if err != nil {
		return nil, err
	}
	return backend.Map(ctx, size, concurrency, func(ctx context.Context, i int) (*NftItem, error) {
		values, err := c.run(ctx, collection.Address, "get_nft_address_by_index", 1, stack.Int64(int64(i)))
		if err != nil {
			return nil, err
		}
		addr, err := values[0].Address()
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		return NewNftItemStub(addr), nil
	})
}

func (c *Contracts) GetJettonData(ctx context.Context, master Address) (*Jetton, error) {
	values, err := c.run(ctx, master, "get_jetton_data", 4)
	if err != nil {
		return nil, err
	}
	supply, err := values[0].Int()
	if err != nil {
		return nil, fmt.Errorf("jetton supply: %w", err)
	}
	cnt, err := values[3].Cell()
	if err != nil {
		return nil, fmt.Errorf("jetton content: %w", err)
	}
	meta := content.Degrade(c.content.ResolveCell(ctx, cnt))
	return &Jetton{Address: master, Info: NewJettonInfo(NewBigInt(supply), meta)}, nil
}

func (c *Contracts) GetJettonWallet(ctx context.Context, addr Address) (*JettonWallet, error) {
	values, err := c.run(ctx, addr, "get_wallet_data", 4)
	if err != nil {
		return nil, err
	}
	balance, err := values[0].Int()
	if err != nil {
		return nil, fmt.Errorf("jetton wallet balance: %w", err)
	}
	owner, err := values[1].Address()
	if err != nil {
		return nil, fmt.Errorf("jetton wallet owner: %w", err)
	}
	master, err := values[2].Address()
	if err != nil {
		return nil, fmt.Errorf("jetton wallet master: %w", err)
	}
	code, err := values[3].Cell()
	if err != nil {
		return nil, fmt.Errorf("jetton wallet code: %w", err)
	}
	codeBoc, err := code.ToBOC()
	if err != nil {
		return nil, err
	}
	return &JettonWallet{Address: addr, Info: &JettonWalletInfo{
		Balance: NewBigInt(balance),
		Owner:   owner,
		Jetton:  NewJettonStub(master),
		Code:    codeBoc,
	}}, nil
}

func (c *Contracts) GetJettonWalletAddress(ctx context.Context, master, owner Address) (Address, error) {
	arg, err := stack.AddressSlice(owner)
	if err != nil {
		return Address{}, err
	}
	values, err := c.run(ctx, master, "get_wallet_address", 1, arg)
	if err != nil {
		return Address{}, err
	}
	return values[0].Address()
}

func (c *Contracts) GetWalletSeqno(ctx context.Context, addr Address) (uint32, error) {
	values, err := c.run(ctx, addr, "seqno", 1)
	if err != nil {
		return 0, err
	}
	seqno, err := values[0].Int()
	if err != nil {
		return 0, err
	}
	if !seqno.IsUint64() || seqno.Uint64() > 0xffffffff {
		return 0, fmt.Errorf("%w: seqno %s", ErrUnexpectedStack, seqno.String())
	}
	return uint32(seqno.Uint64()), nil
}
