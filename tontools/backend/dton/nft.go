package dton

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/toncenter/ton-tools-go/tontools/backend"
	"github.com/toncenter/ton-tools-go/tontools/content"
	. "github.com/toncenter/ton-tools-go/tontools/models"
	"github.com/toncenter/ton-tools-go/tontools/parse"
)

const nftItemQuery = `query get_nft_item($address: String) {
	transactions(account: {address_friendly: $address}, page_size: 1) {
		index: parsed_nft_index
		collection_wc: parsed_nft_collection_address_workchain
		collection_hex: parsed_nft_collection_address_address
		owner_wc: parsed_nft_owner_address_workchain
		owner_hex: parsed_nft_owner_address_address
		is_on_sale: parsed_owner_is_seller
		content_url: parsed_nft_content_offchain_url
	}
}`

type nftItemRow struct {
	Index         backend.Number `json:"index"`
	CollectionWc  *int32         `json:"collection_wc"`
	CollectionHex *string        `json:"collection_hex"`
	OwnerWc       *int32         `json:"owner_wc"`
	OwnerHex      *string        `json:"owner_hex"`
	IsOnSale      backend.Number `json:"is_on_sale"`
	ContentUrl    *string        `json:"content_url"`
}

const saleQuery = `query get_sale($address: String) {
	transactions(account: {address_friendly: $address}, page_size: 1) {
		owner_wc: parsed_seller_nft_prev_owner_address_workchain
		owner_hex: parsed_seller_nft_prev_owner_address_address
		market_wc: parsed_seller_market_address_workchain
		market_hex: parsed_seller_market_address_address
		price: parsed_seller_nft_price
		min_bid: parsed_seller_min_bid
	}
}`

type saleRow struct {
	OwnerWc   *int32         `json:"owner_wc"`
	OwnerHex  *string        `json:"owner_hex"`
	MarketWc  *int32         `json:"market_wc"`
	MarketHex *string        `json:"market_hex"`
	Price     backend.Number `json:"price"`
	MinBid    backend.Number `json:"min_bid"`
}

const nftOwnerQuery = `query get_nft_owner($address_hex: String, $address_wc: Int) {
	account_states(address: $address_hex, workchain: $address_wc) {
		owner_wc: parsed_nft_owner_address_workchain
		owner_hex: parsed_nft_owner_address_address
		owner_is_seller: parsed_owner_is_seller
		prev_owner_wc: parsed_seller_nft_prev_owner_address_workchain
		prev_owner_hex: parsed_seller_nft_prev_owner_address_address
	}
}`

type ownerRow struct {
	OwnerWc       *int32         `json:"owner_wc"`
	OwnerHex      *string        `json:"owner_hex"`
	OwnerIsSeller backend.Number `json:"owner_is_seller"`
	PrevOwnerWc   *int32         `json:"prev_owner_wc"`
	PrevOwnerHex  *string        `json:"prev_owner_hex"`
}

const collectionQuery = `query get_collection($address: String) {
	transactions(account: {address_friendly: $address}, page_size: 1) {
		next_item_index: parsed_collection_items_count
		content_url: parsed_collection_content_offchain_url
		owner_wc: parsed_collection_owner_address_workchain
		owner_hex: parsed_collection_owner_address_address
	}
}`

type collectionRow struct {
	NextItemIndex backend.Number `json:"next_item_index"`
	ContentUrl    *string        `json:"content_url"`
	OwnerWc       *int32         `json:"owner_wc"`
	OwnerHex      *string        `json:"owner_hex"`
}

const collectionItemsQuery = `query get_collection_items($address_hex: String, $address_wc: Int, $page: Int) {
	account_states(
		parsed_nft_collection_address_workchain: $address_wc
		parsed_nft_collection_address_address: $address_hex
		parsed_nft_true_nft_in_collection: 1
		page_size: 150
		page: $page
		order_by: "parsed_nft_index"
	) {
		address
	}
}`

// latest runs a page_size 1 transactions query and decodes the only row.
func latest[T any](ctx context.Context, c *Client, query string, addr Address, kind string) (*T, error) {
	var res struct {
		Transactions []T `json:"transactions"`
	}
	if err := c.graphql.Execute(ctx, query, map[string]interface{}{"address": friendly(addr)}, &res); err != nil {
		return nil, err
	}
	if len(res.Transactions) == 0 {
		return nil, notFound(kind, addr)
	}
	return &res.Transactions[0], nil
}

func (c *Client) metadata(ctx context.Context, url *string) content.Metadata {
	if url == nil || len(*url) == 0 {
		return content.Metadata{}
	}
	return content.Degrade(c.content.Resolve(ctx, *url))
}

func isNotFound(err error) bool {
	var idx IndexError
	return errors.As(err, &idx) && idx.Code == fiber.StatusNotFound
}

func (c *Client) GetNftItem(ctx context.Context, addr Address) (*NftItem, error) {
	row, err := latest[nftItemRow](ctx, c, nftItemQuery, addr, "nft item")
	if err != nil {
		return nil, err
	}
	info := &NftItemInfo{}
	if info.Index, err = row.Index.BigInt(); err != nil {
		return nil, fmt.Errorf("nft index: %w", err)
	}
	if info.CollectionAddress, err = addressOf(row.CollectionWc, row.CollectionHex); err != nil {
		return nil, fmt.Errorf("nft collection: %w", err)
	}
	if info.CollectionAddress != nil {
		info.Collection = NewNftCollectionStub(*info.CollectionAddress)
	}
	if info.Owner, err = requireAddress(row.OwnerWc, row.OwnerHex, "nft owner"); err != nil {
		return nil, err
	}
	info.Metadata = c.metadata(ctx, row.ContentUrl)
	if row.IsOnSale.Bool() {
		sale, err := c.GetNftSale(ctx, info.Owner)
		switch {
		case isNotFound(err) || backend.NotForSale(err):
			log.Debugf("no sale data behind %s: %v", info.Owner, err)
		case err != nil:
			return nil, err
		default:
			info.Sale = sale
		}
	}
	return &NftItem{Address: addr, Info: info}, nil
}

func (c *Client) GetNftItems(ctx context.Context, addrs []Address, concurrency int) ([]*NftItem, error) {
	return backend.Map(ctx, len(addrs), concurrency, func(ctx context.Context, i int) (*NftItem, error) {
		return c.GetNftItem(ctx, addrs[i])
	})
}

// GetNftSale reads a sale contract. Auctions without a fixed price report
// their minimal bid.
func (c *Client) GetNftSale(ctx context.Context, addr Address) (*NftItemSale, error) {
	row, err := latest[saleRow](ctx, c, saleQuery, addr, "nft sale")
	if err != nil {
		return nil, err
	}
	owner, err := requireAddress(row.OwnerWc, row.OwnerHex, "sale owner")
	if err != nil {
		return nil, err
	}
	market, err := requireAddress(row.MarketWc, row.MarketHex, "sale market")
	if err != nil {
		return nil, err
	}
	price, err := row.Price.BigInt()
	if err != nil {
		return nil, fmt.Errorf("sale price: %w", err)
	}
	minBid, err := row.MinBid.BigInt()
	if err != nil {
		return nil, fmt.Errorf("sale min bid: %w", err)
	}
	return &NftItemSale{Address: addr, Info: &NftItemSaleInfo{
		Market: Market{Address: market, Name: c.markets.Name(market)},
		Owner:  owner,
		Price:  Price{Value: NewBigInt(parse.EffectivePrice(&price.Int, &minBid.Int)), TokenName: parse.TokenTON},
	}}, nil
}

func (c *Client) accountState(ctx context.Context, query string, addr Address, out interface{}) error {
	vars := map[string]interface{}{
		"address_hex": hexPart(addr),
		"address_wc":  addr.Workchain,
	}
	return c.graphql.Execute(ctx, query, vars, out)
}

func (c *Client) nftOwnerRow(ctx context.Context, addr Address) (*ownerRow, error) {
	var res struct {
		AccountStates []ownerRow `json:"account_states"`
	}
	if err := c.accountState(ctx, nftOwnerQuery, addr, &res); err != nil {
		return nil, err
	}
	if len(res.AccountStates) == 0 {
		return nil, notFound("account", addr)
	}
	return &res.AccountStates[0], nil
}

// GetNftOwner returns the seller when the item sits on a sale contract.
func (c *Client) GetNftOwner(ctx context.Context, addr Address) (Address, error) {
	row, err := c.nftOwnerRow(ctx, addr)
	if err != nil {
		return Address{}, err
	}
	owner, err := requireAddress(row.OwnerWc, row.OwnerHex, "nft owner")
	if err != nil || !row.OwnerIsSeller.Bool() {
		return owner, err
	}
	sale, err := c.nftOwnerRow(ctx, owner)
	if err != nil {
		return Address{}, err
	}
	return requireAddress(sale.PrevOwnerWc, sale.PrevOwnerHex, "sale owner")
}

func (c *Client) GetCollection(ctx context.Context, addr Address) (*NftCollection, error) {
	row, err := latest[collectionRow](ctx, c, collectionQuery, addr, "collection")
	if err != nil {
		return nil, err
	}
	info := &NftCollectionInfo{}
	if info.NextItemIndex, err = row.NextItemIndex.BigInt(); err != nil {
		return nil, fmt.Errorf("collection next index: %w", err)
	}
	if info.Owner, err = addressOf(row.OwnerWc, row.OwnerHex); err != nil {
		return nil, fmt.Errorf("collection owner: %w", err)
	}
	info.Metadata = c.metadata(ctx, row.ContentUrl)
	return &NftCollection{Address: addr, Info: info}, nil
}

// GetCollectionItems pages through the items of the collection,
// pageSize/DefaultPageSize pages at a time. A page size below
// DefaultPageSize falls back to backend.DefaultConcurrency pages.
func (c *Client) GetCollectionItems(ctx context.Context, collection *NftCollection, pageSize int) ([]*NftItem, error) {
	if !collection.IsFull() {
		if err := collection.Refresh(ctx, c); err != nil {
			return nil, err
		}
	}
	total, err := backend.CollectionSize(collection)
	if err != nil {
		return nil, err
	}
	pages := (total+DefaultPageSize-1)/DefaultPageSize + 1
	found, err := backend.Map(ctx, pages, pageSize/DefaultPageSize, func(ctx context.Context, i int) ([]string, error) {
		var res struct {
			AccountStates []struct {
				Address string `json:"address"`
			} `json:"account_states"`
		}
		vars := map[string]interface{}{
			"address_hex": hexPart(collection.Address),
			"address_wc":  collection.Address.Workchain,
			"page":        i,
		}
		if err := c.graphql.Execute(ctx, collectionItemsQuery, vars, &res); err != nil {
			return nil, err
		}
		hexes := make([]string, 0, len(res.AccountStates))
		for _, s := range res.AccountStates {
			hexes = append(hexes, s.Address)
		}
		return hexes, nil
	})
	if err != nil {
		return nil, err
	}
	var items []*NftItem
	for _, page := range found {
		for i := range page {
			addr, err := requireAddress(&collection.Address.Workchain, &page[i], "collection item")
			if err != nil {
				return nil, err
			}
			items = append(items, NewNftItemStub(addr))
		}
	}
	return items, nil
}
