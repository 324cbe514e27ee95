package tonapi

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/toncenter/ton-tools-go/tontools/backend"
	"github.com/toncenter/ton-tools-go/tontools/markets"
	. "github.com/toncenter/ton-tools-go/tontools/models"
	"github.com/toncenter/ton-tools-go/tontools/parse"
)

// itemsPerRequest bounds the addresses sent in one nft/getItems call.
const itemsPerRequest = 100

type accountAddress struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

type nftSale struct {
	Address string          `json:"address"`
	Market  accountAddress  `json:"market"`
	Owner   *accountAddress `json:"owner"`
	Price   struct {
		TokenName string         `json:"token_name"`
		Value     backend.Number `json:"value"`
	} `json:"price"`
}

type nftItem struct {
	Address    string                 `json:"address"`
	Collection *accountAddress        `json:"collection"`
	Index      backend.Number         `json:"index"`
	Metadata   map[string]interface{} `json:"metadata"`
	Owner      *accountAddress        `json:"owner"`
	Sale       *nftSale               `json:"sale"`
}

type nftItems struct {
	NftItems []nftItem `json:"nft_items"`
}

func (s *nftSale) convert(names *markets.Registry) (*NftItemSale, error) {
	addr, err := ParseAddress(s.Address)
	if err != nil {
		return nil, err
	}
	market, err := ParseAddress(s.Market.Address)
	if err != nil {
		return nil, fmt.Errorf("sale market: %w", err)
	}
	if s.Owner == nil {
		return nil, fmt.Errorf("%w: sale %s has no owner", ErrNotAnAddress, s.Address)
	}
	owner, err := ParseAddress(s.Owner.Address)
	if err != nil {
		return nil, fmt.Errorf("sale owner: %w", err)
	}
	price, err := s.Price.Value.BigInt()
	if err != nil {
		return nil, fmt.Errorf("sale price: %w", err)
	}
	name := s.Market.Name
	if len(name) == 0 {
		name = names.Name(market)
	}
	token := s.Price.TokenName
	if len(token) == 0 {
		token = parse.TokenTON
	}
	return &NftItemSale{Address: addr, Info: &NftItemSaleInfo{
		Market: Market{Address: market, Name: name},
		Owner:  owner,
		Price:  Price{Value: price, TokenName: token},
	}}, nil
}

func (c *Client) convertItem(raw *nftItem) (*NftItem, error) {
	addr, err := ParseAddress(raw.Address)
	if err != nil {
		return nil, err
	}
	info := &NftItemInfo{Metadata: raw.Metadata}
	if info.Metadata == nil {
		info.Metadata = map[string]interface{}{}
	}
	if info.Index, err = raw.Index.BigInt(); err != nil {
		return nil, fmt.Errorf("nft index: %w", err)
	}
	if raw.Collection != nil {
		collection, err := ParseAddress(raw.Collection.Address)
		if err != nil {
			return nil, fmt.Errorf("nft collection: %w", err)
		}
		info.CollectionAddress = &collection
		info.Collection = NewNftCollectionStub(collection)
	}
	if raw.Owner == nil {
		return nil, fmt.Errorf("%w: nft %s has no owner", ErrNotAnAddress, raw.Address)
	}
	if info.Owner, err = ParseAddress(raw.Owner.Address); err != nil {
		return nil, fmt.Errorf("nft owner: %w", err)
	}
	if raw.Sale != nil {
		if info.Sale, err = raw.Sale.convert(c.markets); err != nil {
			return nil, err
		}
	}
	return &NftItem{Address: addr, Info: info}, nil
}

func (c *Client) fetchItems(ctx context.Context, addrs []Address) ([]*NftItem, error) {
	raw := make([]string, 0, len(addrs))
	for _, a := range addrs {
		raw = append(raw, a.Raw())
	}
	params := url.Values{}
	params.Add("addresses", strings.Join(raw, ","))
	var res nftItems
	if err := c.call(ctx, fiber.MethodGet, "v1/nft/getItems", params, nil, &res); err != nil {
		return nil, err
	}
	items := make([]*NftItem, 0, len(res.NftItems))
	for i := range res.NftItems {
		item, err := c.convertItem(&res.NftItems[i])
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func notFound(addr Address) error {
	return IndexError{Code: fiber.StatusNotFound, Message: fmt.Sprintf("nft item not found: %s", addr)}
}

func (c *Client) GetNftItem(ctx context.Context, addr Address) (*NftItem, error) {
	items, err := c.fetchItems(ctx, []Address{addr})
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if item.Address == addr {
			return item, nil
		}
	}
	return nil, notFound(addr)
}

// GetNftItems looks items up in chunks, at most concurrency chunks at a
// time. Repeated addresses are requested once.
func (c *Client) GetNftItems(ctx context.Context, addrs []Address, concurrency int) ([]*NftItem, error) {
	unique := mapset.NewThreadUnsafeSet[Address]()
	var pending []Address
	for _, a := range addrs {
		if unique.Add(a) {
			pending = append(pending, a)
		}
	}
	chunks := (len(pending) + itemsPerRequest - 1) / itemsPerRequest
	found, err := backend.Map(ctx, chunks, concurrency, func(ctx context.Context, i int) ([]*NftItem, error) {
		end := (i + 1) * itemsPerRequest
		if end > len(pending) {
			end = len(pending)
		}
		return c.fetchItems(ctx, pending[i*itemsPerRequest:end])
	})
	if err != nil {
		return nil, err
	}
	byAddress := make(map[Address]*NftItem, len(pending))
	for _, chunk := range found {
		for _, item := range chunk {
			byAddress[item.Address] = item
		}
	}
	res := make([]*NftItem, 0, len(addrs))
	for _, a := range addrs {
		item, ok := byAddress[a]
		if !ok {
			return nil, notFound(a)
		}
		res = append(res, item)
	}
	return res, nil
}

func (c *Client) GetNftOwner(ctx context.Context, addr Address) (Address, error) {
	item, err := c.GetNftItem(ctx, addr)
	if err != nil {
		return Address{}, err
	}
	owner, _ := item.RealOwner()
	return owner, nil
}

type nftCollection struct {
	Address       string                 `json:"address"`
	Metadata      map[string]interface{} `json:"metadata"`
	NextItemIndex backend.Number         `json:"next_item_index"`
	Owner         *accountAddress        `json:"owner"`
}

func (c *Client) GetCollection(ctx context.Context, addr Address) (*NftCollection, error) {
	var raw nftCollection
	if err := c.call(ctx, fiber.MethodGet, "v1/nft/getCollection", accountParams(addr), nil, &raw); err != nil {
		return nil, err
	}
	info := &NftCollectionInfo{Metadata: raw.Metadata}
	if info.Metadata == nil {
		info.Metadata = map[string]interface{}{}
	}
	var err error
	if info.NextItemIndex, err = raw.NextItemIndex.BigInt(); err != nil {
		return nil, fmt.Errorf("collection next index: %w", err)
	}
	if raw.Owner != nil && len(raw.Owner.Address) > 0 {
		owner, err := ParseAddress(raw.Owner.Address)
		if err != nil {
			return nil, fmt.Errorf("collection owner: %w", err)
		}
		info.Owner = &owner
	}
	return &NftCollection{Address: addr, Info: info}, nil
}

// GetCollectionItems pages through the collection index by offset until a
// short page arrives.
func (c *Client) GetCollectionItems(ctx context.Context, collection *NftCollection, pageSize int) ([]*NftItem, error) {
	if pageSize <= 0 {
		pageSize = DefaultItemsLimit
	}
	var res []*NftItem
	for offset := 0; ; offset += pageSize {
		params := url.Values{}
		params.Add("collection", collection.Address.Raw())
		params.Add("limit", strconv.Itoa(pageSize))
		params.Add("offset", strconv.Itoa(offset))
		var page nftItems
		if err := c.call(ctx, fiber.MethodGet, "v1/nft/searchItems", params, nil, &page); err != nil {
			return nil, err
		}
		for _, item := range page.NftItems {
			addr, err := ParseAddress(item.Address)
			if err != nil {
				return nil, err
			}
			res = append(res, NewNftItemStub(addr))
		}
		if len(page.NftItems) < pageSize {
			return res, nil
		}
	}
}

type jettonInfo struct {
	Metadata    map[string]interface{} `json:"metadata"`
	TotalSupply backend.Number         `json:"total_supply"`
}

func (c *Client) GetJettonData(ctx context.Context, master Address) (*Jetton, error) {
	var raw jettonInfo
	if err := c.call(ctx, fiber.MethodGet, "v1/jetton/getInfo", accountParams(master), nil, &raw); err != nil {
		return nil, err
	}
	supply, err := raw.TotalSupply.BigInt()
	if err != nil {
		return nil, fmt.Errorf("jetton supply: %w", err)
	}
	meta := raw.Metadata
	if meta == nil {
		meta = map[string]interface{}{}
	}
	// the index repeats the master address inside the metadata
	delete(meta, "address")
	return &Jetton{Address: master, Info: NewJettonInfo(supply, meta)}, nil
}
