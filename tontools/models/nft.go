package models

import (
	"context"
	"encoding/json"
)

type NftItemSource interface {
	GetNftItem(ctx context.Context, addr Address) (*NftItem, error)
}

type NftCollectionSource interface {
	GetCollection(ctx context.Context, addr Address) (*NftCollection, error)
}

type NftSaleSource interface {
	GetNftSale(ctx context.Context, addr Address) (*NftItemSale, error)
}

type addressOnly struct {
	Address Address `json:"address"`
}

// NftItem is either a stub holding only the address or a fully loaded item.
type NftItem struct {
	Address Address
	Info    *NftItemInfo
}

type NftItemInfo struct {
	Index             BigInt
	CollectionAddress *Address
	Owner             Address
	Metadata          map[string]interface{}
	Collection        *NftCollection
	Sale              *NftItemSale
}

func NewNftItemStub(addr Address) *NftItem {
	return &NftItem{Address: addr}
}

func (n *NftItem) IsFull() bool {
	return n.Info != nil
}

func (n *NftItem) Refresh(ctx context.Context, src NftItemSource) error {
	item, err := src.GetNftItem(ctx, n.Address)
	if err != nil {
		return err
	}
	n.Info = item.Info
	return nil
}

// RealOwner is the seller when the item is listed and the owner otherwise.
func (n *NftItem) RealOwner() (Address, bool) {
	if n.Info == nil {
		return Address{}, false
	}
	if n.Info.Sale != nil && n.Info.Sale.Info != nil {
		return n.Info.Sale.Info.Owner, true
	}
	return n.Info.Owner, true
}

func (n *NftItem) MarshalJSON() ([]byte, error) {
	if n.Info == nil {
		return json.Marshal(addressOnly{n.Address})
	}
	return json.Marshal(struct {
		Address           Address                `json:"address"`
		Collection        *NftCollection         `json:"collection"`
		CollectionAddress *Address               `json:"collection_address"`
		Index             BigInt                 `json:"index"`
		Metadata          map[string]interface{} `json:"metadata"`
		Owner             Address                `json:"owner"`
		Sale              *NftItemSale           `json:"sale,omitempty"`
	}{n.Address, n.Info.Collection, n.Info.CollectionAddress, n.Info.Index, n.Info.Metadata, n.Info.Owner, n.Info.Sale})
}

type NftCollection struct {
	Address Address
	Info    *NftCollectionInfo
}

type NftCollectionInfo struct {
	NextItemIndex BigInt
	Owner         *Address
	Metadata      map[string]interface{}
}

func NewNftCollectionStub(addr Address) *NftCollection {
	return &NftCollection{Address: addr}
}

func (c *NftCollection) IsFull() bool {
	return c.Info != nil
}

func (c *NftCollection) Refresh(ctx context.Context, src NftCollectionSource) error {
	collection, err := src.GetCollection(ctx, c.Address)
	if err != nil {
		return err
	}
	c.Info = collection.Info
	return nil
}

func (c *NftCollection) MarshalJSON() ([]byte, error) {
	if c.Info == nil {
		return json.Marshal(addressOnly{c.Address})
	}
	return json.Marshal(struct {
		Address       Address                `json:"address"`
		Owner         *Address               `json:"owner"`
		NextItemIndex BigInt                 `json:"next_item_index"`
		Metadata      map[string]interface{} `json:"metadata"`
	}{c.Address, c.Info.Owner, c.Info.NextItemIndex, c.Info.Metadata})
}

type Market struct {
	Address Address `json:"address"`
	Name    string  `json:"name"`
}

type Price struct {
	Value     BigInt `json:"value"`
	TokenName string `json:"token_name"`
}

type NftItemSale struct {
	Address Address
	Info    *NftItemSaleInfo
}

type NftItemSaleInfo struct {
	Market Market
	Owner  Address
	Price  Price
}

func NewNftItemSaleStub(addr Address) *NftItemSale {
	return &NftItemSale{Address: addr}
}

func (s *NftItemSale) IsFull() bool {
	return s.Info != nil
}

func (s *NftItemSale) Refresh(ctx context.Context, src NftSaleSource) error {
	sale, err := src.GetNftSale(ctx, s.Address)
	if err != nil {
		return err
	}
	s.Info = sale.Info
	return nil
}

func (s *NftItemSale) MarshalJSON() ([]byte, error) {
	if s.Info == nil {
		return json.Marshal(addressOnly{s.Address})
	}
	return json.Marshal(struct {
		Address Address `json:"address"`
		Market  Market  `json:"market"`
		Owner   Address `json:"owner"`
		Price   Price   `json:"price"`
	}{s.Address, s.Info.Market, s.Info.Owner, s.Info.Price})
}
