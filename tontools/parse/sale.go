package parse

import (
	"fmt"
	"math/big"

	"github.com/toncenter/ton-tools-go/tontools/markets"
	. "github.com/toncenter/ton-tools-go/tontools/models"
	"github.com/toncenter/ton-tools-go/tontools/stack"
)

const TokenTON = "TON"

type saleLayout struct {
	market int
	owner  int
	price  int
	// second price candidate, -1 when absent
	bid int
}

// saleLayoutFor picks the get_sale_data layout by stack length. The layouts
// come from the marketplace contract versions seen on chain.
func saleLayoutFor(n int) (saleLayout, bool) {
	switch {
	case n == 7:
		return saleLayout{market: 0, owner: 2, price: 3, bid: -1}, true
	case n == 10:
		return saleLayout{market: 3, owner: 5, price: 6, bid: -1}, true
	case n >= 17:
		return saleLayout{market: 3, owner: 5, price: 6, bid: 16}, true
	case n == 16:
		return saleLayout{market: 3, owner: 5, price: 6, bid: 15}, true
	case n >= 11:
		return saleLayout{market: 3, owner: 5, price: 6, bid: -1}, true
	}
	return saleLayout{}, false
}

// ParseSale classifies a get_sale_data result and extracts the market, the
// real owner and the effective price. When two price candidates are present
// the larger one wins.
func ParseSale(values []stack.Value, names *markets.Registry) (*NftItemSaleInfo, error) {
	layout, ok := saleLayoutFor(len(values))
	if !ok {
		return nil, fmt.Errorf("%w: stack of %d entries", ErrUnknownSaleShape, len(values))
	}

	market, err := values[layout.market].Address()
	if err != nil {
		return nil, fmt.Errorf("sale market: %w", err)
	}
	owner, err := values[layout.owner].Address()
	if err != nil {
		return nil, fmt.Errorf("sale owner: %w", err)
	}
	price, err := values[layout.price].Int()
	if err != nil {
		return nil, fmt.Errorf("sale price: %w", err)
	}
	if layout.bid >= 0 {
		// the slot may hold something else than a number on exotic contracts
		if bid, err := values[layout.bid].Int(); err == nil && bid.Cmp(price) > 0 {
			price = bid
		}
	}

	return &NftItemSaleInfo{
		Market: Market{Address: market, Name: names.Name(market)},
		Owner:  owner,
		Price:  Price{Value: NewBigInt(price), TokenName: TokenTON},
	}, nil
}

// EffectivePrice returns price, or minBid when price is zero.
func EffectivePrice(price, minBid *big.Int) *big.Int {
	if price == nil || price.Sign() == 0 {
		if minBid == nil {
			return new(big.Int)
		}
		return minBid
	}
	return price
}
