package parse

import (
	"fmt"
	"strconv"

	"github.com/toncenter/ton-tools-go/tontools/boc"
	. "github.com/toncenter/ton-tools-go/tontools/models"
	"github.com/xssnick/tonutils-go/ton/nft"
)

var onchainKeys = []string{"name", "description", "image", "image_data", "symbol", "decimals", "uri"}

// Content is a decoded metadata cell: a link to off-chain json, a set of
// on-chain attributes, or both when the attributes carry a uri.
type Content struct {
	URL     string
	Onchain map[string]interface{}
}

// DecodeContent decodes a TEP-64 content cell.
func DecodeContent(c *boc.Cell) (*Content, error) {
	if c.BitsSize() < 8 {
		return nil, fmt.Errorf("%w: content cell of %d bits", ErrCellUnderflow, c.BitsSize())
	}
	tc, err := c.ToTonutils()
	if err != nil {
		return nil, err
	}
	content, err := nft.ContentFromCell(tc)
	if err != nil {
		return nil, fmt.Errorf("%w: content: %v", ErrMalformedBoc, err)
	}
	switch v := content.(type) {
	case *nft.ContentOffchain:
		return &Content{URL: v.URI}, nil
	case *nft.ContentSemichain:
		return &Content{URL: v.URI, Onchain: onchainAttributes(&v.ContentOnchain)}, nil
	case *nft.ContentOnchain:
		return &Content{URL: v.GetAttribute("uri"), Onchain: onchainAttributes(v)}, nil
	}
	url, err := boc.ContentURL(c)
	if err != nil {
		return nil, err
	}
	return &Content{URL: url}, nil
}

func onchainAttributes(c *nft.ContentOnchain) map[string]interface{} {
	res := map[string]interface{}{}
	for _, key := range onchainKeys {
		v := c.GetAttribute(key)
		if v == "" {
			continue
		}
		if key == "decimals" {
			if d, err := strconv.Atoi(v); err == nil {
				res[key] = d
				continue
			}
		}
		res[key] = v
	}
	return res
}

// NftContentURL returns the metadata url of an item from the cell returned
// by the collection's get_nft_content: the common prefix in the root
// followed by the individual part in its ref.
func NftContentURL(full *boc.Cell) (string, error) {
	return boc.ContentURL(full)
}
