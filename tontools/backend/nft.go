package backend

import (
	"errors"
	"fmt"

	. "github.com/toncenter/ton-tools-go/tontools/models"
)

// MaxCollectionItems is the largest collection enumerated item by item.
const MaxCollectionItems = 100000

// CollectionSize returns the number of items to enumerate in a full
// collection. The index comes from the contract, so it is bounded before
// anything is allocated for it.
func CollectionSize(collection *NftCollection) (int, error) {
	next := collection.Info.NextItemIndex
	if !next.IsInt64() || next.Sign() < 0 {
		return 0, fmt.Errorf("%w: next item index %s", ErrUnexpectedStack, next.String())
	}
	if next.Int64() > MaxCollectionItems {
		return 0, fmt.Errorf("%w: collection %s reports %s items, at most %d are listed",
			ErrUnsupportedOperation, collection.Address, next.String(), MaxCollectionItems)
	}
	return int(next.Int64()), nil
}

// NotForSale reports errors meaning the owner is not a recognized sale contract.
func NotForSale(err error) bool {
	var readErr *ReadMethodError
	return errors.As(err, &readErr) ||
		errors.Is(err, ErrUnknownSaleShape) ||
		errors.Is(err, ErrUnexpectedStack) ||
		errors.Is(err, ErrNotAnAddress)
}
