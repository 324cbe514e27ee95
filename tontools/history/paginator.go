package history

import (
	"context"

	mapset "github.com/deckarep/golang-set/v2"
	. "github.com/toncenter/ton-tools-go/tontools/models"
)

// Cursor is the continuation state passed to the next fetch. Which fields
// are meaningful depends on the backend.
type Cursor struct {
	Lt      uint64
	Hash    HashType
	RawHash []byte
	Page    int
	Offset  int
}

// FetchFunc loads one page. A nil cursor requests the newest page.
type FetchFunc func(ctx context.Context, cursor *Cursor, pageSize int) ([]*Transaction, error)

// AdvanceFunc derives the cursor of the next page. Returning false stops
// pagination.
type AdvanceFunc func(cursor *Cursor, page []*Transaction) (*Cursor, bool)

type Paginator struct {
	Fetch    FetchFunc
	Advance  AdvanceFunc
	PageSize int
	// Limit of 0 means no limit.
	Limit int
}

// MinAfterLastPageSize is the smallest page that moves an AfterLast cursor:
// the first entry of every page repeats the previous page's last one.
const MinAfterLastPageSize = 2

// Collect fetches pages until the backend runs out of transactions, a short
// page arrives, a page brings nothing new or the limit is reached.
// Transactions repeated across pages are dropped.
func (p *Paginator) Collect(ctx context.Context) ([]*Transaction, error) {
	seen := mapset.NewThreadUnsafeSet[string]()
	var res []*Transaction
	var cursor *Cursor
	for {
		page, err := p.Fetch(ctx, cursor, p.PageSize)
		if err != nil {
			return nil, err
		}
		added := 0
		for _, tx := range page {
			if !seen.Add(tx.Key()) {
				continue
			}
			res = append(res, tx)
			added++
		}
		if len(page) == 0 || len(page) < p.PageSize {
			break
		}
		if cursor != nil && added == 0 {
			break
		}
		if p.Limit > 0 && len(res) >= p.Limit {
			break
		}
		next, ok := p.Advance(cursor, page)
		if !ok {
			break
		}
		cursor = next
	}
	if p.Limit > 0 && len(res) > p.Limit {
		res = res[:p.Limit]
	}
	return res, nil
}

// AfterLast continues from the last transaction of the page. Backends using
// it return that transaction again at the top of the next page.
func AfterLast(_ *Cursor, page []*Transaction) (*Cursor, bool) {
	last := page[len(page)-1]
	return &Cursor{Lt: last.Lt, Hash: last.Hash}, true
}

// BeforeLast continues from the transaction preceding the last one of the
// page and stops at the first transaction of the account.
func BeforeLast(_ *Cursor, page []*Transaction) (*Cursor, bool) {
	last := page[len(page)-1]
	if last.PrevLt == 0 {
		return nil, false
	}
	return &Cursor{Lt: last.PrevLt, RawHash: last.PrevHash}, true
}

func NextPage(cursor *Cursor, _ []*Transaction) (*Cursor, bool) {
	if cursor == nil {
		return &Cursor{Page: 1}, true
	}
	return &Cursor{Page: cursor.Page + 1}, true
}

func NextOffset(cursor *Cursor, page []*Transaction) (*Cursor, bool) {
	offset := len(page)
	if cursor != nil {
		offset += cursor.Offset
	}
	return &Cursor{Offset: offset}, true
}
