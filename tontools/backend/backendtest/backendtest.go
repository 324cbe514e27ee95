// Package backendtest provides a routed fake Transport and cell fixtures
// for adapter tests.
package backendtest

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/toncenter/ton-tools-go/tontools/backend"
	"github.com/toncenter/ton-tools-go/tontools/boc"
	. "github.com/toncenter/ton-tools-go/tontools/models"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

type HandlerFunc func(req backend.Request) (int, string)


// Transport answers requests from registered routes. Routes are matched by
// method and url without the query string. Unknown routes fail with
// ErrBackendUnavailable.
type Transport struct {
	mu       sync.Mutex
	routes   map[string]HandlerFunc
	requests []backend.Request
	Cookies  []string
}

func NewTransport() *Transport {
	return &Transport{routes: map[string]HandlerFunc{}}
}

func stripQuery(url string) string {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		return url[:i]
	}
	return url
}

func routeKey(method, url string) string {
	if method == "" {
		method = "GET"
	}
	return method + " " + stripQuery(url)
}

func (t *Transport) Handle(method, url string, status int, body string) {
	t.HandleFunc(method, url, func(backend.Request) (int, string) {
		return status, body
	})
}

func (t *Transport) HandleFunc(method, url string, fn HandlerFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes[routeKey(method, url)] = fn
}

func (t *Transport) Do(ctx context.Context, req backend.Request) (*backend.Response, error) {
	t.mu.Lock()
	t.requests = append(t.requests, req)
	fn, ok := t.routes[routeKey(req.Method, req.URL)]
	t.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: no route for %s %s", ErrBackendUnavailable, req.Method, req.URL)
	}
	status, body := fn(req)
	if status >= 500 {
		return nil, fmt.Errorf("%w: status %d", ErrBackendUnavailable, status)
	}
	return &backend.Response{Status: status, Body: []byte(body), Cookies: t.Cookies}, nil
}

// Requests returns the recorded requests to url, in order.
func (t *Transport) Requests(url string) []backend.Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	var res []backend.Request
	for _, r := range t.requests {
		if stripQuery(r.URL) == stripQuery(url) {
			res = append(res, r)
		}
	}
	return res
}

func Cell(t testing.TB, tc *cell.Cell) *boc.Cell {
	t.Helper()
	c, err := boc.FromCell(tc)
	if err != nil {
		t.Fatalf("failed to convert cell: %v", err)
	}
	return c
}

func Base64(tc *cell.Cell) string {
	return base64.StdEncoding.EncodeToString(tc.ToBOC())
}

func AddrCell(addr Address) *cell.Cell {
	return cell.BeginCell().MustStoreAddr(addr.ToTonutils()).EndCell()
}

// Addr returns a basechain address whose hash is filled with b.
func Addr(b byte) Address {
	var hash [32]byte
	for i := range hash {
		hash[i] = b
	}
	return Address{Workchain: 0, Hash: hash}
}

// SnakeURL builds an off-chain style content cell: the prefix byte
// followed by the url text, split between the root and one ref.
func SnakeURL(prefix byte, head, tail string) *cell.Cell {
	b := cell.BeginCell().MustStoreUInt(uint64(prefix), 8).MustStoreSlice([]byte(head), uint(len(head)*8))
	if tail != "" {
		b.MustStoreRef(cell.BeginCell().MustStoreSlice([]byte(tail), uint(len(tail)*8)).EndCell())
	}
	return b.EndCell()
}
