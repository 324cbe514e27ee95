package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/toncenter/ton-tools-go/tontools/backend"
	"github.com/toncenter/ton-tools-go/tontools/boc"
	. "github.com/toncenter/ton-tools-go/tontools/models"
	"github.com/toncenter/ton-tools-go/tontools/parse"
	"golang.org/x/sync/semaphore"
)

const DefaultGateway = "https://ipfs.io"

type Metadata = map[string]interface{}

type Options struct {
	Gateway     string
	Concurrency int64
	Cache       *Cache[Metadata]
	TTL         time.Duration
}

// Resolver fetches off-chain metadata json.
type Resolver struct {
	transport backend.Transport
	gateway   string
	gate      *semaphore.Weighted
	cache     *Cache[Metadata]
	ttl       time.Duration
}

func NewResolver(transport backend.Transport, opts Options) *Resolver {
	if opts.Gateway == "" {
		opts.Gateway = DefaultGateway
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 16
	}
	return &Resolver{
		transport: transport,
		gateway:   strings.TrimSuffix(opts.Gateway, "/"),
		gate:      semaphore.NewWeighted(opts.Concurrency),
		cache:     opts.Cache,
		ttl:       opts.TTL,
	}
}

// Rewrite turns a content link into an http url. ipfs links go through the
// gateway.
func (r *Resolver) Rewrite(source string) (string, error) {
	source = strings.TrimSpace(source)
	tokens := strings.SplitN(source, ":", 2)
	if len(tokens) < 2 {
		return "", fmt.Errorf("%w: invalid url: %q", ErrMetadataUnavailable, source)
	}
	switch protocol := strings.ToLower(tokens[0]); protocol {
	case "http", "https":
		return source, nil
	case "ipfs":
		return r.gateway + "/ipfs/" + strings.TrimPrefix(tokens[1], "//"), nil
	default:
		return "", fmt.Errorf("%w: unsupported protocol: %s", ErrMetadataUnavailable, protocol)
	}
}

// Resolve fetches and parses the json behind source. All failures wrap
// ErrMetadataUnavailable.
func (r *Resolver) Resolve(ctx context.Context, source string) (Metadata, error) {
	target, err := r.Rewrite(source)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		cached, err := r.cache.Get(ctx, target)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, ErrNotFound) {
			log.Warnf("metadata cache get %s: %v", target, err)
		}
	}

	if err := r.gate.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMetadataUnavailable, err)
	}
	resp, err := r.transport.Do(ctx, backend.Request{Method: fiber.MethodGet, URL: target})
	r.gate.Release(1)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMetadataUnavailable, target, err)
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return nil, fmt.Errorf("%w: %s: status %d", ErrMetadataUnavailable, target, resp.Status)
	}
	var content Metadata
	if err := json.Unmarshal(resp.Body, &content); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMetadataUnavailable, target, err)
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, target, content, r.ttl); err != nil {
			log.Warnf("metadata cache set %s: %v", target, err)
		}
	}
	return content, nil
}

// ResolveCell decodes a content cell and resolves its link. On-chain
// attributes fill the keys missing from the fetched json and are returned
// alone when the link cannot be fetched.
func (r *Resolver) ResolveCell(ctx context.Context, c *boc.Cell) (Metadata, error) {
	decoded, err := parse.DecodeContent(c)
	if err != nil {
		return nil, err
	}
	if decoded.URL == "" {
		return decoded.Onchain, nil
	}
	fetched, err := r.Resolve(ctx, decoded.URL)
	if err != nil {
		if len(decoded.Onchain) > 0 {
			log.Debugf("using on-chain metadata only: %v", err)
			return decoded.Onchain, nil
		}
		return nil, err
	}
	for k, v := range decoded.Onchain {
		if _, ok := fetched[k]; !ok {
			fetched[k] = v
		}
	}
	return fetched, nil
}

// Degrade logs a metadata failure and returns an empty map, so the caller
// can keep populating its object.
func Degrade(meta Metadata, err error) Metadata {
	if err == nil {
		return meta
	}
	if errors.Is(err, ErrMetadataUnavailable) {
		log.Warnf("metadata unavailable: %v", err)
	} else {
		log.Errorf("metadata: %v", err)
	}
	return Metadata{}
}
