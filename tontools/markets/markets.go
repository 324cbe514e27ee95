package markets

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/gofiber/fiber/v2/log"
	"github.com/jackc/pgx/v5"
	. "github.com/toncenter/ton-tools-go/tontools/models"
	"gopkg.in/yaml.v3"
)

var defaults = map[string]string{
	"0:584ee61b2dff0837116d0fcb5078d93964bcbe9c05fd6a141b1bfca5d6a43e18": "Getgems Sales",
	"0:eb2eaf97ea32993470127208218748758a88374ad2bbd739fc75c9ab3a3f233d": "Disintar Marketplace",
	"0:1ecdb7672d5b0b4aaf2d9d5573687c7190aa6849804d9e7d7aef71975ac03e2e": "TON Diamonds",
}

// Registry maps marketplace addresses to their names. It is not modified
// after construction.
type Registry struct {
	names map[Address]string
}

func New(names map[Address]string) *Registry {
	r := &Registry{names: make(map[Address]string, len(names))}
	for k, v := range names {
		r.names[k] = v
	}
	return r
}

// Default returns the registry of well known marketplaces.
func Default() *Registry {
	names, err := parseEntries(defaults)
	if err != nil {
		panic(err)
	}
	return New(names)
}

// Name returns the marketplace name or an empty string for unknown addresses.
func (r *Registry) Name(addr Address) string {
	if r == nil {
		return ""
	}
	return r.names[addr]
}

func (r *Registry) Len() int {
	return len(r.names)
}

func (r *Registry) Markets() []Market {
	res := make([]Market, 0, len(r.names))
	for addr, name := range r.names {
		res = append(res, Market{Address: addr, Name: name})
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].Address.Raw() < res[j].Address.Raw()
	})
	return res
}

func parseEntries(entries map[string]string) (map[Address]string, error) {
	res := make(map[Address]string, len(entries))
	for text, name := range entries {
		addr, err := ParseAddress(text)
		if err != nil {
			return nil, fmt.Errorf("market %q: %w", name, err)
		}
		res[addr] = name
	}
	return res, nil
}

type fileEntry struct {
	Address string `yaml:"address"`
	Name    string `yaml:"name"`
}

type file struct {
	Markets []fileEntry `yaml:"markets"`
}

// LoadFile reads market names from a yaml file of the form
//
//	markets:
//	  - address: "0:..."
//	    name: "Some Market"
func LoadFile(path string) (map[Address]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	entries := make(map[string]string, len(f.Markets))
	for _, e := range f.Markets {
		entries[e.Address] = e.Name
	}
	return parseEntries(entries)
}

type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// LoadPostgres reads market names from the marketplace_names table. Rows
// with unparsable addresses are skipped.
func LoadPostgres(ctx context.Context, pool Querier) (map[Address]string, error) {
	query := `SELECT address, name FROM marketplace_names`

	rows, err := pool.Query(ctx, query)
	if err != nil {
		log.Warnf("failed to load marketplace names: %v", err)
		return nil, err
	}
	defer rows.Close()

	res := make(map[Address]string)
	for rows.Next() {
		var text, name string
		if err := rows.Scan(&text, &name); err != nil {
			log.Warnf("failed to scan marketplace row: %v", err)
			continue
		}
		addr, err := ParseAddress(text)
		if err != nil {
			log.Warnf("skipping marketplace %q: %v", name, err)
			continue
		}
		res[addr] = name
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	log.Infof("loaded %d marketplace names", len(res))
	return res, nil
}

type Options struct {
	File string
	Pool Querier
}

// Load builds a registry from the defaults overlaid with the file and the
// database entries, in that order.
func Load(ctx context.Context, opts Options) (*Registry, error) {
	names := Default().names
	if opts.File != "" {
		fromFile, err := LoadFile(opts.File)
		if err != nil {
			return nil, err
		}
		for k, v := range fromFile {
			names[k] = v
		}
	}
	if opts.Pool != nil {
		fromDb, err := LoadPostgres(ctx, opts.Pool)
		if err != nil {
			return nil, err
		}
		for k, v := range fromDb {
			names[k] = v
		}
	}
	return &Registry{names: names}, nil
}
