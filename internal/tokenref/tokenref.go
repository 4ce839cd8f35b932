package tokenref

import (
	"context"
	"sync"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// Token is one instrument reference entry mapping the broker's scrip
// code to its human-readable symbol.
type Token struct {
	ID       int32  `gorm:"column:token_id;primaryKey"`
	Symbol   string `gorm:"column:symbol"`
	Exchange string `gorm:"column:exchange"`
	Active   bool   `gorm:"column:is_active"`
}

// TableName maps Token onto the reference table.
func (Token) TableName() string {
	return "tokens"
}

// Lookup resolves instruments in both directions. Implementations must
// be safe for concurrent use from every feed session.
type Lookup interface {
	ByScrip(exchange string, scrip int32) (Token, bool)
	BySymbol(symbol string) (Token, bool)
}

// Source supplies the active token universe.
type Source interface {
	ActiveTokens(ctx context.Context) ([]Token, error)
}

type scripKey struct {
	exchange string
	scrip    int32
}

// Cache is an in-memory Lookup refreshed from a Source on an interval.
// On refresh failure the previous snapshot keeps serving.
type Cache struct {
	src      Source
	interval time.Duration

	mu       sync.RWMutex
	byScrip  map[scripKey]Token
	bySymbol map[string]Token
}

// NewCache builds a cache over src. Call Refresh once before serving,
// then Run to keep it current.
func NewCache(src Source, interval time.Duration) *Cache {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Cache{
		src:      src,
		interval: interval,
		byScrip:  make(map[scripKey]Token),
		bySymbol: make(map[string]Token),
	}
}

// Refresh reloads both indexes from the source.
func (c *Cache) Refresh(ctx context.Context) error {
	tokens, err := c.src.ActiveTokens(ctx)
	if err != nil {
		return errors.Wrap(err, "load active tokens")
	}
	byScrip := make(map[scripKey]Token, len(tokens))
	bySymbol := make(map[string]Token, len(tokens))
	for _, token := range tokens {
		byScrip[scripKey{exchange: token.Exchange, scrip: token.ID}] = token
		bySymbol[token.Symbol] = token
	}
	c.mu.Lock()
	c.byScrip = byScrip
	c.bySymbol = bySymbol
	c.mu.Unlock()
	logs.Debugf("token cache refreshed: %d tokens", len(tokens))
	return nil
}

// Run refreshes on the configured interval until ctx is done.
func (c *Cache) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				// Keep serving the stale snapshot.
				logs.Errorf("token cache refresh failed: %v", err)
			}
		}
	}
}

func (c *Cache) ByScrip(exchange string, scrip int32) (Token, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	token, ok := c.byScrip[scripKey{exchange: exchange, scrip: scrip}]
	return token, ok
}

func (c *Cache) BySymbol(symbol string) (Token, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	token, ok := c.bySymbol[symbol]
	return token, ok
}

// Len reports the number of cached tokens.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.bySymbol)
}

// StaticSource serves a fixed token list, for config-supplied universes
// and tests.
type StaticSource []Token

func (s StaticSource) ActiveTokens(context.Context) ([]Token, error) {
	out := make([]Token, 0, len(s))
	for _, token := range s {
		if token.Active {
			out = append(out, token)
		}
	}
	return out, nil
}
