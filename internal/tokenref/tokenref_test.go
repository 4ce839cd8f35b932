package tokenref

import (
	"context"
	"testing"

	"github.com/yanun0323/errors"
)

type failingSource struct{}

func (failingSource) ActiveTokens(context.Context) ([]Token, error) {
	return nil, errors.New("source unavailable")
}

func TestCacheRefreshAndLookup(t *testing.T) {
	src := StaticSource{
		{ID: 2885, Symbol: "RELIANCE", Exchange: "NSE", Active: true},
		{ID: 2885, Symbol: "RELIANCE-BSE", Exchange: "BSE", Active: true},
		{ID: 999, Symbol: "DELISTED", Exchange: "NSE", Active: false},
	}
	c := NewCache(src, 0)

	if c.Len() != 0 {
		t.Fatalf("unrefreshed cache should be empty, has %d", c.Len())
	}
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("inactive tokens must be excluded, got %d", c.Len())
	}

	// The same scrip code on two exchanges resolves independently.
	token, ok := c.ByScrip("NSE", 2885)
	if !ok || token.Symbol != "RELIANCE" {
		t.Fatalf("NSE lookup mismatch: %+v", token)
	}
	token, ok = c.ByScrip("BSE", 2885)
	if !ok || token.Symbol != "RELIANCE-BSE" {
		t.Fatalf("BSE lookup mismatch: %+v", token)
	}
	if _, ok := c.ByScrip("NSE", 999); ok {
		t.Fatal("inactive token should not resolve")
	}

	token, ok = c.BySymbol("RELIANCE")
	if !ok || token.ID != 2885 || token.Exchange != "NSE" {
		t.Fatalf("symbol lookup mismatch: %+v", token)
	}
	if _, ok := c.BySymbol("NOSUCH"); ok {
		t.Fatal("unknown symbol should miss")
	}
}

func TestCacheKeepsStaleSnapshotOnFailure(t *testing.T) {
	good := StaticSource{{ID: 2885, Symbol: "RELIANCE", Exchange: "NSE", Active: true}}
	c := NewCache(good, 0)
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	c.src = failingSource{}
	if err := c.Refresh(context.Background()); err == nil {
		t.Fatal("refresh should surface the source error")
	}
	// The previous snapshot keeps serving.
	if _, ok := c.BySymbol("RELIANCE"); !ok {
		t.Fatal("stale snapshot lost after failed refresh")
	}
}
