package dispatch

import (
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"marketfeed/internal/feed"
	"marketfeed/internal/obs"
	"marketfeed/internal/registry"
	"marketfeed/internal/tokenref"
	"marketfeed/pkg/exception"
)

// WireRegistrar issues wire-level registration toward the feed session
// owning the relevant account.
type WireRegistrar interface {
	RegisterToken(exchange string, scrip int32) error
	UnregisterToken(exchange string, scrip int32) error
}

// Engine consumes decoded packets from every feed session, resolves
// subscribers and fans messages out through the outbox. It implements
// feed.Sink.
type Engine struct {
	registry *registry.Registry
	tokens   tokenref.Lookup
	wire     WireRegistrar
	cache    *PriceCache
	outbox   *Outbox
	metrics  *obs.Metrics
}

// EngineOption wires the engine's collaborators.
type EngineOption struct {
	Registry *registry.Registry
	Tokens   tokenref.Lookup
	Wire     WireRegistrar
	Cache    *PriceCache
	Outbox   *Outbox
	Metrics  *obs.Metrics
}

// NewEngine validates collaborators and builds an engine.
func NewEngine(opt EngineOption) (*Engine, error) {
	if opt.Registry == nil {
		return nil, errors.New("dispatch: nil registry")
	}
	if opt.Tokens == nil {
		return nil, errors.New("dispatch: nil token lookup")
	}
	if opt.Wire == nil {
		return nil, errors.New("dispatch: nil wire registrar")
	}
	if opt.Cache == nil {
		return nil, errors.New("dispatch: nil price cache")
	}
	if opt.Outbox == nil {
		return nil, errors.New("dispatch: nil outbox")
	}
	return &Engine{
		registry: opt.Registry,
		tokens:   opt.Tokens,
		wire:     opt.Wire,
		cache:    opt.Cache,
		outbox:   opt.Outbox,
		metrics:  opt.Metrics,
	}, nil
}

// OnPacket handles one decoded packet from a feed session.
func (e *Engine) OnPacket(sessionID string, pkt feed.Packet) {
	switch pkt.Kind {
	case feed.KindHeartbeat:
		return
	case feed.KindUnknown:
		// Forward compatibility: newer broker packet types are ignored.
		e.metrics.AddUnknownPacket()
		return
	}

	token, ok := e.tokens.ByScrip(pkt.Exchange, pkt.Scrip)
	if !ok {
		logs.Debugf("session %s: no token for %s/%d", sessionID, pkt.Exchange, pkt.Scrip)
		return
	}

	switch pkt.Kind {
	case feed.KindLTP:
		e.cache.Update(token.Symbol, pkt.LTP.Rate, pkt.Time)
	case feed.KindOHLC:
		e.cache.Update(token.Symbol, pkt.OHLC.PrevClose, pkt.Time)
	}

	subscribers := e.registry.SubscribersOf(token.Symbol)
	if len(subscribers) == 0 {
		return
	}
	msg, ok := buildMessage(token, pkt)
	if !ok {
		return
	}
	for _, subscriberID := range subscribers {
		e.outbox.Send(subscriberID, msg)
	}
}

// OnSubscribe links a subscriber to a token. The first subscriber for a
// token triggers wire registration; a cached price is delivered to the
// new subscriber only, as an immediate snapshot.
func (e *Engine) OnSubscribe(subscriberID, symbol string) error {
	token, ok := e.tokens.BySymbol(symbol)
	if !ok {
		return errors.Wrap(exception.ErrUnknownToken, symbol)
	}
	e.outbox.Attach(subscriberID)
	if first := e.registry.Subscribe(subscriberID, symbol); first {
		if err := e.wire.RegisterToken(token.Exchange, token.ID); err != nil {
			logs.Errorf("wire register %s failed: %v", symbol, err)
		}
	}
	if point, ok := e.cache.Get(symbol); ok {
		e.outbox.Send(subscriberID, snapshotMessage(token, point))
		e.metrics.AddSnapshotSent()
	}
	return nil
}

// OnUnsubscribe unlinks a subscriber; the token's last subscriber
// triggers wire unregistration.
func (e *Engine) OnUnsubscribe(subscriberID, symbol string) error {
	if empty := e.registry.Unsubscribe(subscriberID, symbol); empty {
		e.unregisterWire(symbol)
	}
	return nil
}

// RemoveSubscriber detaches a disconnected subscriber from every token
// and unregisters the tokens that became empty.
func (e *Engine) RemoveSubscriber(subscriberID string) {
	emptied := e.registry.RemoveSubscriber(subscriberID)
	for _, symbol := range emptied {
		e.unregisterWire(symbol)
	}
	e.outbox.Detach(subscriberID)
}

// Shutdown stops delivery workers and leaves the registry empty.
func (e *Engine) Shutdown() {
	e.outbox.Close()
	e.registry.Reset()
}

func (e *Engine) unregisterWire(symbol string) {
	token, ok := e.tokens.BySymbol(symbol)
	if !ok {
		return
	}
	if err := e.wire.UnregisterToken(token.Exchange, token.ID); err != nil {
		logs.Errorf("wire unregister %s failed: %v", symbol, err)
	}
}
