package registry

import "sync"

// Registry is the concurrent bidirectional subscription index. The
// token→subscribers and subscriber→tokens maps are kept mutual inverses
// under a single lock; empty sets are pruned so absence, not emptiness,
// is the steady state.
type Registry struct {
	mu           sync.RWMutex
	byToken      map[string]map[string]struct{}
	bySubscriber map[string]map[string]struct{}
}

// New allocates an empty registry.
func New() *Registry {
	return &Registry{
		byToken:      make(map[string]map[string]struct{}),
		bySubscriber: make(map[string]map[string]struct{}),
	}
}

// Subscribe links a subscriber to a token. Idempotent. Returns true when
// this created the token's first subscriber, the signal to register the
// token on the wire.
func (r *Registry) Subscribe(subscriberID, token string) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.byToken[token]
	if subs == nil {
		subs = make(map[string]struct{})
		r.byToken[token] = subs
	}
	first = len(subs) == 0
	subs[subscriberID] = struct{}{}

	tokens := r.bySubscriber[subscriberID]
	if tokens == nil {
		tokens = make(map[string]struct{})
		r.bySubscriber[subscriberID] = tokens
	}
	tokens[token] = struct{}{}
	return first
}

// Unsubscribe removes the link. Idempotent. Returns true when the token
// now has zero subscribers, the signal to unregister on the wire.
func (r *Registry) Unsubscribe(subscriberID, token string) (empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unlink(subscriberID, token)
}

// SubscribersOf returns a snapshot of the token's subscriber set.
func (r *Registry) SubscribersOf(token string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	subs := r.byToken[token]
	if len(subs) == 0 {
		return nil
	}
	out := make([]string, 0, len(subs))
	for id := range subs {
		out = append(out, id)
	}
	return out
}

// TokensOf returns a snapshot of the subscriber's token set.
func (r *Registry) TokensOf(subscriberID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tokens := r.bySubscriber[subscriberID]
	if len(tokens) == 0 {
		return nil
	}
	out := make([]string, 0, len(tokens))
	for token := range tokens {
		out = append(out, token)
	}
	return out
}

// RemoveSubscriber unlinks a subscriber from every token it was on and
// returns the tokens that became empty as a result. Used on disconnect.
func (r *Registry) RemoveSubscriber(subscriberID string) (emptied []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tokens := r.bySubscriber[subscriberID]
	for token := range tokens {
		if r.unlink(subscriberID, token) {
			emptied = append(emptied, token)
		}
	}
	return emptied
}

// Len reports the number of tokens with at least one subscriber.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byToken)
}

// Reset drops every subscription. Used on engine shutdown.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byToken = make(map[string]map[string]struct{})
	r.bySubscriber = make(map[string]map[string]struct{})
}

// unlink removes one edge from both maps, pruning empty sets. Caller
// holds the write lock.
func (r *Registry) unlink(subscriberID, token string) (empty bool) {
	subs, ok := r.byToken[token]
	if ok {
		delete(subs, subscriberID)
		if len(subs) == 0 {
			delete(r.byToken, token)
			empty = true
		}
	}
	tokens, ok := r.bySubscriber[subscriberID]
	if ok {
		delete(tokens, token)
		if len(tokens) == 0 {
			delete(r.bySubscriber, subscriberID)
		}
	}
	return empty
}
