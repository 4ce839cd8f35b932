package feed

import (
	"context"
	"time"

	"github.com/yanun0323/errors"

	"marketfeed/pkg/exception"
)

// AccountSpec binds one broker account to the exchanges it serves.
type AccountSpec struct {
	ID        string
	AccountID string
	Exchanges []string
}

// Manager owns one session per broker account and routes wire-level
// registration to the session serving the token's exchange.
type Manager struct {
	sessions   []*Session
	byExchange map[string]*Session
}

// SessionHealth is an operator-facing snapshot of one session.
type SessionHealth struct {
	ID            string
	State         State
	LastHeartbeat time.Time
	Registered    int
}

// NewManager builds a session per account. The first account listing an
// exchange owns registrations for it.
func NewManager(accounts []AccountSpec, build func(AccountSpec) (*Session, error)) (*Manager, error) {
	if len(accounts) == 0 {
		return nil, errors.New("feed: no accounts configured")
	}
	m := &Manager{
		byExchange: make(map[string]*Session),
	}
	for _, acct := range accounts {
		session, err := build(acct)
		if err != nil {
			return nil, errors.Wrapf(err, "build session for account %s", acct.ID)
		}
		m.sessions = append(m.sessions, session)
		for _, exchange := range acct.Exchanges {
			if _, taken := m.byExchange[exchange]; !taken {
				m.byExchange[exchange] = session
			}
		}
	}
	return m, nil
}

// Start launches every session.
func (m *Manager) Start(ctx context.Context) {
	for _, session := range m.sessions {
		session.Start(ctx)
	}
}

// Shutdown terminates every session and waits for their run loops.
func (m *Manager) Shutdown() {
	for _, session := range m.sessions {
		session.Terminate()
	}
}

// RegisterToken registers a scrip on the session owning its exchange.
func (m *Manager) RegisterToken(exchange string, scrip int32) error {
	session, ok := m.byExchange[exchange]
	if !ok {
		return errors.Wrap(exception.ErrUnknownExchange, exchange)
	}
	return session.RegisterToken(exchange, scrip)
}

// UnregisterToken removes a scrip from the owning session's wire set.
func (m *Manager) UnregisterToken(exchange string, scrip int32) error {
	session, ok := m.byExchange[exchange]
	if !ok {
		return errors.Wrap(exception.ErrUnknownExchange, exchange)
	}
	return session.UnregisterToken(exchange, scrip)
}

// Health reports every session's state for operator monitoring.
func (m *Manager) Health() []SessionHealth {
	health := make([]SessionHealth, 0, len(m.sessions))
	for _, session := range m.sessions {
		health = append(health, SessionHealth{
			ID:            session.ID(),
			State:         session.State(),
			LastHeartbeat: session.LastHeartbeat(),
			Registered:    session.RegisteredCount(),
		})
	}
	return health
}
