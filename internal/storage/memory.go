package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryStorage is an in-memory Storage implementation, useful for tests and
// simple single-process deployments.
type MemoryStorage struct {
	mu          sync.RWMutex
	fields      map[string]SnapshotField
	cycle       *CycleState
	meter       *MeterReading
	invoices    []Invoice
	settings    map[string]string
	users       map[string]User
	tokens      map[string]Token
	casbinRules []CasbinRule
	emailConfig *EmailConfig
	jobs        map[string]ScheduledJob
}

// NewMemory returns an empty MemoryStorage.
func NewMemory() *MemoryStorage {
	return &MemoryStorage{
		fields:   make(map[string]SnapshotField),
		settings: make(map[string]string),
		users:    make(map[string]User),
		tokens:   make(map[string]Token),
		jobs:     make(map[string]ScheduledJob),
	}
}

func (m *MemoryStorage) Close() error { return nil }

func (m *MemoryStorage) Ping(ctx context.Context) error { return nil }

func (m *MemoryStorage) GetField(ctx context.Context, key string) (*SnapshotField, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.fields[key]
	if !ok {
		return nil, nil
	}
	cp := f
	return &cp, nil
}

func (m *MemoryStorage) SaveField(ctx context.Context, f SnapshotField) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fields[f.Key] = f
	return nil
}

func (m *MemoryStorage) ListFields(ctx context.Context) ([]SnapshotField, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SnapshotField, 0, len(m.fields))
	for _, f := range m.fields {
		out = append(out, f)
	}
	return out, nil
}

func (m *MemoryStorage) GetCycleState(ctx context.Context) (*CycleState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cycle == nil {
		return nil, nil
	}
	cp := *m.cycle
	return &cp, nil
}

func (m *MemoryStorage) SaveCycleState(ctx context.Context, s CycleState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = singletonID
	m.cycle = &s
	return nil
}

func (m *MemoryStorage) GetMeter(ctx context.Context) (*MeterReading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.meter == nil {
		return nil, nil
	}
	cp := *m.meter
	return &cp, nil
}

func (m *MemoryStorage) SaveMeter(ctx context.Context, r MeterReading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = singletonID
	m.meter = &r
	return nil
}

func (m *MemoryStorage) GetLastInvoice(ctx context.Context) (*Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.invoices) == 0 {
		return nil, nil
	}
	cp := m.invoices[len(m.invoices)-1]
	return &cp, nil
}

func (m *MemoryStorage) SaveInvoice(ctx context.Context, inv Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv.ID = uint(len(m.invoices) + 1)
	m.invoices = append(m.invoices, inv)
	return nil
}

func (m *MemoryStorage) SaveRollover(ctx context.Context, inv Invoice, r MeterReading, cs CycleState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv.ID = uint(len(m.invoices) + 1)
	m.invoices = append(m.invoices, inv)
	r.ID = singletonID
	m.meter = &r
	cs.ID = singletonID
	m.cycle = &cs
	return nil
}

func (m *MemoryStorage) GetSetting(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings[key], nil
}

func (m *MemoryStorage) SetSetting(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
	return nil
}

func (m *MemoryStorage) CreateUser(ctx context.Context, user User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	return nil
}

func (m *MemoryStorage) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Username == username {
			cp := u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemoryStorage) ListUsers(ctx context.Context) ([]User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, nil
}

func (m *MemoryStorage) CreateToken(ctx context.Context, token Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token.ID] = token
	return nil
}

func (m *MemoryStorage) GetTokenByHash(ctx context.Context, hash string) (*Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tokens {
		if t.TokenHash == hash {
			cp := t
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemoryStorage) ListTokens(ctx context.Context, userID string) ([]Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Token, 0)
	for _, t := range m.tokens {
		if userID == "" || t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *MemoryStorage) DeleteToken(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, id)
	return nil
}

func (m *MemoryStorage) UpdateTokenLastUsed(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok {
		return nil
	}
	now := time.Now()
	t.LastUsedAt = &now
	m.tokens[id] = t
	return nil
}

func (m *MemoryStorage) LoadCasbinRules(ctx context.Context) ([]CasbinRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]CasbinRule, len(m.casbinRules))
	copy(out, m.casbinRules)
	return out, nil
}

func (m *MemoryStorage) AddCasbinRule(ctx context.Context, rule CasbinRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.casbinRules = append(m.casbinRules, rule)
	return nil
}

func (m *MemoryStorage) RemoveCasbinRule(ctx context.Context, rule CasbinRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.casbinRules[:0]
	for _, r := range m.casbinRules {
		if r.PType == rule.PType && r.V0 == rule.V0 && r.V1 == rule.V1 && r.V2 == rule.V2 {
			continue
		}
		out = append(out, r)
	}
	m.casbinRules = out
	return nil
}

func (m *MemoryStorage) GetEmailConfig(ctx context.Context) (*EmailConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.emailConfig == nil {
		return nil, nil
	}
	cp := *m.emailConfig
	return &cp, nil
}

func (m *MemoryStorage) SaveEmailConfig(ctx context.Context, config EmailConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if config.ID == "" {
		config.ID = singletonID
	}
	m.emailConfig = &config
	return nil
}

func (m *MemoryStorage) UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := 0
	if success {
		status = 1
	}
	m.jobs[name] = ScheduledJob{
		Name:           name,
		LastRunAt:      started,
		LastDurationMs: dur.Milliseconds(),
		LastSuccess:    status,
		LastError:      errMsg,
	}
	return nil
}

// Single process, nothing contends for the lock.
func (m *MemoryStorage) AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	return true, nil
}

func (m *MemoryStorage) ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	return true, nil
}
