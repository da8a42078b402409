package storage

import (
	"context"
	"time"
)

// Storage abstracts persistence for the coordinator snapshot, the reading
// cycle state, the household meter slots and the supporting tables. Getters
// return (nil, nil) when a row does not exist.
type Storage interface {
	// Snapshot fields (heat/price values with per-field update timestamps)
	GetField(ctx context.Context, key string) (*SnapshotField, error)
	SaveField(ctx context.Context, f SnapshotField) error
	ListFields(ctx context.Context) ([]SnapshotField, error)

	// Reading cycle state
	GetCycleState(ctx context.Context) (*CycleState, error)
	SaveCycleState(ctx context.Context, s CycleState) error

	// Meter slots
	GetMeter(ctx context.Context) (*MeterReading, error)
	SaveMeter(ctx context.Context, m MeterReading) error

	// Closed-cycle invoices
	GetLastInvoice(ctx context.Context) (*Invoice, error)
	SaveInvoice(ctx context.Context, inv Invoice) error

	// SaveRollover persists a closed cycle in one step: the archived
	// invoice, the shifted meter slots and the period marker. Either all
	// three land or none do, so a storage failure mid-rollover leaves the
	// running cycle untouched.
	SaveRollover(ctx context.Context, inv Invoice, m MeterReading, cs CycleState) error

	// Runtime settings
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	// Users & tokens
	CreateUser(ctx context.Context, user User) error
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	CreateToken(ctx context.Context, token Token) error
	GetTokenByHash(ctx context.Context, hash string) (*Token, error)
	ListTokens(ctx context.Context, userID string) ([]Token, error)
	DeleteToken(ctx context.Context, id string) error
	UpdateTokenLastUsed(ctx context.Context, id string) error

	// Casbin policy persistence
	LoadCasbinRules(ctx context.Context) ([]CasbinRule, error)
	AddCasbinRule(ctx context.Context, rule CasbinRule) error
	RemoveCasbinRule(ctx context.Context, rule CasbinRule) error

	// Email delivery configuration
	GetEmailConfig(ctx context.Context) (*EmailConfig, error)
	SaveEmailConfig(ctx context.Context, config EmailConfig) error

	// Worker bookkeeping
	UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error
	AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error)
	ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error)

	Ping(ctx context.Context) error
	Close() error
}
