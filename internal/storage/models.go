package storage

import "time"

// Snapshot field keys. Each heat/price value is stored as its own row so a
// refresh can update one field without touching the others.
const (
	FieldPrevMonthHeat  = "prev_month_heat"
	FieldCurrMonthHeat  = "curr_month_heat"
	FieldPrevMonthPrice = "prev_month_price"
	FieldCurrMonthPrice = "curr_month_price"
)

// SnapshotField is one heat-content or unit-price value with the time it was
// last confirmed by a provider fetch.
type SnapshotField struct {
	Key       string    `json:"key" gorm:"primaryKey;column:key"`
	Value     float64   `json:"value" gorm:"column:value"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`
}

// CycleState records which monthly period last rolled over. There is exactly
// one row per installation.
type CycleState struct {
	ID                 string    `json:"-" gorm:"primaryKey;column:id"`
	LastRolloverPeriod string    `json:"last_rollover_period" gorm:"column:last_rollover_period"` // "2006-01"
	UpdatedAt          time.Time `json:"updated_at" gorm:"column:updated_at"`
}

// MeterReading holds the household meter slots: the live counter, the value
// it had when the current cycle opened, and the closed previous cycle pair.
type MeterReading struct {
	ID               string    `json:"-" gorm:"primaryKey;column:id"`
	CurrentVolume    float64   `json:"current_volume" gorm:"column:current_volume"`
	StartVolume      float64   `json:"start_volume" gorm:"column:start_volume"`
	PrevStartVolume  float64   `json:"prev_start_volume" gorm:"column:prev_start_volume"`
	PrevEndVolume    float64   `json:"prev_end_volume" gorm:"column:prev_end_volume"`
	CurrentUpdatedAt time.Time `json:"current_updated_at" gorm:"column:current_updated_at"`
	UpdatedAt        time.Time `json:"updated_at" gorm:"column:updated_at"`
}

// Invoice archives the fee breakdown of a closed cycle. Payload is the JSON
// encoding of the computed bill.
type Invoice struct {
	ID       uint      `json:"-" gorm:"primaryKey;column:id"`
	Period   string    `json:"period" gorm:"column:period"` // "2006-01" of the closing reading day
	Payload  []byte    `json:"payload" gorm:"column:payload"`
	ClosedAt time.Time `json:"closed_at" gorm:"column:closed_at"`
}

// User represents a registered user in the system.
type User struct {
	ID           string    `json:"id" gorm:"primaryKey;column:id"`
	Username     string    `json:"username" gorm:"unique;column:username"`
	PasswordHash string    `json:"-" gorm:"column:password_hash"`
	Role         string    `json:"role" gorm:"column:role"`
	CreatedAt    time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"column:updated_at"`
}

// Token represents an API access token.
type Token struct {
	ID         string     `json:"id" gorm:"primaryKey;column:id"`
	UserID     string     `json:"user_id" gorm:"column:user_id"`
	Name       string     `json:"name" gorm:"column:name"`
	TokenHash  string     `json:"-" gorm:"column:token_hash"`
	Role       string     `json:"role" gorm:"column:role"`
	CreatedAt  time.Time  `json:"created_at" gorm:"column:created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty" gorm:"column:expires_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" gorm:"column:last_used_at"`
}

// CasbinRule represents a policy rule for RBAC.
type CasbinRule struct {
	ID    uint   `gorm:"primaryKey"`
	PType string `json:"ptype" gorm:"column:ptype"`
	V0    string `json:"v0" gorm:"column:v0"`
	V1    string `json:"v1" gorm:"column:v1"`
	V2    string `json:"v2" gorm:"column:v2"`
	V3    string `json:"v3" gorm:"column:v3"`
	V4    string `json:"v4" gorm:"column:v4"`
	V5    string `json:"v5" gorm:"column:v5"`
}

// EmailConfig holds configuration for invoice email delivery.
type EmailConfig struct {
	ID          string    `json:"id" gorm:"primaryKey;column:id"`
	Provider    string    `json:"provider" gorm:"column:provider"` // "smtp", "sendgrid", "gmail"
	Host        string    `json:"host,omitempty" gorm:"column:host"`
	Port        int       `json:"port,omitempty" gorm:"column:port"`
	Username    string    `json:"username,omitempty" gorm:"column:username"`
	Password    string    `json:"password,omitempty" gorm:"column:password"`
	FromAddress string    `json:"from_address" gorm:"column:from_address"`
	FromName    string    `json:"from_name" gorm:"column:from_name"`
	Recipient   string    `json:"recipient" gorm:"column:recipient"`
	APIKey      string    `json:"api_key,omitempty" gorm:"column:api_key"` // For Sendgrid
	Encryption  string    `json:"encryption,omitempty" gorm:"column:encryption"` // "none", "ssl", "tls"
	Enabled     bool      `json:"enabled" gorm:"column:enabled"`
	CreatedAt   time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"column:updated_at"`
}

// Setting is a runtime-tunable key/value pair.
type Setting struct {
	Key       string    `gorm:"primaryKey;column:key"`
	Value     string    `gorm:"column:value"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// ScheduledJob records the last outcome of a background job.
type ScheduledJob struct {
	Name           string    `gorm:"primaryKey;column:name"`
	LastRunAt      time.Time `gorm:"column:last_run_at"`
	LastDurationMs int64     `gorm:"column:last_duration_ms"`
	LastSuccess    int       `gorm:"column:last_success"`
	LastError      string    `gorm:"column:last_error"`
}

// singletonID keys the one-row-per-installation tables.
const singletonID = "default"
