package ledger

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"progression-engine/services/progression"

	"gorm.io/datatypes"
)

const GenesisHash = "GENESIS"

// Entry is one append-only row of a user's points history. Entries of a user
// form a hash chain ordered by Sequence.
type Entry struct {
	ID           string         `gorm:"column:id;primaryKey;size:32" json:"id"`
	UserID       string         `gorm:"column:user_id;size:64;not null;uniqueIndex:idx_points_history_user_seq,priority:1" json:"user_id"`
	Sequence     int64          `gorm:"column:sequence;not null;uniqueIndex:idx_points_history_user_seq,priority:2" json:"sequence"`
	Amount       int64          `gorm:"column:amount;not null" json:"amount"`
	Source       Source         `gorm:"column:source;size:32;not null;index" json:"source"`
	ReferenceID  string         `gorm:"column:reference_id;size:128;not null;uniqueIndex" json:"reference_id"`
	Description  string         `gorm:"column:description" json:"description"`
	BalanceAfter int64          `gorm:"column:balance_after;not null" json:"balance_after"`
	PreviousHash string         `gorm:"column:previous_hash;size:64" json:"previous_hash"`
	Hash         string         `gorm:"column:hash;size:64" json:"hash"`
	Metadata     datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt    time.Time      `gorm:"column:created_at;index" json:"created_at"`
}

func (Entry) TableName() string { return "points_history" }

func (m *Entry) HashFields() map[string]string {
	return map[string]string{
		"id":            m.ID,
		"user_id":       m.UserID,
		"sequence":      fmt.Sprintf("%d", m.Sequence),
		"amount":        fmt.Sprintf("%d", m.Amount),
		"source":        string(m.Source),
		"reference_id":  m.ReferenceID,
		"description":   m.Description,
		"balance_after": fmt.Sprintf("%d", m.BalanceAfter),
		"created_at":    m.CreatedAt.UTC().Format(time.RFC3339Nano),
		"previous_hash": m.PreviousHash,
	}
}

func (m *Entry) GenerateHash() string {
	fields := m.HashFields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, fields[k]))
	}

	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(hash[:])
}

// Posting is a request to move a user's balance. Positive amounts credit
// points and lifetime points, negative amounts only debit points.
type Posting struct {
	UserID      string
	Amount      int64
	Source      Source
	ReferenceID string
	Description string
	Metadata    map[string]any
}

// Receipt is the outcome of a committed posting.
type Receipt struct {
	Entry                  *Entry `json:"entry"`
	Points                 int64  `json:"points"`
	LifetimePoints         int64  `json:"lifetime_points"`
	PreviousLifetimePoints int64  `json:"-"`
}

func (r *Receipt) LeveledUp() bool {
	if r == nil {
		return false
	}
	return progression.ResolveLevel(r.PreviousLifetimePoints).Level != progression.ResolveLevel(r.LifetimePoints).Level
}

// Balance is the read model served on the points endpoint.
type Balance struct {
	UserID         string               `json:"user_id"`
	Points         int64                `json:"points"`
	LifetimePoints int64                `json:"lifetime_points"`
	StreakDays     int                  `json:"streak_days"`
	Level          progression.Level    `json:"level"`
	Progress       progression.Progress `json:"progress"`
}

type ChainReport struct {
	Valid    bool   `json:"valid"`
	Entries  int    `json:"entries"`
	BrokenAt string `json:"broken_at,omitempty"`
}

// GenerateReference returns "<prefix>:YYYYMMDD-RANDHEX" for postings
// without a natural business key.
func GenerateReference(prefix string, now time.Time) (string, error) {
	r := make([]byte, 4)
	if _, err := rand.Read(r); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%s-%s", prefix, now.UTC().Format("20060102"), strings.ToUpper(hex.EncodeToString(r))), nil
}
