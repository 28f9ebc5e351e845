package amqp

import (
	"encoding/json"
	"time"

	"recurra/internal/core"
)

// LedgerEntryMessage announces a ledger entry materialized from an annual
// charge or a recurring template. Amount is the exact decimal string.
type LedgerEntryMessage struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Description string    `json:"description"`
	Amount      string    `json:"amount"`
	Type        string    `json:"type"`
	Category    string    `json:"category,omitempty"`
	SubCategory string    `json:"subCategory,omitempty"`
	AccountID   string    `json:"accountId,omitempty"`
	Date        string    `json:"date"`
	SourceKind  string    `json:"sourceKind"`
	SourceID    string    `json:"sourceId"`
	CreatedAt   string    `json:"createdAt,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewLedgerEntryMessage creates a message for a committed entry
func NewLedgerEntryMessage(e core.LedgerEntry) *LedgerEntryMessage {
	return &LedgerEntryMessage{
		ID:          e.ID,
		UserID:      e.UserID,
		Description: e.Description,
		Amount:      e.Amount.String(),
		Type:        e.Type,
		Category:    e.Category,
		SubCategory: e.SubCategory,
		AccountID:   e.AccountID,
		Date:        e.Date.String(),
		SourceKind:  string(e.SourceKind),
		SourceID:    e.SourceID,
		CreatedAt:   e.CreatedAt,
		Timestamp:   time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerEntryMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEntryMessageFromJSON creates a message from JSON bytes
func LedgerEntryMessageFromJSON(data []byte) (*LedgerEntryMessage, error) {
	var msg LedgerEntryMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
