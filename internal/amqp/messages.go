package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

var errMissingImportID = errors.New("message has no import id")

// ImportScanMessage asks a worker to scan an uploaded statement.
// It carries ids only, the worker loads the file from storage.
type ImportScanMessage struct {
	ImportID    string    `json:"import_id"`
	HouseholdID string    `json:"household_id"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewImportScanMessage(importID, householdID string) *ImportScanMessage {
	return &ImportScanMessage{
		ImportID:    importID,
		HouseholdID: householdID,
		Timestamp:   time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ImportScanMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ImportScanMessageFromJSON decodes a message and rejects ones without an import id.
func ImportScanMessageFromJSON(data []byte) (*ImportScanMessage, error) {
	var msg ImportScanMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ImportID == "" {
		return nil, errMissingImportID
	}
	return &msg, nil
}
