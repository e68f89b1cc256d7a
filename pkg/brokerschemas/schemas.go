// Package brokerschemas holds the JSON messages exchanged over Kafka.
package brokerschemas

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TransactionMessage is consumed from the transactions topic. Features carries
// the same object a client would POST to /predict.
type TransactionMessage struct {
	RequestID uuid.UUID                  `json:"request_id"`
	ClientID  string                     `json:"client_id"`
	Timestamp time.Time                  `json:"timestamp"`
	Features  map[string]json.RawMessage `json:"features"`
}

// FraudAlertMessage is published for every transaction labelled Fraud.
type FraudAlertMessage struct {
	RequestID uuid.UUID          `json:"request_id"`
	ClientID  string             `json:"client_id,omitempty"`
	Label     string             `json:"label"`
	Score     float64            `json:"score"`
	Threshold float64            `json:"threshold"`
	Features  map[string]float64 `json:"features"`
	Timestamp time.Time          `json:"timestamp"`
}
