package entities

import (
	"time"

	"github.com/google/uuid"
)

type Label string

const (
	LabelFraud  Label = "Fraud"
	LabelNormal Label = "Normal"
)

// FraudThreshold is the calibrated operating point of the model: scores at or
// above it are fraud.
const FraudThreshold = 0.9968540885963141

type Verdict struct {
	RequestID uuid.UUID
	Label     Label
	Score     float64
}

// ProcessingRequest is a transaction received from the broker.
type ProcessingRequest struct {
	Record    FeatureRecord
	Timestamp time.Time
	RequestID uuid.UUID
	ClientID  string
}
