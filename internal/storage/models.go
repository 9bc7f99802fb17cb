package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// StablecoinRow is the immutable reference row seeded from configuration.
type StablecoinRow struct {
	ID     string
	Symbol string
	Name   string
}

// Snapshot is one persisted peg observation: a stablecoin's price and signed
// deviation against a base asset at one trade size, for one collection
// bucket. Only measured cells are stored; an unpriceable cell produces no
// row rather than a zero-deviation one.
type Snapshot struct {
	AssetID      string
	Symbol       string
	Name         string
	Bucket       time.Time
	BaseSymbol   string
	SizeLabel    string
	Price        decimal.Decimal
	DeviationBps decimal.Decimal
	Source       string
	CreatedAt    time.Time
}

// AlertRecord captures an emitted peg-break alert for auditing.
type AlertRecord struct {
	ID           int64
	AssetID      string
	SampleTS     time.Time
	DeviationBps decimal.Decimal
	ThresholdBps decimal.Decimal
	Direction    string
	Channels     []string
	CreatedAt    time.Time
}
