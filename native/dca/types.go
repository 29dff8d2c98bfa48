package dca

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Status tracks where an order is in its lifecycle.
type Status uint8

const (
	StatusNone Status = iota
	StatusActive
	StatusCanceled
	StatusCompletedWithoutCollect
	StatusCompletedWithoutClaim
	StatusCompleted
)

var statusNames = map[Status]string{
	StatusNone:                    "none",
	StatusActive:                  "active",
	StatusCanceled:                "canceled",
	StatusCompletedWithoutCollect: "completed_without_collect",
	StatusCompletedWithoutClaim:   "completed_without_claim",
	StatusCompleted:               "completed",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// Live reports whether an order with this status sits in the active indices.
func (s Status) Live() bool {
	switch s {
	case StatusActive, StatusCompletedWithoutCollect, StatusCompletedWithoutClaim:
		return true
	default:
		return false
	}
}

// Order is one recurring purchase. Share fields are zero unless the ledger
// runs share accounting.
type Order struct {
	ID                    uint64
	Interval              uint64
	LastTradeTime         uint64
	Status                Status
	DollarInitAmount      *big.Int
	DollarPerTrade        *big.Int
	DollarBalance         *big.Int
	DollarShareInitAmount *big.Int
	DollarShareBalance    *big.Int
	XaumBalance           *big.Int
	XaumPending           *big.Int
	Owner                 common.Address
	Receiver              common.Address
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func (o *Order) normalize() {
	o.DollarInitAmount = cloneBig(o.DollarInitAmount)
	o.DollarPerTrade = cloneBig(o.DollarPerTrade)
	o.DollarBalance = cloneBig(o.DollarBalance)
	o.DollarShareInitAmount = cloneBig(o.DollarShareInitAmount)
	o.DollarShareBalance = cloneBig(o.DollarShareBalance)
	o.XaumBalance = cloneBig(o.XaumBalance)
	o.XaumPending = cloneBig(o.XaumPending)
}

// Clone returns a deep copy of the order.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.normalize()
	return &clone
}

// Settings are the owner-managed parameters that take effect immediately.
type Settings struct {
	Router           common.Address
	LegalAccount     common.Address
	FeeBps           uint64
	MinDollarPrice   *big.Int
	MinDollarAmount  *big.Int
	MinTradeInterval uint64
	MaxTradeInterval uint64
	Paused           bool
	Rebase           bool
}

func (s *Settings) normalize() {
	s.MinDollarPrice = cloneBig(s.MinDollarPrice)
	s.MinDollarAmount = cloneBig(s.MinDollarAmount)
}

// MaxInterval returns the configured upper interval bound, defaulting to
// twelve minimum intervals.
func (s *Settings) MaxInterval() uint64 {
	if s.MaxTradeInterval != 0 {
		return s.MaxTradeInterval
	}
	return s.MinTradeInterval * defaultIntervalSpan
}

// Trade summarises one executed tranche.
type Trade struct {
	OrderID   uint64
	DollarIn  *big.Int
	StableOut *big.Int
	Fee       *big.Int
	XaumOut   *big.Int
	Completed bool
}
