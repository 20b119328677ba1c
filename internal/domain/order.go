package domain

import "github.com/shopspring/decimal"

// OrderType is the broker order type.
type OrderType string

const (
	OrderTypeStop         OrderType = "STOP"
	OrderTypeStopLimit    OrderType = "STOP_LIMIT"
	OrderTypeTrailingStop OrderType = "TRAILING_STOP"
)

// IsStop reports whether t belongs to the stop family.
func (t OrderType) IsStop() bool {
	switch t {
	case OrderTypeStop, OrderTypeStopLimit, OrderTypeTrailingStop:
		return true
	default:
		return false
	}
}

// OrderStatus is the broker order status.
type OrderStatus string

const (
	OrderStatusWorking               OrderStatus = "WORKING"
	OrderStatusAwaitingStopCondition OrderStatus = "AWAITING_STOP_CONDITION"
	OrderStatusQueued                OrderStatus = "QUEUED"
	OrderStatusPendingActivation     OrderStatus = "PENDING_ACTIVATION"
)

// TrackedOrderStatuses are the statuses queried and retained as "likely
// active". A stop outside regular hours can sit in any of them.
var TrackedOrderStatuses = []OrderStatus{
	OrderStatusWorking,
	OrderStatusAwaitingStopCondition,
	OrderStatusQueued,
	OrderStatusPendingActivation,
}

// IsTracked reports whether s is one of TrackedOrderStatuses.
func (s OrderStatus) IsTracked() bool {
	for _, t := range TrackedOrderStatuses {
		if s == t {
			return true
		}
	}
	return false
}

// Instruction is the leg side of an order.
type Instruction string

const (
	InstructionBuy  Instruction = "BUY"
	InstructionSell Instruction = "SELL"
)

// RawOrder is a broker-reported order reduced to its relevant leg.
type RawOrder struct {
	OrderID     string
	Type        OrderType
	Status      OrderStatus
	StopPrice   *decimal.Decimal
	Instruction Instruction
	Symbol      string
}
