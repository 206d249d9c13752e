package event

import (
	"time"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypePositionAdjust
	EventTypePositionUpdate
	EventTypePositionTransfer
	EventTypeMarketPriceUpdate
	EventTypePegPriceUpdate
	EventTypeSerpCycleTick
	EventTypeLotSizeUpdate
	EventTypeSerplusDeposit
	EventTypeSerplusAuctionRequest
	EventTypeStandardAuctionRequest
)

// EventEnvelope wraps every event in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Currency context (nullable for global events)
	Currency *string

	// Event type discriminator
	EventType EventType

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// Upstream sequence for ordering validation
	SourceSequence int64

	// JSON-encoded event-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all event payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// Currency returns the currency context (nil for global events)
	Currency() *string

	// SourceSequence returns upstream ordering key
	SourceSequence() int64
}

func (et EventType) String() string {
	switch et {
	case EventTypePositionAdjust:
		return "PositionAdjust"
	case EventTypePositionUpdate:
		return "PositionUpdate"
	case EventTypePositionTransfer:
		return "PositionTransfer"
	case EventTypeMarketPriceUpdate:
		return "MarketPriceUpdate"
	case EventTypePegPriceUpdate:
		return "PegPriceUpdate"
	case EventTypeSerpCycleTick:
		return "SerpCycleTick"
	case EventTypeLotSizeUpdate:
		return "LotSizeUpdate"
	case EventTypeSerplusDeposit:
		return "SerplusDeposit"
	case EventTypeSerplusAuctionRequest:
		return "SerplusAuctionRequest"
	case EventTypeStandardAuctionRequest:
		return "StandardAuctionRequest"
	default:
		return "Unknown"
	}
}
