package event

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// PositionAdjust moves reserve and standard balances alongside the
// recorded position deltas. Idempotency key: request_id (UUID from the
// upstream settmint gateway).
type PositionAdjust struct {
	RequestID      uuid.UUID // Idempotency key
	UserID         uuid.UUID
	CurrencyID     string
	ReserveDelta   *big.Int // Signed
	StandardDelta  *big.Int // Signed
	RequestSeq     int64    // Source sequence from the gateway
	Timestamp      time.Time
}

func (p *PositionAdjust) IdempotencyKey() string {
	return p.RequestID.String()
}

func (p *PositionAdjust) EventType() EventType {
	return EventTypePositionAdjust
}

func (p *PositionAdjust) Currency() *string {
	c := p.CurrencyID
	return &c
}

func (p *PositionAdjust) SourceSequence() int64 {
	return p.RequestSeq
}

// PositionUpdate records deltas without moving funds. Used by settlement
// paths that have already moved the underlying balances.
type PositionUpdate struct {
	RequestID     uuid.UUID
	UserID        uuid.UUID
	CurrencyID    string
	ReserveDelta  *big.Int
	StandardDelta *big.Int
	RequestSeq    int64
	Timestamp     time.Time
}

func (p *PositionUpdate) IdempotencyKey() string {
	return p.RequestID.String()
}

func (p *PositionUpdate) EventType() EventType {
	return EventTypePositionUpdate
}

func (p *PositionUpdate) Currency() *string {
	c := p.CurrencyID
	return &c
}

func (p *PositionUpdate) SourceSequence() int64 {
	return p.RequestSeq
}

// PositionTransfer merges the source account's whole position into the
// destination account's position for one currency.
type PositionTransfer struct {
	RequestID  uuid.UUID
	FromUserID uuid.UUID
	ToUserID   uuid.UUID
	CurrencyID string
	RequestSeq int64
	Timestamp  time.Time
}

func (p *PositionTransfer) IdempotencyKey() string {
	return p.RequestID.String()
}

func (p *PositionTransfer) EventType() EventType {
	return EventTypePositionTransfer
}

func (p *PositionTransfer) Currency() *string {
	c := p.CurrencyID
	return &c
}

func (p *PositionTransfer) SourceSequence() int64 {
	return p.RequestSeq
}
