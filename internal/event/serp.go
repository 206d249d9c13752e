package event

import (
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"
)

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

// SerpCycleTick drives one elasticity pass over all stable currencies.
// Ticks are produced by the shell on a fixed cadence; the cycle number
// is the dedup key so replays of the same tick are dropped.
type SerpCycleTick struct {
	Cycle     int64
	Sequence  int64
	Timestamp time.Time
}

func (s *SerpCycleTick) IdempotencyKey() string {
	return "cycle:" + itoa(s.Cycle)
}

func (s *SerpCycleTick) EventType() EventType {
	return EventTypeSerpCycleTick
}

func (s *SerpCycleTick) Currency() *string {
	return nil // Global event
}

func (s *SerpCycleTick) SourceSequence() int64 {
	return s.Sequence
}

// LotSizeUpdate changes the expected auction lot size for one reserve
// currency.
type LotSizeUpdate struct {
	RequestID  uuid.UUID
	CurrencyID string
	LotSize    *big.Int
	RequestSeq int64
	Timestamp  time.Time
}

func (l *LotSizeUpdate) IdempotencyKey() string {
	return l.RequestID.String()
}

func (l *LotSizeUpdate) EventType() EventType {
	return EventTypeLotSizeUpdate
}

func (l *LotSizeUpdate) Currency() *string {
	c := l.CurrencyID
	return &c
}

func (l *LotSizeUpdate) SourceSequence() int64 {
	return l.RequestSeq
}

// SerplusDeposit credits surplus handed over by an external module
// account into the treasury surplus pool.
type SerplusDeposit struct {
	RequestID  uuid.UUID
	FromUserID uuid.UUID
	CurrencyID string
	Amount     *big.Int
	RequestSeq int64
	Timestamp  time.Time
}

func (s *SerplusDeposit) IdempotencyKey() string {
	return s.RequestID.String()
}

func (s *SerplusDeposit) EventType() EventType {
	return EventTypeSerplusDeposit
}

func (s *SerplusDeposit) Currency() *string {
	c := s.CurrencyID
	return &c
}

func (s *SerplusDeposit) SourceSequence() int64 {
	return s.RequestSeq
}

// SerplusAuctionRequest starts a surplus auction for part of the pool.
type SerplusAuctionRequest struct {
	RequestID  uuid.UUID
	CurrencyID string
	Amount     *big.Int
	RequestSeq int64
	Timestamp  time.Time
}

func (s *SerplusAuctionRequest) IdempotencyKey() string {
	return s.RequestID.String()
}

func (s *SerplusAuctionRequest) EventType() EventType {
	return EventTypeSerplusAuctionRequest
}

func (s *SerplusAuctionRequest) Currency() *string {
	c := s.CurrencyID
	return &c
}

func (s *SerplusAuctionRequest) SourceSequence() int64 {
	return s.RequestSeq
}

// StandardAuctionRequest starts a standard auction for part of the pool.
type StandardAuctionRequest struct {
	RequestID  uuid.UUID
	Amount     *big.Int
	RequestSeq int64
	Timestamp  time.Time
}

func (s *StandardAuctionRequest) IdempotencyKey() string {
	return s.RequestID.String()
}

func (s *StandardAuctionRequest) EventType() EventType {
	return EventTypeStandardAuctionRequest
}

func (s *StandardAuctionRequest) Currency() *string {
	return nil
}

func (s *StandardAuctionRequest) SourceSequence() int64 {
	return s.RequestSeq
}
