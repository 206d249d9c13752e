package ingestion

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"SerpLedger/internal/event"
)

// ParseRawEvent converts a RawEvent into a typed event.Event. The
// shell validates here so the core only ever sees well-formed events.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	switch eventType {
	case "PositionAdjust":
		return parsePositionAdjust(raw.Data)
	case "PositionUpdate":
		return parsePositionUpdate(raw.Data)
	case "PositionTransfer":
		return parsePositionTransfer(raw.Data)
	case "MarketPriceUpdate":
		return parseMarketPriceUpdate(raw.Data)
	case "PegPriceUpdate":
		return parsePegPriceUpdate(raw.Data)
	case "SerplusDeposit":
		return parseSerplusDeposit(raw.Data)
	case "SerplusAuctionRequest":
		return parseSerplusAuctionRequest(raw.Data)
	case "StandardAuctionRequest":
		return parseStandardAuctionRequest(raw.Data)
	case "LotSizeUpdate":
		return parseLotSizeUpdate(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// --- JSON wire formats ---
// Field names use snake_case to match upstream producers. Amounts are
// base-10 integer strings since they can exceed int64 range.

func parseSigned(s, field string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("parse %s: not an integer: %q", field, s)
	}
	return v, nil
}

func parseUnsigned(s, field string) (*big.Int, error) {
	v, err := parseSigned(s, field)
	if err != nil {
		return nil, err
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("parse %s: negative: %q", field, s)
	}
	return v, nil
}

type positionAdjustJSON struct {
	RequestID     string `json:"request_id"`
	UserID        string `json:"user_id"`
	Currency      string `json:"currency"`
	ReserveDelta  string `json:"reserve_delta"`
	StandardDelta string `json:"standard_delta"`
	RequestSeq    int64  `json:"request_seq"`
	TimestampUs   int64  `json:"timestamp_us"`
}

func parsePositionAdjust(data []byte) (*event.PositionAdjust, error) {
	var j positionAdjustJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PositionAdjust: %w", err)
	}

	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	reserveDelta, err := parseSigned(j.ReserveDelta, "reserve_delta")
	if err != nil {
		return nil, err
	}
	standardDelta, err := parseSigned(j.StandardDelta, "standard_delta")
	if err != nil {
		return nil, err
	}

	return &event.PositionAdjust{
		RequestID:     requestID,
		UserID:        userID,
		CurrencyID:    j.Currency,
		ReserveDelta:  reserveDelta,
		StandardDelta: standardDelta,
		RequestSeq:    j.RequestSeq,
		Timestamp:     time.UnixMicro(j.TimestampUs),
	}, nil
}

func parsePositionUpdate(data []byte) (*event.PositionUpdate, error) {
	var j positionAdjustJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PositionUpdate: %w", err)
	}

	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	reserveDelta, err := parseSigned(j.ReserveDelta, "reserve_delta")
	if err != nil {
		return nil, err
	}
	standardDelta, err := parseSigned(j.StandardDelta, "standard_delta")
	if err != nil {
		return nil, err
	}

	return &event.PositionUpdate{
		RequestID:     requestID,
		UserID:        userID,
		CurrencyID:    j.Currency,
		ReserveDelta:  reserveDelta,
		StandardDelta: standardDelta,
		RequestSeq:    j.RequestSeq,
		Timestamp:     time.UnixMicro(j.TimestampUs),
	}, nil
}

type positionTransferJSON struct {
	RequestID   string `json:"request_id"`
	FromUserID  string `json:"from_user_id"`
	ToUserID    string `json:"to_user_id"`
	Currency    string `json:"currency"`
	RequestSeq  int64  `json:"request_seq"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parsePositionTransfer(data []byte) (*event.PositionTransfer, error) {
	var j positionTransferJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PositionTransfer: %w", err)
	}

	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	fromUserID, err := uuid.Parse(j.FromUserID)
	if err != nil {
		return nil, fmt.Errorf("parse from_user_id: %w", err)
	}
	toUserID, err := uuid.Parse(j.ToUserID)
	if err != nil {
		return nil, fmt.Errorf("parse to_user_id: %w", err)
	}

	return &event.PositionTransfer{
		RequestID:  requestID,
		FromUserID: fromUserID,
		ToUserID:   toUserID,
		CurrencyID: j.Currency,
		RequestSeq: j.RequestSeq,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

type priceUpdateJSON struct {
	Currency         string `json:"currency"`
	Price            string `json:"price"`
	PriceSequence    int64  `json:"price_sequence"`
	PriceTimestampUs int64  `json:"price_timestamp_us"`
}

func parseMarketPriceUpdate(data []byte) (*event.MarketPriceUpdate, error) {
	var j priceUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse MarketPriceUpdate: %w", err)
	}
	price, err := parseUnsigned(j.Price, "price")
	if err != nil {
		return nil, err
	}
	return &event.MarketPriceUpdate{
		CurrencyID:     j.Currency,
		Price:          price,
		PriceSequence:  j.PriceSequence,
		PriceTimestamp: j.PriceTimestampUs,
	}, nil
}

func parsePegPriceUpdate(data []byte) (*event.PegPriceUpdate, error) {
	var j priceUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PegPriceUpdate: %w", err)
	}
	price, err := parseUnsigned(j.Price, "price")
	if err != nil {
		return nil, err
	}
	return &event.PegPriceUpdate{
		CurrencyID:     j.Currency,
		Price:          price,
		PriceSequence:  j.PriceSequence,
		PriceTimestamp: j.PriceTimestampUs,
	}, nil
}

type serplusDepositJSON struct {
	RequestID   string `json:"request_id"`
	FromUserID  string `json:"from_user_id"`
	Currency    string `json:"currency"`
	Amount      string `json:"amount"`
	RequestSeq  int64  `json:"request_seq"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseSerplusDeposit(data []byte) (*event.SerplusDeposit, error) {
	var j serplusDepositJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SerplusDeposit: %w", err)
	}

	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	fromUserID, err := uuid.Parse(j.FromUserID)
	if err != nil {
		return nil, fmt.Errorf("parse from_user_id: %w", err)
	}
	amount, err := parseUnsigned(j.Amount, "amount")
	if err != nil {
		return nil, err
	}

	return &event.SerplusDeposit{
		RequestID:  requestID,
		FromUserID: fromUserID,
		CurrencyID: j.Currency,
		Amount:     amount,
		RequestSeq: j.RequestSeq,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

type auctionRequestJSON struct {
	RequestID   string `json:"request_id"`
	Currency    string `json:"currency"`
	Amount      string `json:"amount"`
	RequestSeq  int64  `json:"request_seq"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseSerplusAuctionRequest(data []byte) (*event.SerplusAuctionRequest, error) {
	var j auctionRequestJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SerplusAuctionRequest: %w", err)
	}

	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	amount, err := parseUnsigned(j.Amount, "amount")
	if err != nil {
		return nil, err
	}

	return &event.SerplusAuctionRequest{
		RequestID:  requestID,
		CurrencyID: j.Currency,
		Amount:     amount,
		RequestSeq: j.RequestSeq,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseStandardAuctionRequest(data []byte) (*event.StandardAuctionRequest, error) {
	var j auctionRequestJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse StandardAuctionRequest: %w", err)
	}

	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	amount, err := parseUnsigned(j.Amount, "amount")
	if err != nil {
		return nil, err
	}

	return &event.StandardAuctionRequest{
		RequestID:  requestID,
		Amount:     amount,
		RequestSeq: j.RequestSeq,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

type lotSizeUpdateJSON struct {
	RequestID   string `json:"request_id"`
	Currency    string `json:"currency"`
	LotSize     string `json:"lot_size"`
	RequestSeq  int64  `json:"request_seq"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseLotSizeUpdate(data []byte) (*event.LotSizeUpdate, error) {
	var j lotSizeUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse LotSizeUpdate: %w", err)
	}

	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	lotSize, err := parseUnsigned(j.LotSize, "lot_size")
	if err != nil {
		return nil, err
	}

	return &event.LotSizeUpdate{
		RequestID:  requestID,
		CurrencyID: j.Currency,
		LotSize:    lotSize,
		RequestSeq: j.RequestSeq,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}
