package ingestion_test

import (
	"encoding/json"
	"testing"
	"time"

	"SerpLedger/internal/event"
	"SerpLedger/internal/ingestion"
)

func rawFromJSON(t *testing.T, v any) ingestion.RawEvent {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawEvent{
		Subject:   "test",
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}
}

func TestParsePositionAdjust(t *testing.T) {
	payload := map[string]any{
		"request_id":     "550e8400-e29b-41d4-a716-446655440000",
		"user_id":        "660e8400-e29b-41d4-a716-446655440001",
		"currency":       "SETEUR",
		"reserve_delta":  "500000000000",
		"standard_delta": "-250",
		"request_seq":    int64(42),
		"timestamp_us":   int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "PositionAdjust")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	pa, ok := evt.(*event.PositionAdjust)
	if !ok {
		t.Fatalf("expected *event.PositionAdjust, got %T", evt)
	}

	if pa.CurrencyID != "SETEUR" {
		t.Errorf("currency: got %s, want SETEUR", pa.CurrencyID)
	}
	if pa.ReserveDelta.String() != "500000000000" {
		t.Errorf("reserve delta: got %s, want 500000000000", pa.ReserveDelta)
	}
	if pa.StandardDelta.String() != "-250" {
		t.Errorf("standard delta: got %s, want -250", pa.StandardDelta)
	}
	if pa.RequestSeq != 42 {
		t.Errorf("request seq: got %d, want 42", pa.RequestSeq)
	}
	if pa.Timestamp.UnixMicro() != 1700000000000000 {
		t.Errorf("timestamp: got %d, want 1700000000000000", pa.Timestamp.UnixMicro())
	}
}

func TestParsePositionAdjust_MalformedDelta(t *testing.T) {
	payload := map[string]any{
		"request_id":     "550e8400-e29b-41d4-a716-446655440000",
		"user_id":        "660e8400-e29b-41d4-a716-446655440001",
		"currency":       "SETEUR",
		"reserve_delta":  "not-a-number",
		"standard_delta": "0",
		"request_seq":    int64(1),
		"timestamp_us":   int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	if _, err := ingestion.ParseRawEvent(raw, "PositionAdjust"); err == nil {
		t.Fatal("expected error for malformed reserve_delta")
	}
}

func TestParseMarketPriceUpdate(t *testing.T) {
	payload := map[string]any{
		"currency":           "SETEUR",
		"price":              "1050000000000000000",
		"price_sequence":     int64(7),
		"price_timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "MarketPriceUpdate")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	mp, ok := evt.(*event.MarketPriceUpdate)
	if !ok {
		t.Fatalf("expected *event.MarketPriceUpdate, got %T", evt)
	}
	if mp.Price.String() != "1050000000000000000" {
		t.Errorf("price: got %s, want 1050000000000000000", mp.Price)
	}
	if mp.PriceSequence != 7 {
		t.Errorf("price sequence: got %d, want 7", mp.PriceSequence)
	}
}

func TestParseMarketPriceUpdate_NegativePriceRejected(t *testing.T) {
	payload := map[string]any{
		"currency":           "SETEUR",
		"price":              "-1",
		"price_sequence":     int64(1),
		"price_timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	if _, err := ingestion.ParseRawEvent(raw, "MarketPriceUpdate"); err == nil {
		t.Fatal("expected error for negative price")
	}
}

func TestParseSerplusDeposit(t *testing.T) {
	payload := map[string]any{
		"request_id":   "550e8400-e29b-41d4-a716-446655440000",
		"from_user_id": "660e8400-e29b-41d4-a716-446655440001",
		"currency":     "SETR",
		"amount":       "340282366920938463463374607431768211455",
		"request_seq":  int64(3),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "SerplusDeposit")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	sd, ok := evt.(*event.SerplusDeposit)
	if !ok {
		t.Fatalf("expected *event.SerplusDeposit, got %T", evt)
	}
	if sd.Amount.String() != "340282366920938463463374607431768211455" {
		t.Errorf("amount lost precision: got %s", sd.Amount)
	}
}

func TestParsePositionTransfer(t *testing.T) {
	payload := map[string]any{
		"request_id":   "550e8400-e29b-41d4-a716-446655440000",
		"from_user_id": "660e8400-e29b-41d4-a716-446655440001",
		"to_user_id":   "770e8400-e29b-41d4-a716-446655440002",
		"currency":     "SETUSD",
		"request_seq":  int64(12),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "PositionTransfer")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	pt, ok := evt.(*event.PositionTransfer)
	if !ok {
		t.Fatalf("expected *event.PositionTransfer, got %T", evt)
	}
	if pt.FromUserID == pt.ToUserID {
		t.Error("from and to should differ")
	}
	if pt.CurrencyID != "SETUSD" {
		t.Errorf("currency: got %s, want SETUSD", pt.CurrencyID)
	}
}

func TestParseLotSizeUpdate(t *testing.T) {
	payload := map[string]any{
		"request_id":   "550e8400-e29b-41d4-a716-446655440000",
		"currency":     "DNAR",
		"lot_size":     "1000000",
		"request_seq":  int64(5),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "LotSizeUpdate")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	ls, ok := evt.(*event.LotSizeUpdate)
	if !ok {
		t.Fatalf("expected *event.LotSizeUpdate, got %T", evt)
	}
	if ls.LotSize.String() != "1000000" {
		t.Errorf("lot size: got %s, want 1000000", ls.LotSize)
	}
}

func TestParseUnknownEventType(t *testing.T) {
	raw := rawFromJSON(t, map[string]any{})
	if _, err := ingestion.ParseRawEvent(raw, "Nonsense"); err == nil {
		t.Fatal("expected error for unknown event type")
	}
}
