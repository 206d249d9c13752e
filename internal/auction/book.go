// Package auction provides the in-process stand-in for the external
// auction subsystem. Lots handed to the book stay in-flight until an
// external settlement process drains them; the book owns only the
// in-flight accounting that treasury pool reads net out.
package auction

import (
	"math/big"

	"github.com/rs/zerolog"

	"SerpLedger/internal/currency"
	"SerpLedger/internal/ledger"
	"SerpLedger/internal/observability"
	"SerpLedger/internal/serpmath"
)

// Book implements treasury.AuctionHandler. It is called only from the
// core event loop and is not safe for concurrent use.
type Book struct {
	reserveInAuction  map[currency.ID]*big.Int
	serplusInAuction  *big.Int
	standardInAuction *big.Int

	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewBook(metrics *observability.Metrics) *Book {
	return &Book{
		reserveInAuction:  make(map[currency.ID]*big.Int),
		serplusInAuction:  serpmath.Zero(),
		standardInAuction: serpmath.Zero(),
		metrics:           metrics,
		logger:            observability.NewLogger("auction"),
	}
}

func (b *Book) NewReserveLot(refundReceiver ledger.AccountID, c currency.ID, amount, target *big.Int) error {
	total, ok := b.reserveInAuction[c]
	if !ok {
		total = serpmath.Zero()
		b.reserveInAuction[c] = total
	}
	total.Add(total, amount)

	if b.metrics != nil {
		b.metrics.AuctionLots.WithLabelValues("reserve").Inc()
	}
	b.logger.Info().
		Str("currency", c.String()).
		Str("amount", amount.String()).
		Str("target", target.String()).
		Str("refund_receiver", refundReceiver.String()).
		Msg("reserve lot opened")
	return nil
}

func (b *Book) NewSerplusAuction(amount *big.Int) error {
	b.serplusInAuction.Add(b.serplusInAuction, amount)
	if b.metrics != nil {
		b.metrics.AuctionLots.WithLabelValues("serplus").Inc()
	}
	b.logger.Info().Str("amount", amount.String()).Msg("serplus auction opened")
	return nil
}

func (b *Book) NewStandardAuction(amount *big.Int) error {
	b.standardInAuction.Add(b.standardInAuction, amount)
	if b.metrics != nil {
		b.metrics.AuctionLots.WithLabelValues("standard").Inc()
	}
	b.logger.Info().Str("amount", amount.String()).Msg("standard auction opened")
	return nil
}

func (b *Book) TotalReserveInAuction(c currency.ID) *big.Int {
	if total, ok := b.reserveInAuction[c]; ok {
		return serpmath.Clone(total)
	}
	return serpmath.Zero()
}

func (b *Book) TotalSerplusInAuction() *big.Int {
	return serpmath.Clone(b.serplusInAuction)
}

func (b *Book) TotalStandardInAuction() *big.Int {
	return serpmath.Clone(b.standardInAuction)
}
