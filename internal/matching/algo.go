package matching

import (
	"github.com/shopspring/decimal"

	"github.com/nastyazhadan/matching-engine/internal/domain/models"
	"github.com/nastyazhadan/matching-engine/internal/orderbook"
)

// priceGate decides whether the opposite ladder's best price still
// crosses the incoming order; nil means no gate (MARKET).
type priceGate func(makerPrice decimal.Decimal) bool

// walk is the traversal and fill logic shared by LIMIT and MARKET: while
// the incoming order has remaining quantity, inspect the top of the
// opposite ladder, and if the gate admits it, consume makers strictly in
// FIFO order at that price before moving to the next price level.
func walk(incoming models.Order, book *orderbook.Book, gate priceGate) Result {
	oppSide := incoming.Side.Opposite()
	var trades []models.Trade
	var makers []models.Order

	for incoming.Remaining().IsPositive() {
		makerPrice, ok := book.Best(oppSide)
		if !ok {
			break
		}
		if gate != nil && !gate(makerPrice) {
			break
		}

		levelDrained := false
		for incoming.Remaining().IsPositive() {
			maker, ok := book.Front(oppSide, makerPrice)
			if !ok {
				levelDrained = true
				break
			}

			fillQty := decimal.Min(incoming.Remaining(), maker.Remaining())

			trades = append(trades, buildTrade(incoming, *maker, makerPrice, fillQty))
			incoming = incoming.Fill(fillQty)
			*maker = maker.Fill(fillQty)

			if maker.IsFilled() {
				filled, _ := book.RemoveHead(oppSide, makerPrice)
				makers = append(makers, filled)
			} else {
				makers = append(makers, *maker)
			}
		}

		if levelDrained {
			continue
		}
	}

	// Normalize the incoming order's terminal status even when no fill
	// occurred: Fill(0) is a no-op on quantity but still resolves status
	// (OPEN for an unmatched LIMIT, REJECTED for an unmatched MARKET).
	incoming = incoming.Fill(decimal.Zero)

	return Result{Order: incoming, Trades: trades, Makers: makers}
}

func buildTrade(incoming, maker models.Order, price, qty decimal.Decimal) models.Trade {
	t := models.Trade{
		Symbol:   incoming.Symbol,
		Price:    price,
		Quantity: qty,
	}
	if incoming.Side == models.SideBuy {
		t.BuyOrderID = incoming.ID
		t.SellOrderID = maker.ID
	} else {
		t.BuyOrderID = maker.ID
		t.SellOrderID = incoming.ID
	}
	return t
}
