package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	book "quotebot/internal/book/entity"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func entry(price, id string) book.BookEntry {
	return book.BookEntry{Price: d(price), Amount: d("1"), OrderID: id}
}

func band(min, max string) Band {
	return Band{MinPrice: d(min), MaxPrice: d(max), Tick: d("0.01")}
}

func TestDecide(t *testing.T) {
	cases := []struct {
		name    string
		side    book.Side
		own     string
		bids    []book.BookEntry
		asks    []book.BookEntry
		band    Band
		reprice bool
		price   string
	}{
		{
			name: "buy reprice one tick above best competitor",
			side: book.SideBuy, own: "99.50",
			bids:    []book.BookEntry{entry("100.00", "other1"), entry("99.50", "own1")},
			band:    band("95.00", "105.00"),
			reprice: true, price: "100.01",
		},
		{
			name: "buy candidate clamped to max",
			side: book.SideBuy, own: "99.00",
			bids:    []book.BookEntry{entry("104.995", "other1")},
			band:    band("95.00", "105.00"),
			reprice: true, price: "105.00",
		},
		{
			name: "buy already best",
			side: book.SideBuy, own: "100.01",
			bids: []book.BookEntry{entry("100.01", "own1"), entry("100.00", "other1")},
			band: band("95.00", "105.00"),
		},
		{
			name: "buy equal price is not outbid",
			side: book.SideBuy, own: "100.00",
			bids: []book.BookEntry{entry("100.00", "other1"), entry("100.00", "own1")},
			band: band("95.00", "105.00"),
		},
		{
			name: "buy never lowers a price above the competitor",
			side: book.SideBuy, own: "103.00",
			bids: []book.BookEntry{entry("103.00", "own1"), entry("100.00", "other1")},
			band: band("95.00", "105.00"),
		},
		{
			name: "buy skips competitor above band",
			side: book.SideBuy, own: "99.00",
			bids:    []book.BookEntry{entry("106.00", "other1"), entry("100.00", "other2"), entry("99.00", "own1")},
			band:    band("95.00", "105.00"),
			reprice: true, price: "100.01",
		},
		{
			name: "buy competitor at max is matched at max",
			side: book.SideBuy, own: "99.50",
			bids:    []book.BookEntry{entry("105.00", "other1"), entry("100.00", "other2"), entry("99.50", "own1")},
			band:    band("95.00", "105.00"),
			reprice: true, price: "105.00",
		},
		{
			name: "buy sole competitor at max",
			side: book.SideBuy, own: "99.50",
			bids:    []book.BookEntry{entry("105.00", "other1"), entry("99.50", "own1")},
			band:    band("95.00", "105.00"),
			reprice: true, price: "105.00",
		},
		{
			name: "buy own already at max next to competitor at max",
			side: book.SideBuy, own: "105.00",
			bids: []book.BookEntry{entry("105.00", "other1"), entry("105.00", "own1")},
			band: band("95.00", "105.00"),
		},
		{
			name: "buy no competitor inside band",
			side: book.SideBuy, own: "99.00",
			bids: []book.BookEntry{entry("107.00", "other1"), entry("106.00", "other2"), entry("99.00", "own1")},
			band: band("95.00", "105.00"),
		},
		{
			name: "buy skip does not improve current price",
			side: book.SideBuy, own: "100.01",
			bids: []book.BookEntry{entry("106.00", "other1"), entry("100.01", "own1"), entry("100.00", "other2")},
			band: band("95.00", "105.00"),
		},
		{
			name: "buy no competitors",
			side: book.SideBuy, own: "99.00",
			bids: []book.BookEntry{entry("99.00", "own1")},
			band: band("95.00", "105.00"),
		},
		{
			name: "sell reprice one tick below best competitor",
			side: book.SideSell, own: "102.00",
			asks:    []book.BookEntry{entry("101.00", "other1"), entry("102.00", "own1")},
			band:    band("95.00", "105.00"),
			reprice: true, price: "100.99",
		},
		{
			name: "sell candidate clamped to min",
			side: book.SideSell, own: "102.00",
			asks:    []book.BookEntry{entry("95.005", "other1")},
			band:    band("95.00", "105.00"),
			reprice: true, price: "95.00",
		},
		{
			name: "sell skips competitor below band",
			side: book.SideSell, own: "103.00",
			asks:    []book.BookEntry{entry("94.00", "other1"), entry("101.00", "other2")},
			band:    band("95.00", "105.00"),
			reprice: true, price: "100.99",
		},
		{
			name: "sell competitor at min is matched at min",
			side: book.SideSell, own: "102.00",
			asks:    []book.BookEntry{entry("95.00", "other1"), entry("101.00", "other2"), entry("102.00", "own1")},
			band:    band("95.00", "105.00"),
			reprice: true, price: "95.00",
		},
		{
			name: "sell sole competitor at min",
			side: book.SideSell, own: "102.00",
			asks:    []book.BookEntry{entry("95.00", "other1")},
			band:    band("95.00", "105.00"),
			reprice: true, price: "95.00",
		},
		{
			name: "sell already best",
			side: book.SideSell, own: "100.99",
			asks: []book.BookEntry{entry("100.99", "own1"), entry("101.00", "other1")},
			band: band("95.00", "105.00"),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Decide(PricingInput{
				Side:       tc.side,
				OwnOrderID: "own1",
				OwnPrice:   d(tc.own),
				Book:       book.TopOfBook{TradingPair: "btceur", Bids: tc.bids, Asks: tc.asks},
				Band:       tc.band,
			})
			assert.Equal(t, tc.reprice, got.Reprice, got.Reason)
			if tc.reprice {
				assert.True(t, got.Price.Equal(d(tc.price)), "got %s want %s", got.Price, tc.price)
			}
		})
	}
}

func TestDecideReasonNamesTargetedCompetitor(t *testing.T) {
	got := Decide(PricingInput{
		Side:       book.SideBuy,
		OwnOrderID: "own1",
		OwnPrice:   d("99.00"),
		Book: book.TopOfBook{Bids: []book.BookEntry{
			entry("106.00", "other1"), entry("100.00", "other2"), entry("99.00", "own1"),
		}},
		Band: band("95.00", "105.00"),
	})
	assert.True(t, got.Reprice)
	assert.Equal(t, "outbid 100", got.Reason)
}

func TestDecideRespectsBand(t *testing.T) {
	b := band("95.00", "105.00")
	step := d("0.37")
	for _, side := range []book.Side{book.SideBuy, book.SideSell} {
		own := d("80")
		if side == book.SideSell {
			own = d("120")
		}
		for p := d("85"); p.LessThan(d("115")); p = p.Add(step) {
			top := book.TopOfBook{
				Bids: []book.BookEntry{{Price: p.Add(d("3")), OrderID: "x"}, {Price: p, OrderID: "y"}},
				Asks: []book.BookEntry{{Price: p, OrderID: "y"}, {Price: p.Add(d("3")), OrderID: "x"}},
			}
			got := Decide(PricingInput{Side: side, OwnOrderID: "own1", OwnPrice: own, Book: top, Band: b})
			if got.Reprice {
				assert.True(t, got.Price.GreaterThanOrEqual(b.MinPrice), "%s %s below band", side, got.Price)
				assert.True(t, got.Price.LessThanOrEqual(b.MaxPrice), "%s %s above band", side, got.Price)
			}

			initial, _ := InitialPrice(side, top, b)
			assert.True(t, initial.GreaterThanOrEqual(b.MinPrice))
			assert.True(t, initial.LessThanOrEqual(b.MaxPrice))
		}
	}
}

func TestInitialPrice(t *testing.T) {
	b := band("95.00", "105.00")

	p, _ := InitialPrice(book.SideBuy, book.TopOfBook{}, b)
	assert.True(t, p.Equal(d("95.00")))

	p, reason := InitialPrice(book.SideSell, book.TopOfBook{}, b)
	assert.True(t, p.Equal(d("95.00")), "empty book falls back to min_price for sells too")
	assert.Equal(t, "fallback to min_price", reason)

	p, _ = InitialPrice(book.SideBuy, book.TopOfBook{Bids: []book.BookEntry{entry("105.00", "x")}}, b)
	assert.True(t, p.Equal(d("105.00")))

	p, _ = InitialPrice(book.SideSell, book.TopOfBook{Asks: []book.BookEntry{entry("95.00", "x")}}, b)
	assert.True(t, p.Equal(d("95.00")))

	p, _ = InitialPrice(book.SideBuy, book.TopOfBook{Bids: []book.BookEntry{entry("100.00", "x")}}, b)
	assert.True(t, p.Equal(d("100.01")))

	p, _ = InitialPrice(book.SideSell, book.TopOfBook{Asks: []book.BookEntry{entry("101.00", "x")}}, b)
	assert.True(t, p.Equal(d("100.99")))

	p, _ = InitialPrice(book.SideBuy, book.TopOfBook{Bids: []book.BookEntry{entry("110.00", "x")}}, b)
	assert.True(t, p.Equal(d("95.00")), "all competitors above band fall back to min_price")
}
