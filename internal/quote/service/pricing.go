package service

import (
	"github.com/shopspring/decimal"

	book "quotebot/internal/book/entity"
)

// Band ценовой коридор и шаг цены
type Band struct {
	MinPrice decimal.Decimal
	MaxPrice decimal.Decimal
	Tick     decimal.Decimal
}

func (b Band) contains(p decimal.Decimal) bool {
	return p.GreaterThanOrEqual(b.MinPrice) && p.LessThanOrEqual(b.MaxPrice)
}

func (b Band) clamp(p decimal.Decimal) decimal.Decimal {
	if p.GreaterThan(b.MaxPrice) {
		return b.MaxPrice
	}
	if p.LessThan(b.MinPrice) {
		return b.MinPrice
	}
	return p
}

// PricingInput данные для решения о перестановке
type PricingInput struct {
	Side       book.Side
	OwnOrderID string
	OwnPrice   decimal.Decimal
	Book       book.TopOfBook
	Band       Band
}

// Decision результат Decide. Price имеет смысл только при Reprice.
type Decision struct {
	Reprice bool
	Price   decimal.Decimal
	Reason  string
}

func hold(reason string) Decision {
	return Decision{Reason: reason}
}

// Decide решает, нужно ли переставить собственную заявку, чтобы стоять первой в коридоре.
// Предложенная цена всегда лежит в [MinPrice, MaxPrice] и строго лучше текущей.
func Decide(in PricingInput) Decision {
	competitors := in.Book.Exclude(in.OwnOrderID).Side(in.Side)
	if len(competitors) == 0 {
		return hold("no competing orders")
	}

	best := competitors[0].Price
	if !improves(in.Side, best, in.OwnPrice) {
		return hold("already best")
	}

	candidate, target, ok := outbid(in.Side, competitors, in.Band)
	if !ok {
		return hold("no valid price inside band")
	}
	if !improves(in.Side, candidate, in.OwnPrice) {
		return hold("candidate does not improve current price")
	}
	return Decision{Reprice: true, Price: candidate, Reason: "outbid " + target.String()}
}

// InitialPrice цена первой заявки. Пустой стакан или отсутствие цены в коридоре: min_price.
func InitialPrice(side book.Side, top book.TopOfBook, band Band) (decimal.Decimal, string) {
	if candidate, _, ok := outbid(side, top.Side(side), band); ok {
		return candidate, "outbid best competitor"
	}
	return band.MinPrice, "fallback to min_price"
}

// outbid берет первого конкурента внутри коридора и возвращает цену на тик лучше него,
// прижатую к границе коридора. Конкуренты строго за пределами коридора пропускаются.
// Второе значение: цена выбранного конкурента.
func outbid(side book.Side, competitors []book.BookEntry, band Band) (decimal.Decimal, decimal.Decimal, bool) {
	for _, c := range competitors {
		var candidate decimal.Decimal
		if side == book.SideSell {
			if c.Price.LessThan(band.MinPrice) {
				continue
			}
			candidate = band.clamp(c.Price.Sub(band.Tick))
		} else {
			if c.Price.GreaterThan(band.MaxPrice) {
				continue
			}
			candidate = band.clamp(c.Price.Add(band.Tick))
		}
		if band.contains(candidate) {
			return candidate, c.Price, true
		}
	}
	return decimal.Decimal{}, decimal.Decimal{}, false
}

// improves: a строго лучше b для стороны side
func improves(side book.Side, a, b decimal.Decimal) bool {
	if side == book.SideSell {
		return a.LessThan(b)
	}
	return a.GreaterThan(b)
}
