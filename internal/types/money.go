// README: Common money value object used across modules.
package types

// Money carries an amount in the currency's smallest unit (agorot for ILS).
type Money struct {
	Amount   int64
	Currency string
}

func ILS(agorot int64) Money {
	return Money{Amount: agorot, Currency: "ILS"}
}
