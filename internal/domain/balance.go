package domain

// Balance is the last-known account balance on one venue, expressed in the
// market's quote currency (e.g. CNY) and base asset (e.g. BTS).
type Balance struct {
	Quote float64
	Base  float64
}
