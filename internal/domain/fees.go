package domain

import "github.com/shopspring/decimal"

// SplitFee applies the fee to one side of a transfer: the sender's total
// debit and the receiver's credit. With the sender paying, the receiver gets
// the full amount; with the receiver paying, the fee comes out of the credit.
func SplitFee(amount, fee decimal.Decimal, feePayer string) (total, received decimal.Decimal) {
	total = amount
	received = amount
	if feePayer == FeePayerSender {
		total = total.Add(fee)
	} else {
		received = received.Sub(fee)
	}
	return total, received
}
