package booking

import (
	"math/big"
	"strconv"

	"hotel-stays-backend/internal/model"
)

// Price is pricePerNight * nights * (1 + taxRate), rounded half up to the
// cent. The arithmetic is exact; taxRate is read from its shortest decimal
// form so 0.12 means twelve hundredths, not the nearest binary float.
func Price(pricePerNight model.Money, nights int, taxRate float64) model.Money {
	total := new(big.Rat).SetInt64(int64(pricePerNight))
	total.Mul(total, new(big.Rat).SetInt64(int64(nights)))

	tax, ok := new(big.Rat).SetString(strconv.FormatFloat(taxRate, 'f', -1, 64))
	if !ok {
		tax = new(big.Rat)
	}
	total.Mul(total, tax.Add(tax, big.NewRat(1, 1)))
	return model.RoundCents(total)
}
