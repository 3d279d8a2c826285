package market

import (
	"math"

	"github.com/shopspring/decimal"
)

// sqrtPrecision 小数位数，与 decimal.DivisionPrecision 默认值一致。
const sqrtPrecision = 16

var half = decimal.NewFromFloat(0.5)

// Sqrt 牛顿迭代求定点平方根。负数与 0 返回 0。
func Sqrt(v decimal.Decimal) decimal.Decimal {
	if !v.IsPositive() {
		return decimal.Zero
	}
	// 用 float64 给出初值，迭代在定点域内收敛
	f, _ := v.Float64()
	x := v
	if g := math.Sqrt(f); g > 0 && !math.IsInf(g, 0) {
		x = decimal.NewFromFloat(g)
	}
	if !x.IsPositive() {
		x = v
	}
	for i := 0; i < 64; i++ {
		next := x.Add(v.DivRound(x, sqrtPrecision+4)).Mul(half).Round(sqrtPrecision + 2)
		if next.Equal(x) {
			break
		}
		x = next
	}
	return x.Round(sqrtPrecision)
}
