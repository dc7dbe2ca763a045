package split

import (
	"github.com/bookbay/bms/internal/errs"
	"github.com/bookbay/bms/internal/model"
)

const bpsDenominator = 10000

// Calculator 分账计算器，纯函数无副作用
type Calculator struct {
	commissionBps int64
}

// NewCalculator 创建分账计算器，佣金率以基点表示（1000 = 10%）
func NewCalculator(commissionBps int64) (*Calculator, error) {
	if commissionBps < 0 || commissionBps > bpsDenominator {
		return nil, errs.Validationf("commission rate out of range: %d bps", commissionBps)
	}
	return &Calculator{commissionBps: commissionBps}, nil
}

// CommissionBps 当前佣金率
func (c *Calculator) CommissionBps() int64 {
	return c.commissionBps
}

// Split 计算分账。佣金只对书价抽取，四舍五入到最小货币单位；
// 卖家所得为书价减去佣金，保证 seller + platform == bookAmount 恒成立。
// 配送费全额透传，不参与抽佣。
func (c *Calculator) Split(bookAmount, deliveryFee int64) (model.PaymentSplit, error) {
	if bookAmount < 0 {
		return model.PaymentSplit{}, errs.Validationf("book amount must not be negative: %d", bookAmount)
	}
	if deliveryFee < 0 {
		return model.PaymentSplit{}, errs.Validationf("delivery fee must not be negative: %d", deliveryFee)
	}

	// 半数进位取整
	platform := (bookAmount*c.commissionBps + bpsDenominator/2) / bpsDenominator

	return model.PaymentSplit{
		SellerAmount:   bookAmount - platform,
		PlatformAmount: platform,
		DeliveryAmount: deliveryFee,
		TotalAmount:    bookAmount + deliveryFee,
	}, nil
}
