package payout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bookbay/bms/internal/errs"
	"github.com/bookbay/bms/internal/gateway"
	"github.com/bookbay/bms/internal/logger"
	"github.com/bookbay/bms/internal/model"
	"github.com/bookbay/bms/internal/notifier"
	"github.com/bookbay/bms/internal/split"
	"github.com/google/uuid"
)

// PayoutStore 流程需要的打款存储能力
type PayoutStore interface {
	Create(ctx context.Context, payout *model.PayoutModel) error
	Get(ctx context.Context, id string) (*model.PayoutModel, error)
	Transition(ctx context.Context, id string, from, to model.ReviewStatus, extra map[string]interface{}) error
	Flag(ctx context.Context, id, reason string) error
}

// OrderStore 流程需要的订单存储能力
type OrderStore interface {
	Get(ctx context.Context, id string) (*model.OrderModel, error)
	Transition(ctx context.Context, id string, field model.StatusField, from, to string, extra map[string]interface{}) error
}

// SellerStore 卖家收款信息
type SellerStore interface {
	Get(ctx context.Context, id string) (*model.SellerModel, error)
	SetRecipientCode(ctx context.Context, id, code string) error
}

// Gateway 支付网关的收款人与转账能力
type Gateway interface {
	CreateTransferRecipient(ctx context.Context, req gateway.RecipientRequest) (string, error)
	InitiateTransfer(ctx context.Context, recipientCode string, amount int64, reference string) (string, error)
}

// Workflow 打款流程：送达后建待审记录，管理员批准后发起转账。
// 金额在创建时快照，之后的佣金配置变更不影响已有记录
type Workflow struct {
	payouts  PayoutStore
	orders   OrderStore
	sellers  SellerStore
	gateway  Gateway
	notifier notifier.Notifier
	calc     *split.Calculator
	currency string
	now      func() time.Time
}

// NewWorkflow 创建打款流程
func NewWorkflow(payouts PayoutStore, orders OrderStore, sellers SellerStore, gw Gateway, n notifier.Notifier, calc *split.Calculator, currency string) *Workflow {
	return &Workflow{
		payouts:  payouts,
		orders:   orders,
		sellers:  sellers,
		gateway:  gw,
		notifier: n,
		calc:     calc,
		currency: currency,
		now:      time.Now,
	}
}

// CreateForOrder 订单送达后创建待审打款。
// 同一订单已有非denied记录时返回ErrAlreadyExists，重复送达事件安全
func (w *Workflow) CreateForOrder(ctx context.Context, orderId string) (*model.PayoutModel, error) {
	order, err := w.orders.Get(ctx, orderId)
	if err != nil {
		return nil, err
	}
	if order.DeliveryStatus != model.DeliveryStatusDelivered {
		return nil, fmt.Errorf("order %s delivery is %s: %w", orderId, order.DeliveryStatus, errs.ErrInvalidTransition)
	}

	s, err := w.calc.Split(order.BookAmount, order.DeliveryFee)
	if err != nil {
		return nil, err
	}

	payout := &model.PayoutModel{
		Id:                uuid.NewString(),
		OrderId:           order.Id,
		SellerId:          order.SellerId,
		GrossAmount:       order.BookAmount,
		PlatformFee:       s.PlatformAmount,
		SellerAmount:      s.SellerAmount,
		DeliveryAmount:    s.DeliveryAmount,
		CommissionBps:     w.calc.CommissionBps(),
		Status:            model.ReviewStatusPending,
		TransferReference: uuid.NewString(), // 幂等引用在创建时固定，重试转账不换引用
	}

	if err := w.payouts.Create(ctx, payout); err != nil {
		return nil, err
	}

	if err := w.orders.Transition(ctx, orderId,
		model.FieldPayout,
		string(model.PayoutStatusNone), string(model.PayoutStatusPending),
		nil); err != nil {
		logger.Warn("Failed to mirror payout status on order %s: %v", orderId, err)
	}

	logger.Info("Created pending payout %s for order %s: seller=%d platform=%d",
		payout.Id, orderId, payout.SellerAmount, payout.PlatformFee)
	return payout, nil
}

// Approve 管理员批准打款。先确保网关收款人存在，再转approved，再发起转账。
// 任何网关失败都不会把记录推进到completed，留在approved并标记待重试。
// 对approved但转账未确认的记录再次调用即为重试，幂等引用不变
func (w *Workflow) Approve(ctx context.Context, payoutId, reviewerId, notes string) (*model.PayoutModel, error) {
	payout, err := w.payouts.Get(ctx, payoutId)
	if err != nil {
		return nil, err
	}

	switch payout.Status {
	case model.ReviewStatusPending, model.ReviewStatusApproved:
	default:
		return nil, fmt.Errorf("payout %s is %s: %w", payoutId, payout.Status, errs.ErrAlreadyResolved)
	}

	recipientCode, err := w.ensureRecipient(ctx, payout.SellerId)
	if err != nil {
		return nil, err
	}

	if payout.Status == model.ReviewStatusPending {
		now := w.now()
		err = w.payouts.Transition(ctx, payoutId,
			model.ReviewStatusPending, model.ReviewStatusApproved,
			map[string]interface{}{
				"reviewer_id":  reviewerId,
				"review_notes": notes,
				"reviewed_at":  &now,
			})
		if err != nil {
			if errors.Is(err, errs.ErrInvalidTransition) {
				return nil, fmt.Errorf("payout %s: %w", payoutId, errs.ErrAlreadyResolved)
			}
			return nil, err
		}

		if err := w.orders.Transition(ctx, payout.OrderId,
			model.FieldPayout,
			string(model.PayoutStatusPending), string(model.PayoutStatusApproved),
			nil); err != nil {
			logger.Warn("Failed to mirror approval on order %s: %v", payout.OrderId, err)
		}
	}

	// 转账金额只含卖家所得，配送费与佣金不经此路径
	transferId, err := w.gateway.InitiateTransfer(ctx, recipientCode, payout.SellerAmount, payout.TransferReference)
	if err != nil {
		logger.Error("Transfer failed for payout %s: %v", payoutId, err)
		if flagErr := w.payouts.Flag(ctx, payoutId, fmt.Sprintf("transfer failed: %v", err)); flagErr != nil {
			logger.Error("Failed to flag payout %s: %v", payoutId, flagErr)
		}
		return nil, err
	}

	err = w.payouts.Transition(ctx, payoutId,
		model.ReviewStatusApproved, model.ReviewStatusCompleted,
		map[string]interface{}{"transfer_id": transferId})
	if err != nil {
		return nil, err
	}

	if err := w.orders.Transition(ctx, payout.OrderId,
		model.FieldPayout,
		string(model.PayoutStatusApproved), string(model.PayoutStatusCompleted),
		nil); err != nil {
		logger.Warn("Failed to mirror completion on order %s: %v", payout.OrderId, err)
	}

	if seller, sellerErr := w.sellers.Get(ctx, payout.SellerId); sellerErr == nil {
		w.notifier.Notify(ctx, seller.Email, notifier.EventPayoutApproved, map[string]string{
			"payout_id": payoutId,
			"amount":    fmt.Sprintf("%d", payout.SellerAmount),
		})
	}

	logger.Info("Payout %s approved by %s, transfer %s issued", payoutId, reviewerId, transferId)
	return w.payouts.Get(ctx, payoutId)
}

// Deny 管理员拒绝打款，原因必填。通知失败不回滚拒绝
func (w *Workflow) Deny(ctx context.Context, payoutId, reviewerId, reason string) (*model.PayoutModel, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, errs.Validationf("denial reason is required")
	}

	payout, err := w.payouts.Get(ctx, payoutId)
	if err != nil {
		return nil, err
	}
	if payout.Status != model.ReviewStatusPending {
		return nil, fmt.Errorf("payout %s is %s: %w", payoutId, payout.Status, errs.ErrAlreadyResolved)
	}

	now := w.now()
	err = w.payouts.Transition(ctx, payoutId,
		model.ReviewStatusPending, model.ReviewStatusDenied,
		map[string]interface{}{
			"reviewer_id":   reviewerId,
			"denial_reason": reason,
			"reviewed_at":   &now,
		})
	if err != nil {
		if errors.Is(err, errs.ErrInvalidTransition) {
			return nil, fmt.Errorf("payout %s: %w", payoutId, errs.ErrAlreadyResolved)
		}
		return nil, err
	}

	if err := w.orders.Transition(ctx, payout.OrderId,
		model.FieldPayout,
		string(model.PayoutStatusPending), string(model.PayoutStatusDenied),
		nil); err != nil {
		logger.Warn("Failed to mirror denial on order %s: %v", payout.OrderId, err)
	}

	if seller, sellerErr := w.sellers.Get(ctx, payout.SellerId); sellerErr == nil {
		w.notifier.Notify(ctx, seller.Email, notifier.EventPayoutDenied, map[string]string{
			"payout_id": payoutId,
			"reason":    reason,
		})
	}

	logger.Info("Payout %s denied by %s: %s", payoutId, reviewerId, reason)
	return w.payouts.Get(ctx, payoutId)
}

// ensureRecipient 确保卖家在网关注册了收款人，已注册直接复用编码
func (w *Workflow) ensureRecipient(ctx context.Context, sellerId string) (string, error) {
	seller, err := w.sellers.Get(ctx, sellerId)
	if err != nil {
		return "", err
	}
	if seller.RecipientCode != "" {
		return seller.RecipientCode, nil
	}

	code, err := w.gateway.CreateTransferRecipient(ctx, gateway.RecipientRequest{
		Name:          seller.Name,
		AccountNumber: seller.AccountNumber,
		BankCode:      seller.BankCode,
		Currency:      w.currency,
	})
	if err != nil {
		return "", err
	}

	if err := w.sellers.SetRecipientCode(ctx, sellerId, code); err != nil {
		// 编码已在网关生成，回填失败只影响下次的缓存命中
		logger.Warn("Failed to store recipient code for seller %s: %v", sellerId, err)
	}

	return code, nil
}
