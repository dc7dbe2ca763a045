package commitment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bookbay/bms/internal/errs"
	"github.com/bookbay/bms/internal/logger"
	"github.com/bookbay/bms/internal/model"
	"github.com/bookbay/bms/internal/notifier"
)

// OrderStore 引擎需要的订单存储能力
type OrderStore interface {
	Get(ctx context.Context, id string) (*model.OrderModel, error)
	Transition(ctx context.Context, id string, field model.StatusField, from, to string, extra map[string]interface{}) error
	Flag(ctx context.Context, id, reason string) error
}

// ListingStore 引擎需要的挂牌存储能力
type ListingStore interface {
	MarkSold(ctx context.Context, id string) error
	Release(ctx context.Context, id string) error
}

// Refunder 支付网关的退款能力
type Refunder interface {
	Refund(ctx context.Context, reference string) error
}

// Engine 卖家承诺状态机。期限是订单的属性而非运行中的定时器，
// 所有判断都从存储的时间戳推导，进程重启不丢转换
type Engine struct {
	orders           OrderStore
	listings         ListingStore
	gateway          Refunder
	notifier         notifier.Notifier
	collectionWindow time.Duration
	now              func() time.Time
}

// NewEngine 创建承诺引擎
func NewEngine(orders OrderStore, listings ListingStore, gw Refunder, n notifier.Notifier, collectionWindow time.Duration) *Engine {
	return &Engine{
		orders:           orders,
		listings:         listings,
		gateway:          gw,
		notifier:         n,
		collectionWindow: collectionWindow,
		now:              time.Now,
	}
}

// Commit 卖家确认销售。仅在pending且未过期时成功，
// 同一条UPDATE内写入取书期限
func (e *Engine) Commit(ctx context.Context, orderId, sellerId string) (*model.OrderModel, error) {
	order, err := e.orders.Get(ctx, orderId)
	if err != nil {
		return nil, err
	}

	if err := e.checkActionable(order, sellerId); err != nil {
		return nil, err
	}

	collectionDeadline := e.now().Add(e.collectionWindow)
	err = e.orders.Transition(ctx, orderId,
		model.FieldCommitment,
		string(model.CommitmentStatusPending), string(model.CommitmentStatusCommitted),
		map[string]interface{}{"collection_deadline": &collectionDeadline})
	if err != nil {
		return nil, e.resolveRace(ctx, orderId, err)
	}

	// 挂牌transition失败不回滚承诺，记录后人工处理
	if err := e.listings.MarkSold(ctx, order.ListingId); err != nil {
		logger.Warn("Failed to mark listing %s sold for order %s: %v", order.ListingId, orderId, err)
	}

	e.notifier.Notify(ctx, order.BuyerEmail, notifier.EventOrderCommitted, map[string]string{
		"order_id": orderId,
		"book":     order.BookTitle,
	})

	logger.Info("Seller %s committed to order %s", sellerId, orderId)
	return e.orders.Get(ctx, orderId)
}

// Decline 卖家拒绝销售。状态先行转换，退款跟随；
// 退款失败不撤销拒绝，标记订单等待人工处理
func (e *Engine) Decline(ctx context.Context, orderId, sellerId string) (*model.OrderModel, error) {
	order, err := e.orders.Get(ctx, orderId)
	if err != nil {
		return nil, err
	}

	if err := e.checkActionable(order, sellerId); err != nil {
		return nil, err
	}

	err = e.orders.Transition(ctx, orderId,
		model.FieldCommitment,
		string(model.CommitmentStatusPending), string(model.CommitmentStatusDeclined),
		nil)
	if err != nil {
		return nil, e.resolveRace(ctx, orderId, err)
	}

	// 状态已确定性转换，这里的退款失败只标记不回滚
	if _, err := e.RefundAndRelease(ctx, order); err != nil {
		logger.Warn("Decline of order %s recorded but refund pending manual attention", orderId)
	}

	e.notifier.Notify(ctx, order.BuyerEmail, notifier.EventOrderDeclined, map[string]string{
		"order_id": orderId,
		"book":     order.BookTitle,
	})

	logger.Info("Seller %s declined order %s", sellerId, orderId)
	return e.orders.Get(ctx, orderId)
}

// checkActionable 承诺操作的共同前置检查
func (e *Engine) checkActionable(order *model.OrderModel, sellerId string) error {
	if order.SellerId != sellerId {
		return fmt.Errorf("seller %s on order %s: %w", sellerId, order.Id, errs.ErrForbidden)
	}
	if order.CommitmentStatus != model.CommitmentStatusPending {
		return fmt.Errorf("order %s is %s: %w", order.Id, order.CommitmentStatus, errs.ErrAlreadyResolved)
	}
	// 期限基于时间戳判定，不等扫描任务跑过
	if !e.now().Before(order.CommitDeadline) {
		return fmt.Errorf("order %s deadline %s: %w", order.Id, order.CommitDeadline.Format(time.RFC3339), errs.ErrExpired)
	}
	return nil
}

// resolveRace CAS输给并发方后，按当前状态给出确定性结果
func (e *Engine) resolveRace(ctx context.Context, orderId string, transitionErr error) error {
	if !errors.Is(transitionErr, errs.ErrInvalidTransition) {
		return transitionErr
	}

	current, err := e.orders.Get(ctx, orderId)
	if err != nil {
		return transitionErr
	}
	if current.CommitmentStatus == model.CommitmentStatusExpired {
		return fmt.Errorf("order %s: %w", orderId, errs.ErrExpired)
	}
	return fmt.Errorf("order %s is %s: %w", orderId, current.CommitmentStatus, errs.ErrAlreadyResolved)
}

// RefundAndRelease 拒绝/过期后的公共资金路径：退款并释放挂牌。
// 过期扫描走同一条路径，保证两种终态的资金处理一致。
// 返回实际退款金额；退款失败时订单已被标记，错误返回给调用方计数
func (e *Engine) RefundAndRelease(ctx context.Context, order *model.OrderModel) (int64, error) {
	var refunded int64
	if order.PaymentStatus == model.PaymentStatusPaid {
		if err := e.gateway.Refund(ctx, order.PaymentReference); err != nil {
			logger.Error("Refund failed for order %s: %v", order.Id, err)
			if flagErr := e.orders.Flag(ctx, order.Id, fmt.Sprintf("refund failed: %v", err)); flagErr != nil {
				logger.Error("Failed to flag order %s: %v", order.Id, flagErr)
			}
			return 0, err
		}
		refunded = order.TotalAmount
		if err := e.orders.Transition(ctx, order.Id,
			model.FieldPayment,
			string(model.PaymentStatusPaid), string(model.PaymentStatusRefunded),
			nil); err != nil {
			logger.Error("Failed to record refund on order %s: %v", order.Id, err)
		}
	}

	if err := e.listings.Release(ctx, order.ListingId); err != nil {
		logger.Warn("Failed to release listing %s for order %s: %v", order.ListingId, order.Id, err)
	}

	return refunded, nil
}
