package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bookbay/bms/internal/errs"
	"github.com/bookbay/bms/internal/logger"
	"github.com/bookbay/bms/internal/model"
	"github.com/bookbay/bms/internal/notifier"
	"github.com/panjf2000/ants/v2"
)

// OrderStore 扫描需要的订单存储能力
type OrderStore interface {
	ListPendingExpired(ctx context.Context, now time.Time) ([]model.OrderModel, error)
	ListCollectionOverdue(ctx context.Context, now time.Time) ([]model.OrderModel, error)
	Transition(ctx context.Context, id string, field model.StatusField, from, to string, extra map[string]interface{}) error
	Flag(ctx context.Context, id, reason string) error
}

// FundsReleaser 过期后的退款与挂牌释放，与卖家拒绝走同一路径
type FundsReleaser interface {
	RefundAndRelease(ctx context.Context, order *model.OrderModel) (int64, error)
}

// Summary 单次扫描结果
type Summary struct {
	Processed     int   `json:"processed"`
	Expired       int   `json:"expired"`
	Flagged       int   `json:"flagged"`
	Errors        int   `json:"errors"`
	RefundedTotal int64 `json:"refunded_total"`
}

// Sweeper 期限扫描器。无状态，每次从存储的时间戳重新推导过期，
// 进程重启或延迟只影响及时性不影响正确性
type Sweeper struct {
	orders   OrderStore
	funds    FundsReleaser
	notifier notifier.Notifier
	workers  int
	now      func() time.Time
}

// NewSweeper 创建扫描器
func NewSweeper(orders OrderStore, funds FundsReleaser, n notifier.Notifier, workers int) *Sweeper {
	if workers <= 0 {
		workers = 1
	}
	return &Sweeper{
		orders:   orders,
		funds:    funds,
		notifier: n,
		workers:  workers,
		now:      time.Now,
	}
}

// Run 执行一轮扫描。订单之间互相隔离，单个失败不影响批次；
// 紧接着的第二轮是无操作（过期订单不再pending，退款只发一次）
func (s *Sweeper) Run(ctx context.Context) (*Summary, error) {
	now := s.now()
	summary := &Summary{}
	var mu sync.Mutex

	pool, err := ants.NewPool(s.workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	// 第一遍：过期未响应的承诺
	expired, err := s.orders.ListPendingExpired(ctx, now)
	if err != nil {
		return nil, err
	}

	var wg sync.WaitGroup
	for i := range expired {
		o := expired[i]
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			refunded, expireErr := s.expireOne(ctx, &o)

			mu.Lock()
			defer mu.Unlock()
			summary.Processed++
			switch {
			case expireErr == nil:
				summary.Expired++
				summary.RefundedTotal += refunded
			case errors.Is(expireErr, errs.ErrInvalidTransition):
				// 输给了并发的卖家操作，不算错误
			default:
				summary.Errors++
			}
		})
		if submitErr != nil {
			wg.Done()
			logger.Error("Failed to submit order %s to sweep pool: %v", o.Id, submitErr)
			mu.Lock()
			summary.Errors++
			mu.Unlock()
		}
	}
	wg.Wait()

	// 第二遍：超过取书期限的已承诺订单，只标记不自动退款
	overdue, err := s.orders.ListCollectionOverdue(ctx, now)
	if err != nil {
		logger.Error("Failed to list overdue collections: %v", err)
		summary.Errors++
	} else {
		for i := range overdue {
			o := overdue[i]
			summary.Processed++
			reason := fmt.Sprintf("collection overdue since %s", o.CollectionDeadline.Format(time.RFC3339))
			if err := s.orders.Flag(ctx, o.Id, reason); err != nil {
				logger.Error("Failed to flag overdue order %s: %v", o.Id, err)
				summary.Errors++
				continue
			}
			summary.Flagged++
		}
	}

	logger.Info("Sweep completed: processed=%d expired=%d flagged=%d errors=%d refunded=%d",
		summary.Processed, summary.Expired, summary.Flagged, summary.Errors, summary.RefundedTotal)
	return summary, nil
}

// expireOne 单个订单的过期处理：一次CAS定胜负，赢者负责退款
func (s *Sweeper) expireOne(ctx context.Context, order *model.OrderModel) (int64, error) {
	err := s.orders.Transition(ctx, order.Id,
		model.FieldCommitment,
		string(model.CommitmentStatusPending), string(model.CommitmentStatusExpired),
		nil)
	if err != nil {
		if errors.Is(err, errs.ErrInvalidTransition) {
			logger.Info("Order %s resolved concurrently, skipping expiry", order.Id)
		} else {
			logger.Error("Failed to expire order %s: %v", order.Id, err)
		}
		return 0, err
	}

	logger.Info("Order %s commitment expired (deadline was %s)",
		order.Id, order.CommitDeadline.Format(time.RFC3339))

	refunded, refundErr := s.funds.RefundAndRelease(ctx, order)

	s.notifier.Notify(ctx, order.BuyerEmail, notifier.EventOrderExpired, map[string]string{
		"order_id": order.Id,
		"book":     order.BookTitle,
	})

	if refundErr != nil {
		return 0, fmt.Errorf("order %s expired but refund failed: %w", order.Id, refundErr)
	}
	return refunded, nil
}
