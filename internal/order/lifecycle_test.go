package order

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bookbay/bms/internal/commitment"
	"github.com/bookbay/bms/internal/errs"
	"github.com/bookbay/bms/internal/gateway"
	"github.com/bookbay/bms/internal/model"
	"github.com/bookbay/bms/internal/notifier"
	"github.com/bookbay/bms/internal/payout"
	"github.com/bookbay/bms/internal/split"
	"github.com/bookbay/bms/internal/sweeper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memPayoutStore 内存打款存储，同一订单只允许一条非denied记录
type memPayoutStore struct {
	payouts map[string]*model.PayoutModel
}

func newMemPayoutStore() *memPayoutStore {
	return &memPayoutStore{payouts: make(map[string]*model.PayoutModel)}
}

func (s *memPayoutStore) Create(_ context.Context, p *model.PayoutModel) error {
	for _, existing := range s.payouts {
		if existing.OrderId == p.OrderId && existing.Status != model.ReviewStatusDenied {
			return fmt.Errorf("order %s: %w", p.OrderId, errs.ErrAlreadyExists)
		}
	}
	cp := *p
	s.payouts[p.Id] = &cp
	return nil
}

func (s *memPayoutStore) Get(_ context.Context, id string) (*model.PayoutModel, error) {
	p, ok := s.payouts[id]
	if !ok {
		return nil, fmt.Errorf("payout %s: %w", id, errs.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *memPayoutStore) Transition(_ context.Context, id string, from, to model.ReviewStatus, extra map[string]interface{}) error {
	p, ok := s.payouts[id]
	if !ok || p.Status != from {
		return fmt.Errorf("payout %s: %w", id, errs.ErrInvalidTransition)
	}
	p.Status = to
	for k, v := range extra {
		switch k {
		case "reviewer_id":
			p.ReviewerId = v.(string)
		case "review_notes":
			p.ReviewNotes = v.(string)
		case "denial_reason":
			p.DenialReason = v.(string)
		case "reviewed_at":
			p.ReviewedAt = v.(*time.Time)
		case "transfer_id":
			p.TransferId = v.(string)
		}
	}
	return nil
}

func (s *memPayoutStore) Flag(_ context.Context, id, reason string) error {
	if p, ok := s.payouts[id]; ok && p.FlaggedAt == nil {
		now := time.Now()
		p.FlaggedAt = &now
		p.FlagReason = reason
	}
	return nil
}

// 整条生命周期：支付建单 → 卖家承诺 → 揽收 → 送达 → 打款审批 → 转账完成
func TestFullLifecycleHappyPath(t *testing.T) {
	ctx := context.Background()

	orders := newMemOrderStore()
	listings := newMemListingStore(availableListing())
	sellers := newMemSellerStore(&model.SellerModel{
		Id: "seller-1", Name: "Ada", Email: "ada@example.com",
		BankCode: "058", AccountNumber: "0123456789",
	})
	gw := &memGateway{payments: map[string]*gateway.VerifyResult{
		"ref-1": successPayment("ref-1", 25000),
	}}

	calc, err := split.NewCalculator(1000)
	require.NoError(t, err)

	engine := commitment.NewEngine(orders, listings, gw, notifier.NopNotifier{}, 5*24*time.Hour)
	svc := NewService(orders, listings, sellers, gw, notifier.NopNotifier{}, 48*time.Hour)
	payoutStore := newMemPayoutStore()
	workflow := payout.NewWorkflow(payoutStore, orders, sellers, gw, notifier.NopNotifier{}, calc, "NGN")
	svc.SetPayoutCreator(workflow)

	// 支付确认建单
	order, err := svc.CreateFromPayment(ctx, CreateRequest{
		PaymentReference: "ref-1",
		ListingId:        "lst-1",
		BuyerId:          "buyer-1",
		BuyerEmail:       "buyer@example.com",
		DeliveryFee:      5000,
	})
	require.NoError(t, err)
	assert.Equal(t, model.ListingStatusReserved, listings.listings["lst-1"].Status)

	// 卖家在48小时窗口内确认
	order, err = engine.Commit(ctx, order.Id, "seller-1")
	require.NoError(t, err)
	assert.Equal(t, model.CommitmentStatusCommitted, order.CommitmentStatus)
	require.NotNil(t, order.CollectionDeadline)
	assert.Equal(t, model.ListingStatusSold, listings.listings["lst-1"].Status)

	// 揽收、送达
	order, err = svc.MarkCollected(ctx, order.Id)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryStatusCollected, order.DeliveryStatus)

	order, err = svc.MarkDelivered(ctx, order.Id)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryStatusDelivered, order.DeliveryStatus)
	assert.Equal(t, model.PayoutStatusPending, order.PayoutStatus)

	// 送达自动建了待审打款，金额按创建时的佣金率快照
	require.Len(t, payoutStore.payouts, 1)
	var p *model.PayoutModel
	for _, v := range payoutStore.payouts {
		p = v
	}
	assert.Equal(t, int64(20000), p.GrossAmount)
	assert.Equal(t, int64(2000), p.PlatformFee)
	assert.Equal(t, int64(18000), p.SellerAmount)
	assert.Equal(t, int64(5000), p.DeliveryAmount)

	// 管理员批准，网关注册收款人并发起转账
	approved, err := workflow.Approve(ctx, p.Id, "admin-1", "verified delivery photo")
	require.NoError(t, err)
	assert.Equal(t, model.ReviewStatusCompleted, approved.Status)
	assert.Equal(t, "TRF_mem", approved.TransferId)
	assert.Equal(t, []string{p.TransferReference}, gw.transfers)

	final, err := orders.Get(ctx, order.Id)
	require.NoError(t, err)
	assert.Equal(t, model.PayoutStatusCompleted, final.PayoutStatus)
	// 全程没有退款发生
	assert.Empty(t, gw.refunds)
}

// 卖家不响应：扫描任务过期订单、退款并释放挂牌
func TestFullLifecycleExpiryPath(t *testing.T) {
	ctx := context.Background()

	orders := newMemOrderStore()
	listings := newMemListingStore(availableListing())
	sellers := newMemSellerStore(testSeller())
	gw := &memGateway{payments: map[string]*gateway.VerifyResult{
		"ref-1": successPayment("ref-1", 25000),
	}}

	engine := commitment.NewEngine(orders, listings, gw, notifier.NopNotifier{}, 5*24*time.Hour)
	svc := NewService(orders, listings, sellers, gw, notifier.NopNotifier{}, 48*time.Hour)

	order, err := svc.CreateFromPayment(ctx, CreateRequest{
		PaymentReference: "ref-1", ListingId: "lst-1", BuyerId: "buyer-1", DeliveryFee: 5000,
	})
	require.NoError(t, err)

	// 把期限拨回过去以模拟48小时流逝
	orders.mu.Lock()
	orders.orders[order.Id].CommitDeadline = time.Now().Add(-time.Minute)
	orders.mu.Unlock()

	sw := sweeper.NewSweeper(orders, engine, notifier.NopNotifier{}, 2)
	summary, err := sw.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Expired)
	assert.Equal(t, int64(25000), summary.RefundedTotal)

	final, err := orders.Get(ctx, order.Id)
	require.NoError(t, err)
	assert.Equal(t, model.CommitmentStatusExpired, final.CommitmentStatus)
	assert.Equal(t, model.PaymentStatusRefunded, final.PaymentStatus)
	assert.Equal(t, []string{"ref-1"}, gw.refunds)
	assert.Equal(t, model.ListingStatusAvailable, listings.listings["lst-1"].Status)

	// 过期后卖家再确认被确定性拒绝
	_, err = engine.Commit(ctx, order.Id, "seller-1")
	require.Error(t, err)
}
