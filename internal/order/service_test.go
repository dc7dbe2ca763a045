package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bookbay/bms/internal/errs"
	"github.com/bookbay/bms/internal/gateway"
	"github.com/bookbay/bms/internal/model"
	"github.com/bookbay/bms/internal/notifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memOrderStore 内存实现，满足订单生命周期各消费方的存储接口
type memOrderStore struct {
	mu     sync.Mutex
	orders map[string]*model.OrderModel
	byRef  map[string]string
}

func newMemOrderStore() *memOrderStore {
	return &memOrderStore{
		orders: make(map[string]*model.OrderModel),
		byRef:  make(map[string]string),
	}
}

func (s *memOrderStore) Create(_ context.Context, order *model.OrderModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byRef[order.PaymentReference]; exists {
		return fmt.Errorf("reference %s: %w", order.PaymentReference, errs.ErrDuplicateReference)
	}
	cp := *order
	s.orders[order.Id] = &cp
	s.byRef[order.PaymentReference] = order.Id
	return nil
}

func (s *memOrderStore) Get(_ context.Context, id string) (*model.OrderModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, errs.ErrNotFound)
	}
	cp := *o
	return &cp, nil
}

func (s *memOrderStore) Transition(_ context.Context, id string, field model.StatusField, from, to string, extra map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return fmt.Errorf("order %s: %w", id, errs.ErrInvalidTransition)
	}

	matched := false
	switch field {
	case model.FieldPayment:
		if matched = string(o.PaymentStatus) == from; matched {
			o.PaymentStatus = model.PaymentStatus(to)
		}
	case model.FieldCommitment:
		if matched = string(o.CommitmentStatus) == from; matched {
			o.CommitmentStatus = model.CommitmentStatus(to)
		}
	case model.FieldDelivery:
		if matched = string(o.DeliveryStatus) == from; matched {
			o.DeliveryStatus = model.DeliveryStatus(to)
		}
	case model.FieldPayout:
		if matched = string(o.PayoutStatus) == from; matched {
			o.PayoutStatus = model.PayoutStatus(to)
		}
	}
	if !matched {
		return fmt.Errorf("order %s %s: %w", id, field, errs.ErrInvalidTransition)
	}

	for k, v := range extra {
		switch k {
		case "collection_deadline":
			o.CollectionDeadline = v.(*time.Time)
		case "collected_at":
			o.CollectedAt = v.(*time.Time)
		case "delivered_at":
			o.DeliveredAt = v.(*time.Time)
		}
	}
	return nil
}

func (s *memOrderStore) Flag(_ context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[id]; ok && o.FlaggedAt == nil {
		now := time.Now()
		o.FlaggedAt = &now
		o.FlagReason = reason
	}
	return nil
}

func (s *memOrderStore) ListPendingExpired(_ context.Context, now time.Time) ([]model.OrderModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.OrderModel
	for _, o := range s.orders {
		if o.CommitmentStatus == model.CommitmentStatusPending && !o.CommitDeadline.After(now) {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (s *memOrderStore) ListCollectionOverdue(_ context.Context, now time.Time) ([]model.OrderModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.OrderModel
	for _, o := range s.orders {
		if o.CommitmentStatus == model.CommitmentStatusCommitted &&
			o.DeliveryStatus == model.DeliveryStatusAwaitingCollection &&
			o.CollectionDeadline != nil && !o.CollectionDeadline.After(now) &&
			o.FlaggedAt == nil {
			out = append(out, *o)
		}
	}
	return out, nil
}

// memListingStore 带CAS语义的挂牌存储
type memListingStore struct {
	mu       sync.Mutex
	listings map[string]*model.ListingModel
}

func newMemListingStore(listings ...*model.ListingModel) *memListingStore {
	s := &memListingStore{listings: make(map[string]*model.ListingModel)}
	for _, l := range listings {
		s.listings[l.Id] = l
	}
	return s
}

func (s *memListingStore) Get(_ context.Context, id string) (*model.ListingModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return nil, fmt.Errorf("listing %s: %w", id, errs.ErrNotFound)
	}
	cp := *l
	return &cp, nil
}

func (s *memListingStore) setStatus(id string, from, to model.ListingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok || l.Status != from {
		return fmt.Errorf("listing %s: %w", id, errs.ErrInvalidTransition)
	}
	l.Status = to
	return nil
}

func (s *memListingStore) Reserve(_ context.Context, id string) error {
	return s.setStatus(id, model.ListingStatusAvailable, model.ListingStatusReserved)
}

func (s *memListingStore) MarkSold(_ context.Context, id string) error {
	return s.setStatus(id, model.ListingStatusReserved, model.ListingStatusSold)
}

func (s *memListingStore) Release(_ context.Context, id string) error {
	return s.setStatus(id, model.ListingStatusReserved, model.ListingStatusAvailable)
}

type memSellerStore struct {
	mu      sync.Mutex
	sellers map[string]*model.SellerModel
}

func newMemSellerStore(sellers ...*model.SellerModel) *memSellerStore {
	s := &memSellerStore{sellers: make(map[string]*model.SellerModel)}
	for _, seller := range sellers {
		s.sellers[seller.Id] = seller
	}
	return s
}

func (s *memSellerStore) Get(_ context.Context, id string) (*model.SellerModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seller, ok := s.sellers[id]
	if !ok {
		return nil, fmt.Errorf("seller %s: %w", id, errs.ErrNotFound)
	}
	cp := *seller
	return &cp, nil
}

func (s *memSellerStore) SetRecipientCode(_ context.Context, id, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seller, ok := s.sellers[id]; ok {
		seller.RecipientCode = code
	}
	return nil
}

// memGateway 通过引用查表核验，转账退款记录调用
type memGateway struct {
	mu        sync.Mutex
	payments  map[string]*gateway.VerifyResult
	refunds   []string
	transfers []string
	verifyErr error
}

func (g *memGateway) VerifyPayment(_ context.Context, reference string) (*gateway.VerifyResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	result, ok := g.payments[reference]
	if !ok {
		return &gateway.VerifyResult{Reference: reference, Status: "failed"}, nil
	}
	return result, nil
}

func (g *memGateway) Refund(_ context.Context, reference string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds = append(g.refunds, reference)
	return nil
}

func (g *memGateway) CreateTransferRecipient(_ context.Context, _ gateway.RecipientRequest) (string, error) {
	return "RCP_mem", nil
}

func (g *memGateway) InitiateTransfer(_ context.Context, _ string, _ int64, reference string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.transfers = append(g.transfers, reference)
	return "TRF_mem", nil
}

type recordingPayouts struct {
	mu     sync.Mutex
	orders []string
	err    error
}

func (p *recordingPayouts) CreateForOrder(_ context.Context, orderId string) (*model.PayoutModel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.orders = append(p.orders, orderId)
	return &model.PayoutModel{Id: "pay-1", OrderId: orderId}, nil
}

func availableListing() *model.ListingModel {
	return &model.ListingModel{
		Id:          "lst-1",
		SellerId:    "seller-1",
		Title:       "Introduction to Algorithms",
		PriceAmount: 20000,
		Currency:    "NGN",
		Status:      model.ListingStatusAvailable,
	}
}

func testSeller() *model.SellerModel {
	return &model.SellerModel{Id: "seller-1", Name: "Ada", Email: "ada@example.com"}
}

func successPayment(reference string, amount int64) *gateway.VerifyResult {
	return &gateway.VerifyResult{Reference: reference, Status: "success", Amount: amount, Currency: "NGN"}
}

func TestCreateFromPaymentSuccess(t *testing.T) {
	store := newMemOrderStore()
	listings := newMemListingStore(availableListing())
	gw := &memGateway{payments: map[string]*gateway.VerifyResult{
		"ref-1": successPayment("ref-1", 25000),
	}}
	svc := NewService(store, listings, newMemSellerStore(testSeller()), gw, notifier.NopNotifier{}, 48*time.Hour)

	order, err := svc.CreateFromPayment(context.Background(), CreateRequest{
		PaymentReference: "ref-1",
		ListingId:        "lst-1",
		BuyerId:          "buyer-1",
		BuyerEmail:       "buyer@example.com",
		DeliveryFee:      5000,
	})
	require.NoError(t, err)

	assert.Equal(t, model.PaymentStatusPaid, order.PaymentStatus)
	assert.Equal(t, model.CommitmentStatusPending, order.CommitmentStatus)
	assert.Equal(t, int64(20000), order.BookAmount)
	assert.Equal(t, int64(5000), order.DeliveryFee)
	assert.Equal(t, int64(25000), order.TotalAmount)
	assert.Equal(t, "seller-1", order.SellerId)
	assert.Equal(t, order.PaidAt.Add(48*time.Hour), order.CommitDeadline)
	assert.Equal(t, model.ListingStatusReserved, listings.listings["lst-1"].Status)
}

func TestCreateFromPaymentDuplicateReference(t *testing.T) {
	store := newMemOrderStore()
	listings := newMemListingStore(availableListing())
	gw := &memGateway{payments: map[string]*gateway.VerifyResult{
		"ref-1": successPayment("ref-1", 25000),
	}}
	svc := NewService(store, listings, newMemSellerStore(testSeller()), gw, notifier.NopNotifier{}, 48*time.Hour)

	req := CreateRequest{PaymentReference: "ref-1", ListingId: "lst-1", BuyerId: "buyer-1", DeliveryFee: 5000}
	_, err := svc.CreateFromPayment(context.Background(), req)
	require.NoError(t, err)

	// 同一支付引用的重放webhook不建第二单
	_, err = svc.CreateFromPayment(context.Background(), req)
	assert.ErrorIs(t, err, errs.ErrDuplicateReference)
	assert.Len(t, store.orders, 1)
}

func TestCreateFromPaymentAmountMismatch(t *testing.T) {
	gw := &memGateway{payments: map[string]*gateway.VerifyResult{
		"ref-1": successPayment("ref-1", 19999),
	}}
	svc := NewService(newMemOrderStore(), newMemListingStore(availableListing()), newMemSellerStore(testSeller()), gw, notifier.NopNotifier{}, 48*time.Hour)

	_, err := svc.CreateFromPayment(context.Background(), CreateRequest{
		PaymentReference: "ref-1", ListingId: "lst-1", BuyerId: "buyer-1", DeliveryFee: 5000,
	})
	assert.True(t, errs.IsValidation(err))
}

func TestCreateFromPaymentUnverified(t *testing.T) {
	gw := &memGateway{payments: map[string]*gateway.VerifyResult{}}
	svc := NewService(newMemOrderStore(), newMemListingStore(availableListing()), newMemSellerStore(testSeller()), gw, notifier.NopNotifier{}, 48*time.Hour)

	_, err := svc.CreateFromPayment(context.Background(), CreateRequest{
		PaymentReference: "ref-unknown", ListingId: "lst-1", BuyerId: "buyer-1", DeliveryFee: 5000,
	})
	assert.True(t, errs.IsValidation(err))
}

func TestCreateFromPaymentListingTakenFlagsOrder(t *testing.T) {
	listing := availableListing()
	listing.Status = model.ListingStatusReserved // 别的订单抢先占用
	store := newMemOrderStore()
	gw := &memGateway{payments: map[string]*gateway.VerifyResult{
		"ref-1": successPayment("ref-1", 25000),
	}}
	svc := NewService(store, newMemListingStore(listing), newMemSellerStore(testSeller()), gw, notifier.NopNotifier{}, 48*time.Hour)

	order, err := svc.CreateFromPayment(context.Background(), CreateRequest{
		PaymentReference: "ref-1", ListingId: "lst-1", BuyerId: "buyer-1", DeliveryFee: 5000,
	})
	require.NoError(t, err)

	// 钱已收，订单保留并标记人工处理
	stored := store.orders[order.Id]
	require.NotNil(t, stored.FlaggedAt)
	assert.Contains(t, stored.FlagReason, "listing unavailable")
}

func TestMarkCollectedRequiresCommitment(t *testing.T) {
	store := newMemOrderStore()
	paidAt := time.Now()
	require.NoError(t, store.Create(context.Background(), &model.OrderModel{
		Id: "ord-1", PaymentReference: "ref-1", SellerId: "seller-1", ListingId: "lst-1",
		PaymentStatus: model.PaymentStatusPaid, CommitmentStatus: model.CommitmentStatusPending,
		DeliveryStatus: model.DeliveryStatusAwaitingCollection, PayoutStatus: model.PayoutStatusNone,
		PaidAt: paidAt, CommitDeadline: paidAt.Add(48 * time.Hour),
	}))
	svc := NewService(store, newMemListingStore(), newMemSellerStore(), &memGateway{}, notifier.NopNotifier{}, 48*time.Hour)

	_, err := svc.MarkCollected(context.Background(), "ord-1")
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)
}

func TestMarkDeliveredCreatesPayout(t *testing.T) {
	store := newMemOrderStore()
	paidAt := time.Now()
	require.NoError(t, store.Create(context.Background(), &model.OrderModel{
		Id: "ord-1", PaymentReference: "ref-1", SellerId: "seller-1", ListingId: "lst-1",
		PaymentStatus: model.PaymentStatusPaid, CommitmentStatus: model.CommitmentStatusCommitted,
		DeliveryStatus: model.DeliveryStatusCollected, PayoutStatus: model.PayoutStatusNone,
		PaidAt: paidAt, CommitDeadline: paidAt.Add(48 * time.Hour),
	}))
	payouts := &recordingPayouts{}
	svc := NewService(store, newMemListingStore(), newMemSellerStore(), &memGateway{}, notifier.NopNotifier{}, 48*time.Hour)
	svc.SetPayoutCreator(payouts)

	order, err := svc.MarkDelivered(context.Background(), "ord-1")
	require.NoError(t, err)

	assert.Equal(t, model.DeliveryStatusDelivered, order.DeliveryStatus)
	require.NotNil(t, order.DeliveredAt)
	assert.Equal(t, []string{"ord-1"}, payouts.orders)
}

func TestMarkDeliveredPayoutFailureFlagsOrder(t *testing.T) {
	store := newMemOrderStore()
	paidAt := time.Now()
	require.NoError(t, store.Create(context.Background(), &model.OrderModel{
		Id: "ord-1", PaymentReference: "ref-1", SellerId: "seller-1", ListingId: "lst-1",
		PaymentStatus: model.PaymentStatusPaid, CommitmentStatus: model.CommitmentStatusCommitted,
		DeliveryStatus: model.DeliveryStatusCollected, PayoutStatus: model.PayoutStatusNone,
		PaidAt: paidAt, CommitDeadline: paidAt.Add(48 * time.Hour),
	}))
	payouts := &recordingPayouts{err: errors.New("split config broken")}
	svc := NewService(store, newMemListingStore(), newMemSellerStore(), &memGateway{}, notifier.NopNotifier{}, 48*time.Hour)
	svc.SetPayoutCreator(payouts)

	order, err := svc.MarkDelivered(context.Background(), "ord-1")
	require.NoError(t, err)

	// 送达记录不回滚，打款问题标记人工
	assert.Equal(t, model.DeliveryStatusDelivered, order.DeliveryStatus)
	require.NotNil(t, order.FlaggedAt)
	assert.Contains(t, order.FlagReason, "payout creation failed")
}

func TestMarkDeliveredTwiceSecondFails(t *testing.T) {
	store := newMemOrderStore()
	paidAt := time.Now()
	require.NoError(t, store.Create(context.Background(), &model.OrderModel{
		Id: "ord-1", PaymentReference: "ref-1", SellerId: "seller-1", ListingId: "lst-1",
		PaymentStatus: model.PaymentStatusPaid, CommitmentStatus: model.CommitmentStatusCommitted,
		DeliveryStatus: model.DeliveryStatusCollected, PayoutStatus: model.PayoutStatusNone,
		PaidAt: paidAt, CommitDeadline: paidAt.Add(48 * time.Hour),
	}))
	payouts := &recordingPayouts{}
	svc := NewService(store, newMemListingStore(), newMemSellerStore(), &memGateway{}, notifier.NopNotifier{}, 48*time.Hour)
	svc.SetPayoutCreator(payouts)

	_, err := svc.MarkDelivered(context.Background(), "ord-1")
	require.NoError(t, err)

	_, err = svc.MarkDelivered(context.Background(), "ord-1")
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)
	assert.Len(t, payouts.orders, 1)
}
