package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bookbay/bms/internal/errs"
	"github.com/bookbay/bms/internal/gateway"
	"github.com/bookbay/bms/internal/logger"
	"github.com/bookbay/bms/internal/model"
	"github.com/bookbay/bms/internal/notifier"
	"github.com/google/uuid"
)

// OrderStore 服务需要的订单存储能力
type OrderStore interface {
	Create(ctx context.Context, order *model.OrderModel) error
	Get(ctx context.Context, id string) (*model.OrderModel, error)
	Transition(ctx context.Context, id string, field model.StatusField, from, to string, extra map[string]interface{}) error
	Flag(ctx context.Context, id, reason string) error
}

// ListingStore 服务需要的挂牌存储能力
type ListingStore interface {
	Get(ctx context.Context, id string) (*model.ListingModel, error)
	Reserve(ctx context.Context, id string) error
}

// SellerStore 卖家信息查询
type SellerStore interface {
	Get(ctx context.Context, id string) (*model.SellerModel, error)
}

// Verifier 支付网关的核验能力
type Verifier interface {
	VerifyPayment(ctx context.Context, reference string) (*gateway.VerifyResult, error)
}

// PayoutCreator 送达后触发打款创建
type PayoutCreator interface {
	CreateForOrder(ctx context.Context, orderId string) (*model.PayoutModel, error)
}

// Service 订单生命周期服务：支付确认建单与配送事件
type Service struct {
	orders       OrderStore
	listings     ListingStore
	sellers      SellerStore
	gateway      Verifier
	payouts      PayoutCreator
	notifier     notifier.Notifier
	commitWindow time.Duration
	now          func() time.Time
}

// NewService 创建订单服务
func NewService(orders OrderStore, listings ListingStore, sellers SellerStore, gw Verifier, n notifier.Notifier, commitWindow time.Duration) *Service {
	return &Service{
		orders:       orders,
		listings:     listings,
		sellers:      sellers,
		gateway:      gw,
		notifier:     n,
		commitWindow: commitWindow,
		now:          time.Now,
	}
}

// SetPayoutCreator 注入打款创建器（打款流程依赖订单存储，延迟注入避免环）
func (s *Service) SetPayoutCreator(p PayoutCreator) {
	s.payouts = p
}

// CreateRequest 支付webhook转换出的建单请求
type CreateRequest struct {
	PaymentReference string
	ListingId        string
	BuyerId          string
	BuyerEmail       string
	DeliveryFee      int64
}

// CreateFromPayment 按已核验的支付创建订单。同一支付引用只允许建单一次
func (s *Service) CreateFromPayment(ctx context.Context, req CreateRequest) (*model.OrderModel, error) {
	if req.PaymentReference == "" {
		return nil, errs.Validationf("payment reference is required")
	}
	if req.ListingId == "" {
		return nil, errs.Validationf("listing id is required")
	}
	if req.DeliveryFee < 0 {
		return nil, errs.Validationf("delivery fee must not be negative")
	}

	// 以网关为权威核验支付，不信任webhook自带的金额
	verified, err := s.gateway.VerifyPayment(ctx, req.PaymentReference)
	if err != nil {
		return nil, err
	}
	if verified.Status != "success" {
		return nil, errs.Validationf("payment %s not successful: %s", req.PaymentReference, verified.Status)
	}

	listing, err := s.listings.Get(ctx, req.ListingId)
	if err != nil {
		return nil, err
	}

	expected := listing.PriceAmount + req.DeliveryFee
	if verified.Amount != expected {
		return nil, errs.Validationf("payment amount %d does not match listing price %d + delivery %d",
			verified.Amount, listing.PriceAmount, req.DeliveryFee)
	}

	paidAt := s.now()
	order := &model.OrderModel{
		Id:               uuid.NewString(),
		BuyerId:          req.BuyerId,
		BuyerEmail:       req.BuyerEmail,
		SellerId:         listing.SellerId,
		ListingId:        listing.Id,
		BookTitle:        listing.Title,
		PaymentReference: req.PaymentReference,
		BookAmount:       listing.PriceAmount,
		DeliveryFee:      req.DeliveryFee,
		TotalAmount:      expected,
		Currency:         verified.Currency,
		PaymentStatus:    model.PaymentStatusPaid,
		CommitmentStatus: model.CommitmentStatusPending,
		DeliveryStatus:   model.DeliveryStatusAwaitingCollection,
		PayoutStatus:     model.PayoutStatusNone,
		PaidAt:           paidAt,
		CommitDeadline:   paidAt.Add(s.commitWindow),
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return nil, err
	}

	// 挂牌占用失败说明书在支付完成前已被别的订单占走，
	// 钱已收，订单保留并标记人工处理
	if err := s.listings.Reserve(ctx, listing.Id); err != nil {
		logger.Warn("Failed to reserve listing %s for order %s: %v", listing.Id, order.Id, err)
		if flagErr := s.orders.Flag(ctx, order.Id, "listing unavailable at payment time"); flagErr != nil {
			logger.Error("Failed to flag order %s: %v", order.Id, flagErr)
		}
	}

	if seller, err := s.sellers.Get(ctx, listing.SellerId); err == nil {
		s.notifier.Notify(ctx, seller.Email, notifier.EventOrderPlaced, map[string]string{
			"order_id": order.Id,
			"book":     order.BookTitle,
			"deadline": order.CommitDeadline.Format(time.RFC3339),
		})
	} else {
		logger.Warn("Could not load seller %s for notification: %v", listing.SellerId, err)
	}

	logger.Info("Created order %s for reference %s, commit deadline %s",
		order.Id, req.PaymentReference, order.CommitDeadline.Format(time.RFC3339))
	return order, nil
}

// Get 查询订单
func (s *Service) Get(ctx context.Context, id string) (*model.OrderModel, error) {
	return s.orders.Get(ctx, id)
}

// MarkCollected 快递揽收事件
func (s *Service) MarkCollected(ctx context.Context, orderId string) (*model.OrderModel, error) {
	order, err := s.orders.Get(ctx, orderId)
	if err != nil {
		return nil, err
	}
	if order.CommitmentStatus != model.CommitmentStatusCommitted {
		return nil, fmt.Errorf("order %s commitment is %s: %w", orderId, order.CommitmentStatus, errs.ErrInvalidTransition)
	}

	now := s.now()
	err = s.orders.Transition(ctx, orderId,
		model.FieldDelivery,
		string(model.DeliveryStatusAwaitingCollection), string(model.DeliveryStatusCollected),
		map[string]interface{}{"collected_at": &now})
	if err != nil {
		return nil, err
	}

	logger.Info("Order %s collected", orderId)
	return s.orders.Get(ctx, orderId)
}

// MarkDelivered 送达事件，触发打款流程。
// 打款创建失败不回滚送达记录，重复触发由AlreadyExists挡住
func (s *Service) MarkDelivered(ctx context.Context, orderId string) (*model.OrderModel, error) {
	now := s.now()
	err := s.orders.Transition(ctx, orderId,
		model.FieldDelivery,
		string(model.DeliveryStatusCollected), string(model.DeliveryStatusDelivered),
		map[string]interface{}{"delivered_at": &now})
	if err != nil {
		return nil, err
	}

	if s.payouts != nil {
		if _, err := s.payouts.CreateForOrder(ctx, orderId); err != nil {
			if errors.Is(err, errs.ErrAlreadyExists) {
				logger.Info("Payout for order %s already exists, skipping", orderId)
			} else {
				logger.Error("Failed to create payout for order %s: %v", orderId, err)
				if flagErr := s.orders.Flag(ctx, orderId, fmt.Sprintf("payout creation failed: %v", err)); flagErr != nil {
					logger.Error("Failed to flag order %s: %v", orderId, flagErr)
				}
			}
		}
	}

	logger.Info("Order %s delivered", orderId)
	return s.orders.Get(ctx, orderId)
}
