package notifier

import (
	"context"
	"fmt"
	"net/smtp"
	"sort"
	"strings"

	"github.com/bookbay/bms/internal/config"
	"github.com/bookbay/bms/internal/logger"
)

// 通知事件类型
const (
	EventOrderPlaced    = "order_placed"
	EventOrderCommitted = "order_committed"
	EventOrderDeclined  = "order_declined"
	EventOrderExpired   = "order_expired"
	EventPayoutApproved = "payout_approved"
	EventPayoutDenied   = "payout_denied"
)

// Notifier 邮件通知接口。发送即忘，失败只记录日志，
// 任何状态转换的正确性都不依赖通知送达
type Notifier interface {
	Notify(ctx context.Context, recipient, event string, data map[string]string)
}

// SMTPNotifier SMTP邮件通知
type SMTPNotifier struct {
	cfg config.NotifyConfig
}

// NewSMTPNotifier 创建SMTP通知器
func NewSMTPNotifier(cfg config.NotifyConfig) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg}
}

// Notify 发送通知邮件，错误不向上传播
func (n *SMTPNotifier) Notify(ctx context.Context, recipient, event string, data map[string]string) {
	if recipient == "" {
		logger.Debug("Skipping notification %s: no recipient", event)
		return
	}

	subject, body := renderMessage(event, data)
	if err := n.send(recipient, subject, body); err != nil {
		logger.Error("Failed to send %s notification to %s: %v", event, recipient, err)
		return
	}

	logger.Info("Sent %s notification to %s", event, recipient)
}

func (n *SMTPNotifier) send(to, subject, body string) error {
	msg := []byte(fmt.Sprintf("From: %s <%s>\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"Content-Type: text/plain; charset=UTF-8\r\n\r\n"+
		"%s",
		n.cfg.FromName, n.cfg.FromAddr, to, subject, body))

	auth := smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.SMTPHost)

	if err := smtp.SendMail(n.cfg.SMTPHost+":"+n.cfg.SMTPPort, auth, n.cfg.FromAddr, []string{to}, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

// renderMessage 按事件类型渲染邮件内容
func renderMessage(event string, data map[string]string) (string, string) {
	var subject, intro string
	switch event {
	case EventOrderPlaced:
		subject = "You have a new sale on BookBay"
		intro = "A buyer has paid for your book. You have 48 hours to commit to the sale before it expires."
	case EventOrderCommitted:
		subject = "Your BookBay order is confirmed"
		intro = "The seller has committed to your order. Delivery is being arranged."
	case EventOrderDeclined:
		subject = "Your BookBay order was declined"
		intro = "The seller declined the sale. Your payment will be refunded in full."
	case EventOrderExpired:
		subject = "Your BookBay order expired"
		intro = "The seller did not respond in time. Your payment will be refunded in full."
	case EventPayoutApproved:
		subject = "Your BookBay payout is on its way"
		intro = "Your payout has been approved and the transfer has been issued."
	case EventPayoutDenied:
		subject = "Your BookBay payout needs attention"
		intro = "Your payout could not be approved. See the reason below and contact support."
	default:
		subject = "BookBay notification"
		intro = "There is an update on your BookBay account."
	}

	var b strings.Builder
	b.WriteString(intro)
	b.WriteString("\n\n")

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, data[k])
	}

	return subject, b.String()
}

// NopNotifier 空通知器，通知未启用时使用
type NopNotifier struct{}

// Notify 丢弃通知，仅记录调试日志
func (NopNotifier) Notify(_ context.Context, recipient, event string, _ map[string]string) {
	logger.Debug("Notification disabled, dropping %s for %s", event, recipient)
}
