package notification

import (
	"context"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"hotel-stays-backend/config"
	"hotel-stays-backend/internal/model"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WebPusher sends notification payloads to a user's browser subscriptions.
type WebPusher struct {
	db      *gorm.DB
	options *webpush.Options
	sender  NotificationSender
	log     *zap.Logger
}

// NewWebPusher creates a pusher from the VAPID settings.
func NewWebPusher(db *gorm.DB, cfg config.PushConfig, log *zap.Logger) *WebPusher {
	return &WebPusher{
		db: db,
		options: &webpush.Options{
			Subscriber:      cfg.Subject,
			VAPIDPublicKey:  cfg.PublicKey,
			VAPIDPrivateKey: cfg.PrivateKey,
			TTL:             cfg.TTL,
		},
		sender: &WebPushSender{},
		log:    log,
	}
}

// Push sends payload to every subscription of userID. Expired
// subscriptions are deleted.
func (p *WebPusher) Push(ctx context.Context, userID string, payload []byte) {
	var subs []model.PushSubscription
	if err := p.db.WithContext(ctx).Where("user_id = ?", userID).Find(&subs).Error; err != nil {
		p.log.Warn("fetch push subscriptions", zap.String("user_id", userID), zap.Error(err))
		return
	}
	for _, sub := range subs {
		p.send(ctx, sub, payload)
	}
}

func (p *WebPusher) send(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := p.sender.Send(payload, wpSub, p.options)
	if err != nil {
		p.log.Warn("send web push", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		p.log.Info("push subscription expired, deleting", zap.String("endpoint", sub.Endpoint))
		if err := p.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			p.log.Warn("delete expired subscription", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		}
	}
}
