package mq

import (
	"context"
	"time"

	"github.com/MorseWayne/phone_catalog/internal/domain"
)

// 事件类型与路由键
const (
	EventProductCreated      = "product.created"
	RoutingKeyProductCreated = "catalog.product.created"
)

// ProductCreatedEvent 商品创建事件
type ProductCreatedEvent struct {
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Product    *domain.Product `json:"product"`
}

// publisher 发布 JSON 消息
type publisher interface {
	PublishJSON(ctx context.Context, routingKey, messageType, messageID string, data any) error
}

// ProductEvents 将商品事件发布到交换机
type ProductEvents struct {
	producer publisher
	now      func() time.Time
}

// NewProductEvents 创建商品事件发布器
func NewProductEvents(producer *Producer) *ProductEvents {
	return &ProductEvents{producer: producer, now: time.Now}
}

// PublishProductCreated 发布商品创建事件，消息 ID 使用商品 ID 便于消费方去重
func (e *ProductEvents) PublishProductCreated(ctx context.Context, product *domain.Product) error {
	event := ProductCreatedEvent{
		EventType:  EventProductCreated,
		OccurredAt: e.now().UTC(),
		Product:    product,
	}
	return e.producer.PublishJSON(ctx, RoutingKeyProductCreated, EventProductCreated, product.ID, event)
}
