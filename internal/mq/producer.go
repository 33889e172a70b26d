package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ErrProducerClosed 生产者已关闭
var ErrProducerClosed = errors.New("producer is closed")

// Producer RabbitMQ生产者
// 持有一个确认模式的通道，发布串行化；连接或通道断开后在下一次发布时重建。
type Producer struct {
	config Config
	logger *zap.Logger

	mu        sync.Mutex
	conn      *amqp.Connection
	ch        *amqp.Channel
	confirms  chan amqp.Confirmation
	closed    bool
	published int64
	failed    int64
}

// NewProducer 建立连接并声明交换机
func NewProducer(config Config, logger *zap.Logger) (*Producer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mq config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Producer{config: config, logger: logger}
	if err := p.connect(); err != nil {
		return nil, err
	}

	logger.Info("rabbitmq producer ready", zap.String("exchange", config.Exchange))
	return p, nil
}

// connect 建立连接、打开确认通道并声明 topic 交换机，调用方须持有锁或处于构造阶段
func (p *Producer) connect() error {
	conn, err := amqp.DialConfig(p.config.URL, amqp.Config{
		Heartbeat: p.config.HeartbeatInterval,
		Locale:    "en_US",
	})
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(p.config.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to declare exchange %s: %w", p.config.Exchange, err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to set confirm mode: %w", err)
	}

	p.conn = conn
	p.ch = ch
	p.confirms = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	return nil
}

// PublishJSON 以 JSON 编码发布消息并等待 broker 确认
func (p *Producer) PublishJSON(ctx context.Context, routingKey, messageType, messageID string, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return p.Publish(ctx, routingKey, buildPublishing(body, messageType, messageID, time.Now()))
}

// Publish 发布消息
func (p *Producer) Publish(ctx context.Context, routingKey string, publishing amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrProducerClosed
	}

	if p.ch == nil || p.ch.IsClosed() || p.conn.IsClosed() {
		p.logger.Warn("rabbitmq channel closed, reconnecting")
		p.resetLocked()
		if err := p.connect(); err != nil {
			p.failed++
			return err
		}
	}

	publishCtx, cancel := context.WithTimeout(ctx, p.config.PublishTimeout)
	defer cancel()

	if err := p.ch.PublishWithContext(publishCtx, p.config.Exchange, routingKey, false, false, publishing); err != nil {
		p.failed++
		return fmt.Errorf("failed to publish message: %w", err)
	}

	select {
	case confirmation, ok := <-p.confirms:
		if !ok {
			p.failed++
			return fmt.Errorf("channel closed before confirmation")
		}
		if !confirmation.Ack {
			p.failed++
			return fmt.Errorf("message was nacked by broker")
		}
	case <-time.After(p.config.ConfirmTimeout):
		p.failed++
		p.resetLocked()
		return fmt.Errorf("publish confirmation timeout")
	case <-ctx.Done():
		p.failed++
		p.resetLocked()
		return ctx.Err()
	}

	p.published++
	return nil
}

// resetLocked 丢弃当前连接，未确认的消息作废，下一次发布时重新建立
func (p *Producer) resetLocked() {
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch, p.confirms = nil, nil, nil
}

// Stats 返回已发布与失败的消息数
func (p *Producer) Stats() (published, failed int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published, p.failed
}

// Close 关闭通道与连接
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}

// buildPublishing 构造持久化的 JSON 消息
func buildPublishing(body []byte, messageType, messageID string, ts time.Time) amqp.Publishing {
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Timestamp:    ts,
		Type:         messageType,
		Body:         body,
	}
}
