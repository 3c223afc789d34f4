package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"lostfound/pkg/logger"
)

// 公告事件路由键
const (
	AnnouncementCreated  = "announcement.created"
	AnnouncementResolved = "announcement.resolved"
	AnnouncementDeleted  = "announcement.deleted"
)

// Publisher 事件发布接口
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload interface{}) error
	Close() error
}

// NopPublisher 不发布任何事件
type NopPublisher struct{}

// Publish 直接返回
func (NopPublisher) Publish(ctx context.Context, routingKey string, payload interface{}) error {
	return nil
}

// Close 直接返回
func (NopPublisher) Close() error {
	return nil
}

// RabbitMQPublisher 将事件发布到RabbitMQ topic交换机
type RabbitMQPublisher struct {
	mu           sync.Mutex
	conn         *amqp.Connection
	channel      *amqp.Channel
	exchangeName string
	url          string
	logger       *logger.Logger
	closed       chan struct{}
}

// NewRabbitMQPublisher 连接RabbitMQ并声明交换机
func NewRabbitMQPublisher(url, exchangeName string, logger *logger.Logger) (*RabbitMQPublisher, error) {
	p := &RabbitMQPublisher{
		exchangeName: exchangeName,
		url:          url,
		logger:       logger,
		closed:       make(chan struct{}),
	}
	if err := p.connect(); err != nil {
		return nil, err
	}

	go p.handleReconnect()

	logger.Info("RabbitMQ事件发布器已初始化", "exchange", exchangeName)
	return p, nil
}

func (p *RabbitMQPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		p.exchangeName, // name
		"topic",        // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	p.mu.Lock()
	p.conn = conn
	p.channel = channel
	p.mu.Unlock()
	return nil
}

// Publish 以JSON发布事件
func (p *RabbitMQPublisher) Publish(ctx context.Context, routingKey string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p.mu.Lock()
	channel := p.channel
	p.mu.Unlock()

	err = channel.PublishWithContext(
		ctx,
		p.exchangeName, // exchange
		routingKey,     // routing key
		false,          // mandatory
		false,          // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
			MessageId:    fmt.Sprintf("%d", time.Now().UnixNano()),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	p.logger.Debug("事件已发布", "routing_key", routingKey, "body_size", len(body))
	return nil
}

// handleReconnect 连接断开后每5秒重连一次
func (p *RabbitMQPublisher) handleReconnect() {
	for {
		p.mu.Lock()
		closeChan := p.conn.NotifyClose(make(chan *amqp.Error, 1))
		p.mu.Unlock()

		select {
		case <-p.closed:
			return
		case closeErr, ok := <-closeChan:
			if !ok || closeErr == nil {
				return
			}
			p.logger.Error("RabbitMQ连接断开，尝试重连", "error", closeErr)
		}

		for {
			select {
			case <-p.closed:
				return
			case <-time.After(5 * time.Second):
			}
			if err := p.connect(); err != nil {
				p.logger.Error("RabbitMQ重连失败", "error", err)
				continue
			}
			p.logger.Info("RabbitMQ重连成功")
			break
		}
	}
}

// Close 关闭通道和连接
func (p *RabbitMQPublisher) Close() error {
	close(p.closed)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.logger.Warn("关闭RabbitMQ通道失败", "error", err)
		}
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
