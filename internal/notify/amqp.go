package notify

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// DefaultAMQPQueue 是未配置队列名时订阅的推送队列。
const DefaultAMQPQueue = "offline-agent.push"

// AMQPConfig 描述推送源的连接参数。
type AMQPConfig struct {
	URL   string
	Queue string
}

// Pusher 是 AMQPSource 投递推送的目标，*Relay 满足该接口。
type Pusher interface {
	Push(ctx context.Context, raw []byte) (Notification, error)
}

// AMQPSource 从 RabbitMQ 队列读取推送消息并交给 Relay 展示。
type AMQPSource struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	queue  string
	logger *logrus.Logger
}

// NewAMQPSource 连接 broker 并声明推送队列。
func NewAMQPSource(cfg AMQPConfig, logger *logrus.Logger) (*AMQPSource, error) {
	if cfg.URL == "" {
		return nil, errors.New("amqp url required")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = DefaultAMQPQueue
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("set amqp qos: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare amqp queue: %w", err)
	}
	return &AMQPSource{conn: conn, ch: ch, queue: queue, logger: logger}, nil
}

// Run 以手动确认模式消费，直到 ctx 取消或通道关闭。
func (s *AMQPSource) Run(ctx context.Context, pusher Pusher) error {
	if s == nil || s.ch == nil {
		return errors.New("amqp source not initialised")
	}
	msgs, err := s.ch.Consume(s.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume amqp queue: %w", err)
	}
	return consumeDeliveries(ctx, msgs, pusher, s.logger)
}

// consumeDeliveries 逐条展示推送。展示失败的消息 Nack 且不重新入队，避免坏消息反复投递。
func consumeDeliveries(ctx context.Context, msgs <-chan amqp.Delivery, pusher Pusher, logger *logrus.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			if _, err := pusher.Push(ctx, msg.Body); err != nil {
				if logger != nil {
					logger.WithError(err).WithField("action", "amqp_push").Warn("push_delivery_failed")
				}
				_ = msg.Nack(false, false)
				continue
			}
			_ = msg.Ack(false)
		}
	}
}

// Close 关闭 channel 与连接。
func (s *AMQPSource) Close() error {
	if s == nil {
		return nil
	}
	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
