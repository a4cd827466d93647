package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	EncodingJSON     = "json"
	EncodingProtobuf = "protobuf"

	routingPrefix = "asset."
)

// RabbitPublisher publishes notifications to a RabbitMQ topic exchange with
// routing key "asset.<event>".
type RabbitPublisher struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	encoding string
	logger   *zap.Logger
}

// NewRabbitPublisher dials url and declares the exchange.
func NewRabbitPublisher(url, exchange, encoding string, logger *zap.Logger) (*RabbitPublisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "dial rabbitmq")
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "declare exchange %s", exchange)
	}
	return &RabbitPublisher{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		encoding: encoding,
		logger:   logger,
	}, nil
}

func (p *RabbitPublisher) Notify(ctx context.Context, n Notification) error {
	if p == nil {
		return nil
	}
	msg, err := Encode(n, p.encoding)
	if err != nil {
		return err
	}

	// amqp091 channels are not safe for concurrent publishing.
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.channel.PublishWithContext(ctx, p.exchange, routingPrefix+n.Event, false, false, msg); err != nil {
		return errors.Wrapf(err, "publish %s", n.Event)
	}
	return nil
}

// Close terminates the connection.
func (p *RabbitPublisher) Close() error {
	if p == nil {
		return nil
	}
	if err := p.channel.Close(); err != nil {
		p.logger.Warn("Failed to close rabbitmq channel", zap.Error(err))
	}
	return p.conn.Close()
}

// Encode renders n as an AMQP publishing in the requested encoding.
func Encode(n Notification, encoding string) (amqp091.Publishing, error) {
	msg := amqp091.Publishing{
		DeliveryMode: amqp091.Persistent,
		Timestamp:    n.CreatedAt,
		Type:         n.Event,
	}
	switch encoding {
	case EncodingJSON, "":
		body, err := json.Marshal(n)
		if err != nil {
			return msg, errors.Wrap(err, "marshal notification")
		}
		msg.ContentType = "application/json"
		msg.Body = body
	case EncodingProtobuf:
		st, err := toStruct(n)
		if err != nil {
			return msg, err
		}
		body, err := proto.Marshal(st)
		if err != nil {
			return msg, errors.Wrap(err, "marshal notification")
		}
		msg.ContentType = "application/x-protobuf"
		msg.Body = body
	default:
		return msg, errors.Errorf("unknown encoding %q", encoding)
	}
	return msg, nil
}

// Decode reverses Encode for consumers and tests.
func Decode(msg amqp091.Publishing) (map[string]any, error) {
	switch msg.ContentType {
	case "application/json":
		var out map[string]any
		if err := json.Unmarshal(msg.Body, &out); err != nil {
			return nil, errors.Wrap(err, "unmarshal notification")
		}
		return out, nil
	case "application/x-protobuf":
		var st structpb.Struct
		if err := proto.Unmarshal(msg.Body, &st); err != nil {
			return nil, errors.Wrap(err, "unmarshal notification")
		}
		return st.AsMap(), nil
	default:
		return nil, errors.Errorf("unsupported content type %q", msg.ContentType)
	}
}

func toStruct(n Notification) (*structpb.Struct, error) {
	users := make([]any, len(n.UserIDs))
	for i, id := range n.UserIDs {
		users[i] = id.String()
	}
	st, err := structpb.NewStruct(map[string]any{
		"user_ids":    users,
		"title":       n.Title,
		"content":     n.Content,
		"event":       n.Event,
		"entity_type": n.EntityType,
		"entity_id":   n.EntityID.String(),
		"created_at":  n.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, errors.Wrap(err, "build protobuf struct")
	}
	return st, nil
}
