package mq

import (
	"context"
	"errors"
	"math/rand"
	"sync"

	"fuzzforge/config"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const connectionPoolSize = 4

type RabbitMQ interface {
	GetChannel() *amqp.Channel
}

type rabbitMQImpl struct {
	logger      *zap.Logger
	rabbitmqUrl string
	context     context.Context
	connections []*mqConnection
	mu          sync.Mutex
}

type mqConnection struct {
	conn      *amqp.Connection
	closeChan chan *amqp.Error
	logger    *zap.Logger

	closed bool
	mu     sync.Mutex
}

type RabbitMQParams struct {
	fx.In

	Config    *config.AppConfig
	Logger    *zap.Logger
	Lifecycle fx.Lifecycle
}

// NewRabbitMQ maintains a small pool of broker connections, replacing
// members as the broker drops them. Without a configured RABBITMQ_URL
// event publishing is off and GetChannel always returns nil.
func NewRabbitMQ(p RabbitMQParams) RabbitMQ {
	if p.Config.RabbitMQURL == "" {
		p.Logger.Debug("no rabbitmq configured, event publishing disabled")
		return disabledMQ{}
	}

	mqCtx, cancel := context.WithCancel(context.Background())

	svc := &rabbitMQImpl{
		logger:      p.Logger,
		rabbitmqUrl: p.Config.RabbitMQURL,
		context:     mqCtx,
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			svc.logger.Debug("Initializing RabbitMQ connection pool", zap.Int("pool_size", connectionPoolSize))
			svc.mu.Lock()
			defer svc.mu.Unlock()
			for range connectionPoolSize {
				mConn, err := svc.dial()
				if err != nil {
					svc.logger.Error("Failed to create initial RabbitMQ connection", zap.Error(err))
					return err
				}
				svc.connections = append(svc.connections, mConn)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			return nil
		},
	})
	return svc
}

// lease picks a random live connection, refilling the pool first when
// the broker has dropped some.
func (r *rabbitMQImpl) lease() (*mqConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	alive := r.connections[:0]
	for _, c := range r.connections {
		c.mu.Lock()
		if !c.closed {
			alive = append(alive, c)
		}
		c.mu.Unlock()
	}
	r.connections = alive

	for len(r.connections) < connectionPoolSize {
		mConn, err := r.dial()
		if err != nil {
			r.logger.Error("Failed to create new RabbitMQ connection", zap.Error(err))
			break
		}
		r.connections = append(r.connections, mConn)
	}

	if len(r.connections) == 0 {
		return nil, errors.New("no active RabbitMQ connections")
	}
	return r.connections[rand.Intn(len(r.connections))], nil
}

func (r *rabbitMQImpl) dial() (*mqConnection, error) {
	conn, err := amqp.Dial(r.rabbitmqUrl)
	if err != nil {
		return nil, err
	}

	mConn := &mqConnection{
		conn:      conn,
		closeChan: make(chan *amqp.Error),
		logger:    r.logger,
	}

	go mConn.monitor(r.context)

	return mConn, nil
}

// monitor blocks until the broker closes the connection or the app
// shuts down, then marks the member dead.
func (c *mqConnection) monitor(ctx context.Context) {
	c.conn.NotifyClose(c.closeChan)

	select {
	case err := <-c.closeChan:
		c.logger.Error("RabbitMQ connection closed", zap.Error(err))
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
	case <-ctx.Done():
	}

	c.conn.Close()
}

func (r *rabbitMQImpl) GetChannel() *amqp.Channel {
	conn, err := r.lease()
	if err != nil {
		r.logger.Error("Failed to get RabbitMQ channel", zap.Error(err))
		return nil
	}

	ch, err := conn.conn.Channel()
	if err != nil {
		r.logger.Error("Failed to create RabbitMQ channel", zap.Error(err))
		return nil
	}

	return ch
}

type disabledMQ struct{}

func (disabledMQ) GetChannel() *amqp.Channel { return nil }
