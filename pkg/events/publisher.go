// Package events announces harvested articles on an AMQP topic exchange.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"mpscraper/pkg/config"
	"mpscraper/pkg/logger"
	"mpscraper/pkg/models"
	"mpscraper/pkg/retry"
)

// EventArticleHarvested is the event name of HarvestedMessage
const EventArticleHarvested = "article.harvested"

// HarvestedMessage is published once per persisted article. The article
// body is left out; consumers read it from storage.
type HarvestedMessage struct {
	Event      string    `json:"event"`
	Timestamp  time.Time `json:"timestamp"`
	Article    Summary   `json:"article"`
	LocalDir   string    `json:"local_dir,omitempty"`
	HasContent bool      `json:"has_content"`
}

// Summary is the article part of HarvestedMessage
type Summary struct {
	Account     string   `json:"account"`
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	PublishTime int64    `json:"publish_time"`
	Digest      string   `json:"digest,omitempty"`
	Author      string   `json:"author,omitempty"`
	Images      []string `json:"images,omitempty"`
	Videos      []string `json:"videos,omitempty"`
}

// Publisher announces persisted articles
type Publisher interface {
	PublishArticleHarvested(ctx context.Context, a *models.Article, localDir string) error
	Close() error
}

// PublishingChannel is the subset of *amqp.Channel the publisher uses
type PublishingChannel interface {
	PublishWithContext(
		ctx context.Context,
		exchange, key string,
		mandatory, immediate bool,
		msg amqp.Publishing,
	) error
	Close() error
}

// RabbitPublisher publishes to a durable topic exchange
type RabbitPublisher struct {
	conn       *amqp.Connection
	ch         PublishingChannel
	exchange   string
	routingKey string
	logger     logger.Logger
	now        func() time.Time
}

// NewRabbitPublisher dials the broker, retrying with exponential backoff
// until ctx is done, and declares the exchange.
func NewRabbitPublisher(ctx context.Context, cfg config.EventsConfig, log logger.Logger) (*RabbitPublisher, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	retryCfg := &retry.Config{
		MaxAttempts: 5,
		Backoff:     retry.DefaultExponentialBackoff(),
		RetryIf:     func(error) bool { return true },
		Context:     ctx,
		Logger:      log,
	}
	conn, err := retry.DoWithResult(func() (*amqp.Connection, error) {
		return amqp.Dial(cfg.URL)
	}, retryCfg)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq connection failed: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel creation failed: %w", err)
	}

	if err := ch.ExchangeDeclare(
		cfg.Exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("exchange declare failed: %w", err)
	}

	log.InfoWithFields("Connected to event broker", map[string]interface{}{
		"exchange":    cfg.Exchange,
		"routing_key": cfg.RoutingKey,
	})

	return newRabbitPublisher(conn, ch, cfg, log), nil
}

func newRabbitPublisher(conn *amqp.Connection, ch PublishingChannel, cfg config.EventsConfig, log logger.Logger) *RabbitPublisher {
	routingKey := cfg.RoutingKey
	if routingKey == "" {
		routingKey = EventArticleHarvested
	}
	return &RabbitPublisher{
		conn:       conn,
		ch:         ch,
		exchange:   cfg.Exchange,
		routingKey: routingKey,
		logger:     log,
		now:        time.Now,
	}
}

// Close closes the channel and the connection
func (p *RabbitPublisher) Close() error {
	var err error
	if p.ch != nil {
		err = p.ch.Close()
	}
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// PublishArticleHarvested implements Publisher
func (p *RabbitPublisher) PublishArticleHarvested(ctx context.Context, a *models.Article, localDir string) error {
	body, err := json.Marshal(HarvestedMessage{
		Event:     EventArticleHarvested,
		Timestamp: p.now().UTC(),
		Article: Summary{
			Account:     a.AccountName,
			Title:       a.Title,
			URL:         a.URL,
			PublishTime: a.PublishEpoch,
			Digest:      a.Digest,
			Author:      a.Author,
			Images:      a.Images,
			Videos:      a.Videos,
		},
		LocalDir:   localDir,
		HasContent: a.HasContent(),
	})
	if err != nil {
		return err
	}

	return p.ch.PublishWithContext(
		ctx,
		p.exchange,
		p.routingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    a.URL,
			Body:         body,
		},
	)
}

// Nop discards every event
type Nop struct{}

func (Nop) PublishArticleHarvested(context.Context, *models.Article, string) error { return nil }
func (Nop) Close() error                                                           { return nil }
