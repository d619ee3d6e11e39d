package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/stemsplit/api/internal/model"
)

// Publisher sends job progress to the events channel. Workers run in other
// processes, so events travel over redis pub/sub to every REST node.
type Publisher struct {
	redis   redis.UniversalClient
	channel string
	logger  *slog.Logger
}

func NewPublisher(redisClient redis.UniversalClient, channel string, logger *slog.Logger) *Publisher {
	return &Publisher{
		redis:   redisClient,
		channel: channel,
		logger:  logger,
	}
}

// Progress reports that a job entered a stage
func (p *Publisher) Progress(ctx context.Context, hash, stage, part string) {
	p.publish(ctx, model.WSProgressMessage{
		Type:   model.WSMessageTypeProgress,
		Hash:   hash,
		Status: model.JobStatusRunning,
		Stage:  stage,
		Part:   part,
	})
}

// Complete reports the published parts of a finished job
func (p *Publisher) Complete(ctx context.Context, hash string, parts []string) {
	if parts == nil {
		parts = []string{}
	}
	p.publish(ctx, model.WSCompleteMessage{
		Type:  model.WSMessageTypeComplete,
		Hash:  hash,
		Parts: parts,
	})
}

// Fail reports a dropped job
func (p *Publisher) Fail(ctx context.Context, hash, code, message string) {
	p.publish(ctx, model.WSErrorMessage{
		Type:  model.WSMessageTypeError,
		Hash:  hash,
		Error: model.WSError{Code: code, Message: message},
	})
}

// publish is best effort; progress is never worth failing a job over
func (p *Publisher) publish(ctx context.Context, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		p.logger.Error("failed to marshal event", slog.Any("error", err))
		return
	}
	if err := p.redis.Publish(ctx, p.channel, data).Err(); err != nil {
		p.logger.Warn("failed to publish event", slog.Any("error", err))
	}
}

// Relay forwards events from the channel to local hub subscribers
type Relay struct {
	pubsub *redis.PubSub
	hub    *Hub
	logger *slog.Logger
}

// NewRelay subscribes to channel and waits for the confirmation
func NewRelay(ctx context.Context, redisClient redis.UniversalClient, channel string, hub *Hub, logger *slog.Logger) (*Relay, error) {
	pubsub := redisClient.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}
	return &Relay{pubsub: pubsub, hub: hub, logger: logger}, nil
}

// Run delivers messages until ctx is cancelled
func (r *Relay) Run(ctx context.Context) {
	defer r.pubsub.Close()

	ch := r.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var envelope model.WSMessage
			if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil || envelope.Hash == "" {
				r.logger.Warn("dropping unreadable event", slog.String("payload", msg.Payload))
				continue
			}
			if r.hub.Subscribers(envelope.Hash) == 0 {
				continue
			}
			r.hub.Broadcast(envelope.Hash, []byte(msg.Payload))
		}
	}
}
