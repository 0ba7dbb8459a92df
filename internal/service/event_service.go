package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/certify-go-api/internal/dto"
	"github.com/noah-isme/certify-go-api/internal/observability"
)

const eventBufferSize = 16

// WorkflowEventService fans workflow transition events out to admin
// dashboards via SSE, bridging nodes over Redis pub/sub and NATS.
type WorkflowEventService interface {
	TransitionPublisher
	Subscribe() (<-chan dto.WorkflowEvent, func())
	Start(ctx context.Context)
}

type workflowEventService struct {
	redis       *redis.Client
	redisStream string
	nats        *nats.Conn
	natsSubject string
	logger      zerolog.Logger
	broker      *eventBroker
	nodeID      string
}

type transitionEnvelope struct {
	Source string            `json:"source"`
	Event  dto.WorkflowEvent `json:"event"`
	SentAt time.Time         `json:"sent_at"`
}

type eventBroker struct {
	mu          sync.RWMutex
	subscribers map[chan dto.WorkflowEvent]struct{}
}

// NewWorkflowEventService constructs the event fan-out service. Both the
// Redis client and the NATS connection may be nil; the broker then stays
// node-local.
func NewWorkflowEventService(redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) WorkflowEventService {
	stream := ""
	subject := ""
	if channelBase != "" {
		stream = channelBase + ":workflow-events"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".workflow-events"
	}

	return &workflowEventService{
		redis:       redisClient,
		redisStream: stream,
		nats:        natsConn,
		natsSubject: subject,
		logger:      logger.With().Str("component", "workflow_event_service").Logger(),
		broker:      &eventBroker{subscribers: make(map[chan dto.WorkflowEvent]struct{})},
		nodeID:      uuid.NewString(),
	}
}

func (s *workflowEventService) Start(ctx context.Context) {
	if s.redis != nil && s.redisStream != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		go s.consumeNATS(ctx)
	}
}

func (s *workflowEventService) PublishTransition(ctx context.Context, event dto.WorkflowEvent) {
	s.broker.broadcast(event)

	envelope := transitionEnvelope{
		Source: s.nodeID,
		Event:  event,
		SentAt: time.Now().UTC(),
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode workflow event")
		return
	}

	if s.redis != nil && s.redisStream != "" {
		if err := s.redis.Publish(ctx, s.redisStream, payload).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to publish workflow event to redis")
		}
	}

	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			s.logger.Warn().Err(err).Msg("failed to publish workflow event to nats")
		}
	}
}

func (s *workflowEventService) Subscribe() (<-chan dto.WorkflowEvent, func()) {
	channel := make(chan dto.WorkflowEvent, eventBufferSize)

	s.broker.subscribe(channel)
	observability.SSEClientsActive().Inc()

	cleanup := func() {
		s.broker.unsubscribe(channel)
		observability.SSEClientsActive().Dec()
	}

	return channel, cleanup
}

func (s *workflowEventService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisStream)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error().Err(err).Msg("workflow event redis subscription closed")
			return
		}
		s.handleEnvelope([]byte(msg.Payload))
	}
}

func (s *workflowEventService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.QueueSubscribe(s.natsSubject, "certify-workflow-events", func(msg *nats.Msg) {
		s.handleEnvelope(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats workflow events subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain workflow event nats subscription")
		}
	}()
}

func (s *workflowEventService) handleEnvelope(payload []byte) {
	var envelope transitionEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		s.logger.Warn().Err(err).Msg("invalid workflow event payload")
		return
	}

	if envelope.Source == s.nodeID {
		return
	}

	s.broker.broadcast(envelope.Event)
}

func (b *eventBroker) subscribe(ch chan dto.WorkflowEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[ch] = struct{}{}
}

func (b *eventBroker) unsubscribe(ch chan dto.WorkflowEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
}

func (b *eventBroker) broadcast(event dto.WorkflowEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
