package blacklist

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"ipblacklist/internal/domain"
)

const DefaultEventChannel = "ipblacklist:entries"

type EventKind string

const (
	EventRegistered EventKind = "registered"
	EventAttributed EventKind = "attributed"
	EventDeleted    EventKind = "deleted"
)

// Event describes a committed change to an entry.
type Event struct {
	Kind      EventKind `json:"event"`
	ID        uint64    `json:"id"`
	BlackIP   string    `json:"blackIp"`
	Frequency int       `json:"frequency"`
	ClientID  string    `json:"clientId,omitempty"`
}

func newEvent(kind EventKind, entry domain.BlacklistEntry, clientID string) Event {
	return Event{
		Kind:      kind,
		ID:        entry.ID,
		BlackIP:   entry.BlackIP,
		Frequency: entry.Frequency(),
		ClientID:  clientID,
	}
}

// EventPublisher fans out entry changes to interested parties such as edge enforcers.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// LogPublisher writes events to the process log. It is used when Redis is not configured.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, event Event) error {
	log.Debug("Blacklist event", "event", event.Kind, "id", event.ID, "ip", event.BlackIP, "frequency", event.Frequency, "client_id", event.ClientID)
	return nil
}

type RedisPublisher struct {
	rdb     *redis.Client
	channel string
}

func NewRedisPublisher(rdb *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultEventChannel
	}
	return &RedisPublisher{rdb: rdb, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.channel, err)
	}
	return nil
}
