// Package audit records who changed what.
package audit

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"proxy_manager/internal/access"
	"proxy_manager/internal/model"
)

// Channel is the Redis channel audit events are published on
const Channel = "proxy_manager:audit"

// Actions
const (
	ActionCreated  = "created"
	ActionUpdated  = "updated"
	ActionDeleted  = "deleted"
	ActionEnabled  = "enabled"
	ActionDisabled = "disabled"
	ActionRenewed  = "renewed"
)

// Store persists audit records
type Store interface {
	InsertAuditLog(ctx context.Context, entry *model.AuditLog) error
}

// Publisher is the subset of the Redis client used for fan-out
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Broadcaster pushes stored records to live clients
type Broadcaster interface {
	BroadcastAudit(entry *model.AuditLog)
}

// Recorder is what the engine calls after a successful mutation
type Recorder interface {
	Record(ctx context.Context, action, objectType string, objectID int, meta map[string]interface{}) error
}

// Log writes audit records to the store, then publishes them. Publishing is
// best effort.
type Log struct {
	store       Store
	publisher   Publisher
	broadcaster Broadcaster
	logger      *logrus.Entry
}

// Option configures a Log
type Option func(*Log)

// WithPublisher publishes every record on Channel
func WithPublisher(p Publisher) Option {
	return func(l *Log) { l.publisher = p }
}

// WithBroadcaster forwards every record to live clients
func WithBroadcaster(b Broadcaster) Option {
	return func(l *Log) { l.broadcaster = b }
}

// New creates a Log
func New(store Store, logger *logrus.Entry, opts ...Option) *Log {
	l := &Log{store: store, logger: logger.WithField("component", "audit")}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record stores one audit record attributed to the principal of ctx
func (l *Log) Record(ctx context.Context, action, objectType string, objectID int, meta map[string]interface{}) error {
	entry := &model.AuditLog{
		UserID:     access.UserID(ctx),
		Action:     action,
		ObjectType: objectType,
		ObjectID:   objectID,
		Meta:       datatypes.JSONMap(meta),
	}
	if err := l.store.InsertAuditLog(ctx, entry); err != nil {
		return err
	}

	l.logger.WithFields(logrus.Fields{
		"user_id":     entry.UserID,
		"object_type": objectType,
		"object_id":   objectID,
	}).Infof("audit: %s", action)

	if l.publisher != nil {
		payload, err := json.Marshal(entry)
		if err != nil {
			l.logger.WithError(err).Warn("Could not encode audit event")
		} else if err := l.publisher.Publish(ctx, Channel, payload).Err(); err != nil {
			l.logger.WithError(err).Warn("Could not publish audit event")
		}
	}
	if l.broadcaster != nil {
		l.broadcaster.BroadcastAudit(entry)
	}
	return nil
}

// Discard drops every record
type Discard struct{}

// Record implements Recorder
func (Discard) Record(context.Context, string, string, int, map[string]interface{}) error {
	return nil
}
