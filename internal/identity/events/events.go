// Package events publishes lifecycle notifications to the background
// task queue. Delivery is best effort: callers treat a failed publish
// as a logging problem, never as a failure of the operation that
// triggered it.
package events

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/cobaltgrid/identity/pkg/slogx"
)

// Task type names
const (
	TypeInvitationCreated = "identity:invitation_created"
)

// InvitationCreatedPayload carries everything a downstream mailer
// needs to deliver an invitation. Token is the raw invitation token;
// it exists only in flight and is never persisted.
type InvitationCreatedPayload struct {
	InvitationID      string `json:"invitation_id"`
	Email             string `json:"email"`
	Token             string `json:"token"`
	AuthType          string `json:"auth_type"`
	TemporaryPassword string `json:"temporary_password,omitempty"`
}

// Publisher enqueues a typed event payload.
type Publisher interface {
	Publish(ctx context.Context, taskType string, payload any) error
}

// AsynqPublisher enqueues events on a Redis-backed asynq queue.
type AsynqPublisher struct {
	client *asynq.Client
}

func NewAsynqPublisher(redisAddr, redisPassword string) *AsynqPublisher {
	return &AsynqPublisher{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     redisAddr,
			Password: redisPassword,
		}),
	}
}

func (p *AsynqPublisher) Publish(ctx context.Context, taskType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = p.client.EnqueueContext(ctx, asynq.NewTask(taskType, data))
	return err
}

func (p *AsynqPublisher) Close() error { return p.client.Close() }

// LogPublisher stands in when no queue is configured. Events are
// recorded in the service log instead of delivered.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, taskType string, payload any) error {
	slogx.FromContext(ctx).Info("event published without queue backend", "task_type", taskType)
	return nil
}
