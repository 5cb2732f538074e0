package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/resthook/apikey"
	"github.com/xraph/resthook/catalog"
	"github.com/xraph/resthook/delivery"
	"github.com/xraph/resthook/deliverylog"
	"github.com/xraph/resthook/id"
	"github.com/xraph/resthook/internal/entity"
	"github.com/xraph/resthook/subscription"
)

// --- API key models ---

type apiKeyModel struct {
	grove.BaseModel `grove:"table:resthook_api_keys"`

	ID         string     `grove:"id,pk"`
	TenantID   string     `grove:"tenant_id"`
	Prefix     string     `grove:"prefix"`
	Hash       string     `grove:"hash,unique"`
	Label      string     `grove:"label"`
	Active     bool       `grove:"active"`
	ExpiresAt  *time.Time `grove:"expires_at"`
	LastUsedAt *time.Time `grove:"last_used_at"`
	RevokedAt  *time.Time `grove:"revoked_at"`
	CreatedAt  time.Time  `grove:"created_at"`
	UpdatedAt  time.Time  `grove:"updated_at"`
}

func toAPIKeyModel(k *apikey.Key) *apiKeyModel {
	return &apiKeyModel{
		ID:         k.ID.String(),
		TenantID:   k.TenantID,
		Prefix:     k.Prefix,
		Hash:       k.Hash,
		Label:      k.Label,
		Active:     k.Active,
		ExpiresAt:  k.ExpiresAt,
		LastUsedAt: k.LastUsedAt,
		RevokedAt:  k.RevokedAt,
		CreatedAt:  k.CreatedAt,
		UpdatedAt:  k.UpdatedAt,
	}
}

func fromAPIKeyModel(m *apiKeyModel) (*apikey.Key, error) {
	keyID, err := id.ParseAPIKeyID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse api key ID %q: %w", m.ID, err)
	}
	return &apikey.Key{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:         keyID,
		TenantID:   m.TenantID,
		Prefix:     m.Prefix,
		Hash:       m.Hash,
		Label:      m.Label,
		Active:     m.Active,
		ExpiresAt:  m.ExpiresAt,
		LastUsedAt: m.LastUsedAt,
		RevokedAt:  m.RevokedAt,
	}, nil
}

// --- Subscription models ---

type subscriptionModel struct {
	grove.BaseModel `grove:"table:resthook_subscriptions"`

	ID              string     `grove:"id,pk"`
	TenantID        string     `grove:"tenant_id"`
	EventType       string     `grove:"event_type"`
	TargetURL       string     `grove:"target_url"`
	Active          bool       `grove:"active"`
	LastTriggeredAt *time.Time `grove:"last_triggered_at"`
	LastError       string     `grove:"last_error"`
	FailureCount    int        `grove:"failure_count"`
	CreatedAt       time.Time  `grove:"created_at"`
	UpdatedAt       time.Time  `grove:"updated_at"`
}

func toSubscriptionModel(sub *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		ID:              sub.ID.String(),
		TenantID:        sub.TenantID,
		EventType:       string(sub.EventType),
		TargetURL:       sub.TargetURL,
		Active:          sub.Active,
		LastTriggeredAt: sub.LastTriggeredAt,
		LastError:       sub.LastError,
		FailureCount:    sub.FailureCount,
		CreatedAt:       sub.CreatedAt,
		UpdatedAt:       sub.UpdatedAt,
	}
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse subscription ID %q: %w", m.ID, err)
	}
	return &subscription.Subscription{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:              subID,
		TenantID:        m.TenantID,
		EventType:       catalog.EventType(m.EventType),
		TargetURL:       m.TargetURL,
		Active:          m.Active,
		LastTriggeredAt: m.LastTriggeredAt,
		LastError:       m.LastError,
		FailureCount:    m.FailureCount,
	}, nil
}

// --- Job models ---

type jobModel struct {
	grove.BaseModel `grove:"table:resthook_jobs"`

	ID             string     `grove:"id,pk"`
	EventID        string     `grove:"event_id"`
	SubscriptionID string     `grove:"subscription_id"`
	TenantID       string     `grove:"tenant_id"`
	EventType      string     `grove:"event_type"`
	TargetURL      string     `grove:"target_url"`
	Payload        string     `grove:"payload"` // JSON document
	Attempt        int        `grove:"attempt"`
	MaxAttempts    int        `grove:"max_attempts"`
	State          string     `grove:"state"`
	NextAttemptAt  time.Time  `grove:"next_attempt_at"`
	LeaseExpiresAt *time.Time `grove:"lease_expires_at"`
	LastError      string     `grove:"last_error"`
	LastStatusCode int        `grove:"last_status_code"`
	CompletedAt    *time.Time `grove:"completed_at"`
	CreatedAt      time.Time  `grove:"created_at"`
	UpdatedAt      time.Time  `grove:"updated_at"`
}

func toJobModel(j *delivery.Job) *jobModel {
	return &jobModel{
		ID:             j.ID.String(),
		EventID:        j.EventID.String(),
		SubscriptionID: j.SubscriptionID.String(),
		TenantID:       j.TenantID,
		EventType:      string(j.EventType),
		TargetURL:      j.TargetURL,
		Payload:        string(j.Payload),
		Attempt:        j.Attempt,
		MaxAttempts:    j.MaxAttempts,
		State:          string(j.State),
		NextAttemptAt:  j.NextAttemptAt,
		LeaseExpiresAt: j.LeaseExpiresAt,
		LastError:      j.LastError,
		LastStatusCode: j.LastStatusCode,
		CompletedAt:    j.CompletedAt,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
	}
}

func fromJobModel(m *jobModel) (*delivery.Job, error) {
	jobID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse job ID %q: %w", m.ID, err)
	}
	evtID, err := id.ParseEventID(m.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", m.EventID, err)
	}
	subID, err := id.ParseSubscriptionID(m.SubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("parse subscription ID %q: %w", m.SubscriptionID, err)
	}

	var payload json.RawMessage
	if m.Payload != "" {
		payload = json.RawMessage(m.Payload)
	}

	return &delivery.Job{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             jobID,
		EventID:        evtID,
		SubscriptionID: subID,
		TenantID:       m.TenantID,
		EventType:      catalog.EventType(m.EventType),
		TargetURL:      m.TargetURL,
		Payload:        payload,
		Attempt:        m.Attempt,
		MaxAttempts:    m.MaxAttempts,
		State:          delivery.State(m.State),
		NextAttemptAt:  m.NextAttemptAt,
		LeaseExpiresAt: m.LeaseExpiresAt,
		LastError:      m.LastError,
		LastStatusCode: m.LastStatusCode,
		CompletedAt:    m.CompletedAt,
	}, nil
}

// --- Delivery log models ---

type entryModel struct {
	grove.BaseModel `grove:"table:resthook_delivery_log"`

	ID             string     `grove:"id,pk"`
	JobID          string     `grove:"job_id"`
	SubscriptionID string     `grove:"subscription_id"`
	TenantID       string     `grove:"tenant_id"`
	EventType      string     `grove:"event_type"`
	Payload        string     `grove:"payload"`
	Attempt        int        `grove:"attempt"`
	Status         string     `grove:"status"`
	StatusCode     int        `grove:"status_code"`
	ResponseBody   string     `grove:"response_body"`
	Error          string     `grove:"error"`
	LatencyMs      int        `grove:"latency_ms"`
	CompletedAt    *time.Time `grove:"completed_at"`
	CreatedAt      time.Time  `grove:"created_at"`
	UpdatedAt      time.Time  `grove:"updated_at"`
}

func toEntryModel(e *deliverylog.Entry) *entryModel {
	return &entryModel{
		ID:             e.ID.String(),
		JobID:          e.JobID.String(),
		SubscriptionID: e.SubscriptionID.String(),
		TenantID:       e.TenantID,
		EventType:      string(e.EventType),
		Payload:        string(e.Payload),
		Attempt:        e.Attempt,
		Status:         string(e.Status),
		StatusCode:     e.StatusCode,
		ResponseBody:   e.ResponseBody,
		Error:          e.Error,
		LatencyMs:      e.LatencyMs,
		CompletedAt:    e.CompletedAt,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

func fromEntryModel(m *entryModel) (*deliverylog.Entry, error) {
	entryID, err := id.ParseLogEntryID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse log entry ID %q: %w", m.ID, err)
	}
	jobID, err := id.ParseJobID(m.JobID)
	if err != nil {
		return nil, fmt.Errorf("parse job ID %q: %w", m.JobID, err)
	}
	subID, err := id.ParseSubscriptionID(m.SubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("parse subscription ID %q: %w", m.SubscriptionID, err)
	}

	var payload json.RawMessage
	if m.Payload != "" {
		payload = json.RawMessage(m.Payload)
	}

	return &deliverylog.Entry{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             entryID,
		JobID:          jobID,
		SubscriptionID: subID,
		TenantID:       m.TenantID,
		EventType:      catalog.EventType(m.EventType),
		Payload:        payload,
		Attempt:        m.Attempt,
		Status:         deliverylog.Status(m.Status),
		StatusCode:     m.StatusCode,
		ResponseBody:   m.ResponseBody,
		Error:          m.Error,
		LatencyMs:      m.LatencyMs,
		CompletedAt:    m.CompletedAt,
	}, nil
}
