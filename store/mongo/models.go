package mongo

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

	ID         string     `grove:"id,pk"        bson:"_id"`
	TenantID   string     `grove:"tenant_id"    bson:"tenant_id"`
	Prefix     string     `grove:"prefix"       bson:"prefix"`
	Hash       string     `grove:"hash,unique"  bson:"hash"`
	Label      string     `grove:"label"        bson:"label"`
	Active     bool       `grove:"active"       bson:"active"`
	ExpiresAt  *time.Time `grove:"expires_at"   bson:"expires_at,omitempty"`
	LastUsedAt *time.Time `grove:"last_used_at" bson:"last_used_at,omitempty"`
	RevokedAt  *time.Time `grove:"revoked_at"   bson:"revoked_at,omitempty"`
	CreatedAt  time.Time  `grove:"created_at"   bson:"created_at"`
	UpdatedAt  time.Time  `grove:"updated_at"   bson:"updated_at"`
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

	ID              string     `grove:"id,pk"             bson:"_id"`
	TenantID        string     `grove:"tenant_id"         bson:"tenant_id"`
	EventType       string     `grove:"event_type"        bson:"event_type"`
	TargetURL       string     `grove:"target_url"        bson:"target_url"`
	Active          bool       `grove:"active"            bson:"active"`
	LastTriggeredAt *time.Time `grove:"last_triggered_at" bson:"last_triggered_at,omitempty"`
	LastError       string     `grove:"last_error"        bson:"last_error"`
	FailureCount    int        `grove:"failure_count"     bson:"failure_count"`
	CreatedAt       time.Time  `grove:"created_at"        bson:"created_at"`
	UpdatedAt       time.Time  `grove:"updated_at"        bson:"updated_at"`
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

	ID             string          `grove:"id,pk"            bson:"_id"`
	EventID        string          `grove:"event_id"         bson:"event_id"`
	SubscriptionID string          `grove:"subscription_id"  bson:"subscription_id"`
	TenantID       string          `grove:"tenant_id"        bson:"tenant_id"`
	EventType      string          `grove:"event_type"       bson:"event_type"`
	TargetURL      string          `grove:"target_url"       bson:"target_url"`
	Payload        json.RawMessage `grove:"payload"          bson:"payload,omitempty"`
	Attempt        int             `grove:"attempt"          bson:"attempt"`
	MaxAttempts    int             `grove:"max_attempts"     bson:"max_attempts"`
	State          string          `grove:"state"            bson:"state"`
	NextAttemptAt  time.Time       `grove:"next_attempt_at"  bson:"next_attempt_at"`
	LeaseExpiresAt *time.Time      `grove:"lease_expires_at" bson:"lease_expires_at,omitempty"`
	LastError      string          `grove:"last_error"       bson:"last_error"`
	LastStatusCode int             `grove:"last_status_code" bson:"last_status_code"`
	CompletedAt    *time.Time      `grove:"completed_at"     bson:"completed_at,omitempty"`
	CreatedAt      time.Time       `grove:"created_at"       bson:"created_at"`
	UpdatedAt      time.Time       `grove:"updated_at"       bson:"updated_at"`
}

func toJobModel(j *delivery.Job) *jobModel {
	return &jobModel{
		ID:             j.ID.String(),
		EventID:        j.EventID.String(),
		SubscriptionID: j.SubscriptionID.String(),
		TenantID:       j.TenantID,
		EventType:      string(j.EventType),
		TargetURL:      j.TargetURL,
		Payload:        j.Payload,
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
		Payload:        m.Payload,
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

	ID             string          `grove:"id,pk"           bson:"_id"`
	JobID          string          `grove:"job_id"          bson:"job_id"`
	SubscriptionID string          `grove:"subscription_id" bson:"subscription_id"`
	TenantID       string          `grove:"tenant_id"       bson:"tenant_id"`
	EventType      string          `grove:"event_type"      bson:"event_type"`
	Payload        json.RawMessage `grove:"payload"         bson:"payload,omitempty"`
	Attempt        int             `grove:"attempt"         bson:"attempt"`
	Status         string          `grove:"status"          bson:"status"`
	StatusCode     int             `grove:"status_code"     bson:"status_code"`
	ResponseBody   string          `grove:"response_body"   bson:"response_body"`
	Error          string          `grove:"error"           bson:"error"`
	LatencyMs      int             `grove:"latency_ms"      bson:"latency_ms"`
	CompletedAt    *time.Time      `grove:"completed_at"    bson:"completed_at,omitempty"`
	CreatedAt      time.Time       `grove:"created_at"      bson:"created_at"`
	UpdatedAt      time.Time       `grove:"updated_at"      bson:"updated_at"`
}

func toEntryModel(e *deliverylog.Entry) *entryModel {
	return &entryModel{
		ID:             e.ID.String(),
		JobID:          e.JobID.String(),
		SubscriptionID: e.SubscriptionID.String(),
		TenantID:       e.TenantID,
		EventType:      string(e.EventType),
		Payload:        e.Payload,
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
		Payload:        m.Payload,
		Attempt:        m.Attempt,
		Status:         deliverylog.Status(m.Status),
		StatusCode:     m.StatusCode,
		ResponseBody:   m.ResponseBody,
		Error:          m.Error,
		LatencyMs:      m.LatencyMs,
		CompletedAt:    m.CompletedAt,
	}, nil
}
