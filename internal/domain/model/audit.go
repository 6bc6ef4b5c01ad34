package model

import "time"

type AuditEventType string

const (
	AuditExecutorCreate AuditEventType = "executor.create"
	AuditWorkloadCreate AuditEventType = "workload.create"
	AuditServiceCreate  AuditEventType = "service.create"
	AuditWorkloadDelete AuditEventType = "workload.delete"
	AuditWorkloadList   AuditEventType = "workload.list"
)

type AuditOutcome string

const (
	AuditOutcomeSuccess AuditOutcome = "success"
	AuditOutcomeFailure AuditOutcome = "failure"
	AuditOutcomePartial AuditOutcome = "partial"
)

type AuditLog struct {
	ID          string            `json:"id"`
	EventType   AuditEventType    `json:"event_type"`
	Namespace   string            `json:"namespace"`
	Name        string            `json:"name"`
	Outcome     AuditOutcome      `json:"outcome"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata"`
	CreatedAt   time.Time         `json:"created_at"`
}

func NewAuditLog(eventType AuditEventType, namespace, name string, outcome AuditOutcome, description string) AuditLog {
	return AuditLog{
		ID:          generateID(),
		EventType:   eventType,
		Namespace:   namespace,
		Name:        name,
		Outcome:     outcome,
		Description: description,
		Metadata:    make(map[string]string),
		CreatedAt:   time.Now().UTC(),
	}
}

func (a AuditLog) WithMetadata(key, value string) AuditLog {
	meta := make(map[string]string, len(a.Metadata)+1)
	for k, v := range a.Metadata {
		meta[k] = v
	}
	meta[key] = value
	a.Metadata = meta
	return a
}
