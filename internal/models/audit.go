package models

import (
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

const (
	DecisionAllowed = "allowed"
	DecisionDenied  = "denied"
)

// AuditLog records one authorization decision on a task mutation.
type AuditLog struct {
	ID         uuid.UUID `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID     uuid.UUID `json:"user_id" gorm:"type:varchar(36);not null"`
	Action     string    `json:"action" gorm:"not null"`
	Resource   string    `json:"resource" gorm:"not null"`
	ResourceID uuid.UUID `json:"resource_id" gorm:"type:varchar(36)"`
	Decision   string    `json:"decision" gorm:"not null"`
	Reason     string    `json:"reason"`
	RequestID  string    `json:"request_id"`
	CreatedAt  time.Time `json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		a.ID = id
	}
	return nil
}

// AuthorizationDecision is the outcome of a task access check.
type AuthorizationDecision struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
}

func (d AuthorizationDecision) Allowed() bool {
	return d.Decision == DecisionAllowed
}

func Allow(reason string) AuthorizationDecision {
	return AuthorizationDecision{Decision: DecisionAllowed, Reason: reason}
}

func Deny(reason string) AuthorizationDecision {
	return AuthorizationDecision{Decision: DecisionDenied, Reason: reason}
}
