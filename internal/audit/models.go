package audit

import (
	"time"

	"correspondence/pkg/domain"
)

// Category classifies audit events so sinks can route or retain them differently.
type Category string

const (
	CategoryCompliance Category = "compliance"
	CategorySecurity   Category = "security"
	CategoryOperations Category = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  Category        `json:"category"`
	Timestamp time.Time       `json:"timestamp"`
	UserID    domain.UserID   `json:"user_id,omitempty"`
	ActorID   domain.UserID   `json:"actor_id,omitempty"`
	Subject   string          `json:"subject,omitempty"`
	Action    string          `json:"action"`
	Reason    string          `json:"reason,omitempty"`
	Division  domain.Division `json:"division,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	ClientIP  string          `json:"client_ip,omitempty"`
	Client    string          `json:"client,omitempty"`
}

type Action string

const (
	// Identity
	EventUserCreated      Action = "user_created"
	EventUserUpdated      Action = "user_updated"
	EventUserDeleted      Action = "user_deleted"
	EventCredentialsReset Action = "credentials_reset"
	EventPasswordChanged  Action = "password_changed"
	EventLoginSucceeded   Action = "login_succeeded"
	EventLoginFailed      Action = "login_failed"
	EventLoggedOut        Action = "logged_out"
	EventLoginLocked      Action = "login_locked_out"

	// Mail
	EventMailCreated Action = "mail_created"
	EventMailUpdated Action = "mail_updated"
	EventMailDeleted Action = "mail_deleted"
	EventMailRead    Action = "mail_read"

	// Templates
	EventTemplateCreated Action = "template_created"
	EventTemplateDeleted Action = "template_deleted"
)

var categories = map[Action]Category{
	EventUserCreated:      CategoryCompliance,
	EventUserUpdated:      CategoryCompliance,
	EventUserDeleted:      CategoryCompliance,
	EventCredentialsReset: CategorySecurity,
	EventPasswordChanged:  CategorySecurity,
	EventLoginSucceeded:   CategorySecurity,
	EventLoginFailed:      CategorySecurity,
	EventLoggedOut:        CategorySecurity,
	EventLoginLocked:      CategorySecurity,
	EventMailCreated:      CategoryCompliance,
	EventMailUpdated:      CategoryCompliance,
	EventMailDeleted:      CategoryCompliance,
	EventMailRead:         CategoryOperations,
	EventTemplateCreated:  CategoryOperations,
	EventTemplateDeleted:  CategoryOperations,
}

// Category returns the category for a. Unknown actions are operational.
func (a Action) Category() Category {
	if c, ok := categories[a]; ok {
		return c
	}
	return CategoryOperations
}

func (a Action) String() string {
	return string(a)
}
