// internal/models/application.go
package models

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
	StatusHold     = "hold"
)

// ActionWithdrawalCompleted is the history action recorded when a payout is done.
const ActionWithdrawalCompleted = "withdrawal_completed"

type Application struct {
	ID        string `json:"id"`
	UserID    string `json:"userId,omitempty"`
	UserName  string `json:"userName,omitempty"`
	UserEmail string `json:"userEmail,omitempty"`

	Requested string `json:"requested"`
	Purpose   string `json:"purpose"`
	Term      string `json:"term"`
	Income    string `json:"income"`

	Status         string `json:"status"`
	AdminComment   string `json:"adminComment,omitempty"`
	AdminAt        string `json:"adminAt,omitempty"`
	AdminUpdatedAt string `json:"adminUpdatedAt,omitempty"`
	ApprovedAt     string `json:"approvedAt,omitempty"`
	RejectedAt     string `json:"rejectedAt,omitempty"`
	HoldAt         string `json:"holdAt,omitempty"`

	WithdrawalRequested   bool   `json:"withdrawalRequested,omitempty"`
	WithdrawalAt          string `json:"withdrawalAt,omitempty"`
	WithdrawalCompleted   bool   `json:"withdrawalCompleted,omitempty"`
	WithdrawalCompletedAt string `json:"withdrawalCompletedAt,omitempty"`

	AdminHistory []AdminHistoryEntry `json:"adminHistory,omitempty"`
	CreatedAt    string              `json:"createdAt"`
}

type AdminHistoryEntry struct {
	Action  string `json:"action"`
	Comment string `json:"comment"`
	At      string `json:"at"`
}

// OwnedBy matches on userId. Records submitted before ids were attached only
// carry userEmail, so those fall back to the email.
func (a Application) OwnedBy(u *User) bool {
	if u == nil {
		return false
	}
	if a.UserID != "" {
		return a.UserID == u.ID
	}
	email := NormalizeEmail(u.Email)
	return email != "" && NormalizeEmail(a.UserEmail) == email
}

func IsDecisionStatus(status string) bool {
	switch status {
	case StatusApproved, StatusRejected, StatusHold:
		return true
	}
	return false
}

func IsValidStatus(status string) bool {
	return status == StatusPending || IsDecisionStatus(status)
}
