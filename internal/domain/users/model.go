package users

import "time"

type Role string

const (
	RoleCashier Role = "cashier"
	RoleAdmin   Role = "admin"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

type User struct {
	ID         int64
	TelegramID int64
	FullName   string
	Role       Role
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
