package domain

import "time"

type User struct {
	ID                    string     `json:"id"`
	Email                 string     `json:"email"`
	PasswordHash          string     `json:"-"`
	EmailConfirmedAt      *time.Time `json:"email_confirmed_at,omitempty"`
	ConfirmationCodeHash  string     `json:"-"`
	ConfirmationExpiresAt *time.Time `json:"-"`
	CreatedAt             time.Time  `json:"created_at"`
}

func (u User) Confirmed() bool {
	return u.EmailConfirmedAt != nil
}
