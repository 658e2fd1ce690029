package model

import "time"

// Account is a registered author. The password hash is never serialised.
type Account struct {
	ID           AccountID `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// AccountSummary is the author data embedded in article listings.
type AccountSummary struct {
	ID    AccountID `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name,omitempty"`
}

func (a *Account) Summary() *AccountSummary {
	return &AccountSummary{ID: a.ID, Email: a.Email, Name: a.Name}
}
