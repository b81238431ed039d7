package identity

import "time"

// Identity is a customer's durable chat account, keyed by contact address.
type Identity struct {
	ID               string    `json:"id"`
	DisplayName      string    `json:"display_name"`
	ContactAddress   string    `json:"contact_address"`
	CredentialSecret string    `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
}

const (
	StatusCreated                 = "created"
	StatusExistingUserPleaseLogin = "existing_user_please_login"
)

// RegisterResult is the outcome of register. Token, Identity and
// GeneratedSecret are only set when IsNewUser is true.
type RegisterResult struct {
	Status          string    `json:"status"`
	IsNewUser       bool      `json:"is_new_user"`
	Token           string    `json:"token,omitempty"`
	Identity        *Identity `json:"identity,omitempty"`
	GeneratedSecret string    `json:"generated_secret,omitempty"`
}

// Session is an authenticated identity plus the bearer token issued for it.
type Session struct {
	Token     string   `json:"token"`
	Identity  Identity `json:"identity"`
	IsNewUser bool     `json:"is_new_user"`
}
