package auth

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"livechat/pkg/metrics"
)

// AgentID is the subject carried by agent tokens.
const AgentID = "agent"

// Principal is the resolved owner of a bearer token.
type Principal struct {
	ID             string `json:"id"`
	DisplayName    string `json:"display_name"`
	ContactAddress string `json:"contact_address"`
	Role           Role   `json:"role"`
}

// PrincipalLookup resolves a customer identity id to its principal.
// It returns ErrPrincipalNotFound when the identity does not exist.
type PrincipalLookup interface {
	LookupPrincipal(ctx context.Context, identityID string) (Principal, error)
}

var ErrPrincipalNotFound = errors.New("principal not found")

// AgentAccount is the console login configured through the environment.
type AgentAccount struct {
	Email        string
	Name         string
	PasswordHash string
}

func (a AgentAccount) principal() Principal {
	return Principal{ID: AgentID, DisplayName: a.Name, ContactAddress: a.Email, Role: RoleAgent}
}

func (a AgentAccount) enabled() bool {
	return a.Email != "" && a.PasswordHash != ""
}

// Validator implements the validate(token) operation for both roles.
type Validator struct {
	issuer *Issuer
	agent  AgentAccount
	lookup PrincipalLookup
	cache  *TokenCache
	log    *zap.Logger
}

func NewValidator(issuer *Issuer, agent AgentAccount, lookup PrincipalLookup, cache *TokenCache, log *zap.Logger) *Validator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Validator{issuer: issuer, agent: agent, lookup: lookup, cache: cache, log: log}
}

// Validate resolves token to its principal or fails with ErrInvalidToken.
func (v *Validator) Validate(ctx context.Context, token string) (Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, ErrInvalidToken
	}

	claims, err := v.issuer.Parse(token)
	if err != nil {
		return Principal{}, err
	}

	if claims.Role == RoleAgent {
		if claims.Subject != AgentID || !v.agent.enabled() {
			return Principal{}, ErrInvalidToken
		}
		return v.agent.principal(), nil
	}

	if p, ok, err := v.cache.Get(ctx, token); err != nil {
		v.log.Warn("token_cache_get_failed", zap.Error(err))
	} else if ok {
		return p, nil
	}

	p, err := v.lookup.LookupPrincipal(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return Principal{}, ErrInvalidToken
		}
		return Principal{}, err
	}
	p.Role = RoleCustomer

	if err := v.cache.Set(ctx, token, p); err != nil {
		v.log.Warn("token_cache_set_failed", zap.Error(err))
	}
	return p, nil
}

// AgentLogin checks the console credentials and issues an agent token.
func (v *Validator) AgentLogin(email, password string) (Principal, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !v.agent.enabled() || email != v.agent.Email {
		metrics.Authentications.WithLabelValues(string(RoleAgent), "rejected").Inc()
		return Principal{}, "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(v.agent.PasswordHash), []byte(password)); err != nil {
		metrics.Authentications.WithLabelValues(string(RoleAgent), "rejected").Inc()
		return Principal{}, "", ErrInvalidCredentials
	}

	token, err := v.issuer.Issue(AgentID, RoleAgent)
	if err != nil {
		return Principal{}, "", err
	}
	metrics.Authentications.WithLabelValues(string(RoleAgent), "ok").Inc()
	return v.agent.principal(), token, nil
}
