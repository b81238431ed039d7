package identity

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"livechat/pkg/auth"
	"livechat/pkg/metrics"
	"livechat/pkg/sendemail"
)

var (
	ErrInvalidDisplayName = errors.New("display name is required")
	ErrInvalidAddress     = errors.New("a valid email address is required")
)

type IdentityService interface {
	Register(ctx context.Context, displayName, contactAddress string) (RegisterResult, error)
	Authenticate(ctx context.Context, contactAddress, secret string) (Session, error)
	GetIdentity(ctx context.Context, id string) (Identity, error)
}

type identityService struct {
	repo      IdentityRepository
	issuer    *auth.Issuer
	es        sendemail.EmailService
	log       *zap.Logger
	newSecret func() (string, error)
}

func NewIdentityService(repo IdentityRepository, issuer *auth.Issuer, es sendemail.EmailService, log *zap.Logger) IdentityService {
	if log == nil {
		log = zap.NewNop()
	}
	return &identityService{repo: repo, issuer: issuer, es: es, log: log, newSecret: generateSecret}
}

// NormalizeAddress is the canonical form contact addresses are keyed by.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

func (s *identityService) Register(ctx context.Context, displayName, contactAddress string) (RegisterResult, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return RegisterResult{}, ErrInvalidDisplayName
	}
	address := NormalizeAddress(contactAddress)
	if _, err := mail.ParseAddress(address); err != nil {
		return RegisterResult{}, ErrInvalidAddress
	}

	existing, err := s.repo.GetIdentityByAddress(ctx, address)
	switch {
	case err == nil:
		return s.existingUser(existing), nil
	case !errors.Is(err, ErrIdentityNotFound):
		return RegisterResult{}, err
	}

	secret, err := s.newSecret()
	if err != nil {
		return RegisterResult{}, fmt.Errorf("generate secret: %w", err)
	}

	created, err := s.repo.CreateIdentity(ctx, Identity{
		ID:               uuid.NewString(),
		DisplayName:      displayName,
		ContactAddress:   address,
		CredentialSecret: secret,
	})
	if err != nil {
		if errors.Is(err, ErrIdentityExists) {
			// lost a race against a concurrent register for the same address
			existing, getErr := s.repo.GetIdentityByAddress(ctx, address)
			if getErr != nil {
				return RegisterResult{}, getErr
			}
			return s.existingUser(existing), nil
		}
		return RegisterResult{}, err
	}

	token, err := s.issuer.Issue(created.ID, auth.RoleCustomer)
	if err != nil {
		return RegisterResult{}, err
	}

	metrics.Registrations.WithLabelValues("new").Inc()
	s.log.Info("identity_registered", zap.String("identity_id", created.ID))

	return RegisterResult{
		Status:          StatusCreated,
		IsNewUser:       true,
		Token:           token,
		Identity:        &created,
		GeneratedSecret: secret,
	}, nil
}

// existingUser performs no mutation; the stored secret goes out by email only.
func (s *identityService) existingUser(in Identity) RegisterResult {
	metrics.Registrations.WithLabelValues("existing").Inc()
	if err := s.sendSecretReminder(in); err != nil {
		s.log.Warn("secret_reminder_failed", zap.String("identity_id", in.ID), zap.Error(err))
	}
	return RegisterResult{Status: StatusExistingUserPleaseLogin, IsNewUser: false}
}

func (s *identityService) Authenticate(ctx context.Context, contactAddress, secret string) (Session, error) {
	in, err := s.repo.GetIdentityByAddress(ctx, NormalizeAddress(contactAddress))
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			metrics.Authentications.WithLabelValues(string(auth.RoleCustomer), "rejected").Inc()
			return Session{}, auth.ErrInvalidCredentials
		}
		return Session{}, err
	}
	if subtle.ConstantTimeCompare([]byte(in.CredentialSecret), []byte(strings.TrimSpace(secret))) != 1 {
		metrics.Authentications.WithLabelValues(string(auth.RoleCustomer), "rejected").Inc()
		return Session{}, auth.ErrInvalidCredentials
	}

	token, err := s.issuer.Issue(in.ID, auth.RoleCustomer)
	if err != nil {
		return Session{}, err
	}
	metrics.Authentications.WithLabelValues(string(auth.RoleCustomer), "ok").Inc()
	return Session{Token: token, Identity: in}, nil
}

func (s *identityService) GetIdentity(ctx context.Context, id string) (Identity, error) {
	return s.repo.GetIdentityByID(ctx, id)
}

func (s *identityService) sendSecretReminder(in Identity) error {
	subject := "Your chat access code"
	plainTextContent := fmt.Sprintf("Hi %s, your chat access code is: %s. Use it with this email address to continue your conversation.", in.DisplayName, in.CredentialSecret)
	htmlContent := fmt.Sprintf(`
		<div style="font-family: Arial, sans-serif; padding: 20px;">
			<h2>Welcome back, %s</h2>
			<p>Your chat access code is:</p>
			<div style="font-size: 24px; font-weight: bold; color: #333; padding: 10px; background-color: #f5f5f5; border-radius: 5px; display: inline-block;">
				%s
			</div>
			<p>Use it together with this email address to continue your conversation.</p>
		</div>
	`, in.DisplayName, in.CredentialSecret)

	return s.es.SendEmail(subject, in.ContactAddress, plainTextContent, htmlContent)
}

const secretAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func generateSecret() (string, error) {
	out := make([]byte, 10)
	max := big.NewInt(int64(len(secretAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = secretAlphabet[n.Int64()]
	}
	return string(out), nil
}

// principalLookup adapts the repository to auth.PrincipalLookup.
type principalLookup struct {
	repo IdentityRepository
}

func NewPrincipalLookup(repo IdentityRepository) auth.PrincipalLookup {
	return principalLookup{repo: repo}
}

func (l principalLookup) LookupPrincipal(ctx context.Context, identityID string) (auth.Principal, error) {
	in, err := l.repo.GetIdentityByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return auth.Principal{}, auth.ErrPrincipalNotFound
		}
		return auth.Principal{}, err
	}
	return auth.Principal{
		ID:             in.ID,
		DisplayName:    in.DisplayName,
		ContactAddress: in.ContactAddress,
		Role:           auth.RoleCustomer,
	}, nil
}
