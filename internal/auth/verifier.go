package auth

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/portal-session/internal/domain"
	"github.com/spec-kit/portal-session/internal/repository"
	apperrors "github.com/spec-kit/portal-session/pkg/util/errorutil"
)

// CredentialVerifier turns an identifier and secret into a subject.
type CredentialVerifier interface {
	Verify(ctx context.Context, identifier, secret string) (domain.Subject, error)
}

// VerifierFunc adapts a function to CredentialVerifier.
type VerifierFunc func(ctx context.Context, identifier, secret string) (domain.Subject, error)

func (f VerifierFunc) Verify(ctx context.Context, identifier, secret string) (domain.Subject, error) {
	return f(ctx, identifier, secret)
}

// PasswordVerifier checks bcrypt hashes held by a CredentialRepository.
type PasswordVerifier struct {
	creds  repository.CredentialRepository
	logger *zap.Logger
}

// NewPasswordVerifier builds a verifier.
func NewPasswordVerifier(creds repository.CredentialRepository, logger *zap.Logger) *PasswordVerifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PasswordVerifier{creds: creds, logger: logger}
}

// Verify returns InvalidCredential for unknown identifiers, inactive accounts and wrong
// secrets alike. Context errors map to Timeout or Cancelled.
func (v *PasswordVerifier) Verify(ctx context.Context, identifier, secret string) (domain.Subject, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || secret == "" {
		return "", apperrors.NewInvalidCredential(errors.New("identifier and secret are required"))
	}

	cred, err := v.creds.GetByIdentifier(ctx, identifier)
	if err != nil {
		if ctx.Err() != nil {
			return "", apperrors.FromContext(ctx, "credential verification")
		}
		if errors.Is(err, repository.ErrCredentialNotFound) {
			burnComparison(secret)
			return "", apperrors.NewInvalidCredential(err)
		}
		v.logger.Error("credential lookup failed", zap.Error(err))
		return "", apperrors.NewInternalError(err)
	}

	if err := ComparePassword(cred.PasswordHash, secret); err != nil {
		if !isMismatch(err) {
			v.logger.Warn("unusable password hash", zap.String("subject_id", cred.SubjectID), zap.Error(err))
		}
		return "", apperrors.NewInvalidCredential(errors.New("secret mismatch"))
	}
	if !cred.Active {
		return "", apperrors.NewInvalidCredential(errors.New("credential inactive"))
	}
	if ctx.Err() != nil {
		return "", apperrors.FromContext(ctx, "credential verification")
	}
	return domain.Subject(cred.SubjectID), nil
}
