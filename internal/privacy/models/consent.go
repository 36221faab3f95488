package models

import (
	"time"

	id "lastmile/pkg/domain"
	dErrors "lastmile/pkg/domain-errors"
)

// ConsentType is the purpose a user consented to.
type ConsentType string

const (
	ConsentDataProcessing ConsentType = "data_processing"
	ConsentGeolocation    ConsentType = "geolocation"
	ConsentMarketing      ConsentType = "marketing"
	ConsentThirdParty     ConsentType = "third_party_sharing"
)

func ParseConsentType(raw string) (ConsentType, error) {
	switch t := ConsentType(raw); t {
	case ConsentDataProcessing, ConsentGeolocation, ConsentMarketing, ConsentThirdParty:
		return t, nil
	}
	return "", dErrors.Newf(dErrors.CodeValidation, "unknown consent type %q", raw)
}

// Consent is one grant of consent. Revocation is one-way: a revoked record
// is never reactivated, re-granting inserts a new record.
type Consent struct {
	ID                 id.ConsentID
	UserID             id.UserID
	Type               ConsentType
	Active             bool
	TermsVersion       string
	PurposeDescription string
	ExpiresAt          *time.Time
	RevokedAt          *time.Time
	RevocationReason   string
	CreatedAt          time.Time
}

// NewConsent builds an active consent record.
func NewConsent(userID id.UserID, consentType ConsentType, termsVersion, purpose string, expiresAt *time.Time, now time.Time) *Consent {
	return &Consent{
		ID:                 id.NewConsentID(),
		UserID:             userID,
		Type:               consentType,
		Active:             true,
		TermsVersion:       termsVersion,
		PurposeDescription: purpose,
		ExpiresAt:          expiresAt,
		CreatedAt:          now,
	}
}

// Revoke deactivates the consent. Revoking twice is an error; the record
// stays exactly as the first revocation left it.
func (c *Consent) Revoke(reason string, now time.Time) error {
	if c.RevokedAt != nil {
		return dErrors.New(dErrors.CodeValidation, "consent is already revoked")
	}
	c.Active = false
	c.RevokedAt = &now
	c.RevocationReason = reason
	return nil
}

// IsActiveAt reports whether the consent covers the given moment.
func (c *Consent) IsActiveAt(now time.Time) bool {
	if !c.Active || c.RevokedAt != nil {
		return false
	}
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return false
	}
	return true
}

func (c *Consent) Clone() *Consent {
	cp := *c
	if c.ExpiresAt != nil {
		t := *c.ExpiresAt
		cp.ExpiresAt = &t
	}
	if c.RevokedAt != nil {
		t := *c.RevokedAt
		cp.RevokedAt = &t
	}
	return &cp
}

func (c *Consent) AuditKind() string { return "consent" }
func (c *Consent) AuditID() string   { return c.ID.String() }

func (c *Consent) AuditStatus() string {
	if c.Active {
		return "active"
	}
	return "revoked"
}

func (c *Consent) DiffableFields() map[string]string {
	fields := map[string]string{
		"type":          string(c.Type),
		"active":        c.AuditStatus(),
		"terms_version": c.TermsVersion,
	}
	if c.RevocationReason != "" {
		fields["revocation_reason"] = c.RevocationReason
	}
	return fields
}
