// Package token issues and verifies the two signed credential kinds used by
// ClientDrop: sessions that identify an account and capabilities that grant
// read access to a single file.
package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidCredential covers malformed, tampered and wrong-kind tokens.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrExpiredCredential is returned for well-formed tokens past their expiry.
	ErrExpiredCredential = errors.New("expired credential")
)

const (
	DefaultSessionTTL    = 8 * time.Hour
	DefaultCapabilityTTL = time.Hour

	issuerName = "clientdrop"

	claimAccountID = "account_id"
	claimCode      = "code"
	claimName      = "name"
	claimFileID    = "file_id"
)

// SessionSubject identifies the account a session is issued for.
type SessionSubject struct {
	AccountID int64
	Code      string
	Name      string
}

// SessionClaims is the verified content of a session token.
type SessionClaims struct {
	SessionSubject
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// CapabilityClaims is the verified content of a capability token.
type CapabilityClaims struct {
	FileID    uuid.UUID
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Issuer signs and verifies tokens with a single HMAC secret.
type Issuer struct {
	secret        []byte
	sessionTTL    time.Duration
	capabilityTTL time.Duration
	nowFunc       func() time.Time
	parser        *jwt.Parser
}

// NewIssuer constructs an Issuer. Non-positive TTLs fall back to the defaults.
func NewIssuer(secret []byte, sessionTTL, capabilityTTL time.Duration) *Issuer {
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	if capabilityTTL <= 0 {
		capabilityTTL = DefaultCapabilityTTL
	}

	i := &Issuer{
		secret:        secret,
		sessionTTL:    sessionTTL,
		capabilityTTL: capabilityTTL,
		nowFunc:       time.Now,
	}
	i.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(issuerName),
		jwt.WithJSONNumber(),
		jwt.WithTimeFunc(func() time.Time { return i.nowFunc() }),
	)
	return i
}

// IssueSession signs a session token for subject.
func (i *Issuer) IssueSession(subject SessionSubject) (string, time.Time, error) {
	if subject.AccountID <= 0 || subject.Code == "" {
		return "", time.Time{}, errors.New("session subject requires account id and code")
	}

	now := i.nowFunc()
	expiresAt := now.Add(i.sessionTTL)
	signed, err := i.sign(jwt.MapClaims{
		claimAccountID: subject.AccountID,
		claimCode:      subject.Code,
		claimName:      subject.Name,
	}, now, expiresAt)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt.Truncate(time.Second), nil
}

// VerifySession checks signature, expiry and shape of a session token.
func (i *Issuer) VerifySession(tokenString string) (SessionClaims, error) {
	claims, err := i.parse(tokenString)
	if err != nil {
		return SessionClaims{}, err
	}
	if _, ok := claims[claimFileID]; ok {
		return SessionClaims{}, fmt.Errorf("%w: capability presented as session", ErrInvalidCredential)
	}

	idNum, ok := claims[claimAccountID].(json.Number)
	if !ok {
		return SessionClaims{}, fmt.Errorf("%w: missing account id", ErrInvalidCredential)
	}
	accountID, err := idNum.Int64()
	if err != nil || accountID <= 0 {
		return SessionClaims{}, fmt.Errorf("%w: malformed account id", ErrInvalidCredential)
	}
	code, _ := claims[claimCode].(string)
	if code == "" {
		return SessionClaims{}, fmt.Errorf("%w: missing account code", ErrInvalidCredential)
	}
	name, _ := claims[claimName].(string)

	issuedAt, expiresAt := timestamps(claims)
	return SessionClaims{
		SessionSubject: SessionSubject{AccountID: accountID, Code: code, Name: name},
		IssuedAt:       issuedAt,
		ExpiresAt:      expiresAt,
	}, nil
}

// IssueCapability signs a capability granting read access to fileID.
func (i *Issuer) IssueCapability(fileID uuid.UUID) (string, time.Time, error) {
	if fileID == uuid.Nil {
		return "", time.Time{}, errors.New("capability requires a file id")
	}

	now := i.nowFunc()
	expiresAt := now.Add(i.capabilityTTL)
	signed, err := i.sign(jwt.MapClaims{claimFileID: fileID.String()}, now, expiresAt)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt.Truncate(time.Second), nil
}

// VerifyCapability checks signature, expiry and shape of a capability token.
func (i *Issuer) VerifyCapability(tokenString string) (CapabilityClaims, error) {
	claims, err := i.parse(tokenString)
	if err != nil {
		return CapabilityClaims{}, err
	}
	if _, ok := claims[claimAccountID]; ok {
		return CapabilityClaims{}, fmt.Errorf("%w: session presented as capability", ErrInvalidCredential)
	}

	raw, _ := claims[claimFileID].(string)
	fileID, err := uuid.Parse(raw)
	if err != nil || fileID == uuid.Nil {
		return CapabilityClaims{}, fmt.Errorf("%w: malformed file id", ErrInvalidCredential)
	}

	issuedAt, expiresAt := timestamps(claims)
	return CapabilityClaims{FileID: fileID, IssuedAt: issuedAt, ExpiresAt: expiresAt}, nil
}

func (i *Issuer) sign(claims jwt.MapClaims, now, expiresAt time.Time) (string, error) {
	claims["iss"] = issuerName
	claims["iat"] = now.Unix()
	claims["exp"] = expiresAt.Unix()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (i *Issuer) parse(tokenString string) (jwt.MapClaims, error) {
	if tokenString == "" {
		return nil, ErrInvalidCredential
	}

	claims := jwt.MapClaims{}
	_, err := i.parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredCredential
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	return claims, nil
}

func timestamps(claims jwt.MapClaims) (time.Time, time.Time) {
	var issuedAt, expiresAt time.Time
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		issuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expiresAt = exp.Time
	}
	return issuedAt, expiresAt
}
