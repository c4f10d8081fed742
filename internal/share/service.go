// Package share issues time-limited links that let anyone holding them
// download a single file without a session.
package share

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abduss/clientdrop/internal/events"
	"github.com/abduss/clientdrop/internal/file"
	"github.com/abduss/clientdrop/internal/metrics"
	"github.com/abduss/clientdrop/internal/token"
)

// ErrLinkInvalid covers expired, tampered and dangling links alike.
var ErrLinkInvalid = errors.New("link expired or invalid")

type capabilityIssuer interface {
	IssueCapability(fileID uuid.UUID) (string, time.Time, error)
	VerifyCapability(tokenString string) (token.CapabilityClaims, error)
}

// Link is a freshly issued share token.
type Link struct {
	Token     string
	ExpiresAt time.Time
}

// Service issues and redeems share links.
type Service struct {
	files  *file.Service
	issuer capabilityIssuer
	events events.Publisher
	log    *zap.Logger
}

// NewService constructs a share service.
func NewService(files *file.Service, issuer capabilityIssuer, publisher events.Publisher, log *zap.Logger) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{files: files, issuer: issuer, events: publisher, log: log}
}

// Share issues a link for a file owned by ownerID.
func (s *Service) Share(ctx context.Context, ownerID int64, fileID uuid.UUID) (Link, error) {
	rec, err := s.files.Registry().Get(ctx, fileID, ownerID)
	if err != nil {
		return Link{}, err
	}

	signed, expiresAt, err := s.issuer.IssueCapability(rec.ID)
	if err != nil {
		return Link{}, fmt.Errorf("issue capability: %w", err)
	}

	metrics.FileOperation("share", "ok")
	s.events.Publish(events.New(events.TypeFileShared, ownerID, rec.ID, 0))
	return Link{Token: signed, ExpiresAt: expiresAt}, nil
}

// Redeem verifies a link and opens the file it points at. Every failure to
// resolve the link is reported as ErrLinkInvalid.
func (s *Service) Redeem(ctx context.Context, tokenString string) (file.Record, io.ReadCloser, error) {
	claims, err := s.issuer.VerifyCapability(tokenString)
	if err != nil {
		reason := "invalid"
		if errors.Is(err, token.ErrExpiredCredential) {
			reason = "expired"
		}
		metrics.TokenRejected("capability", reason)
		return file.Record{}, nil, ErrLinkInvalid
	}

	rec, err := s.files.Registry().GetUnscoped(ctx, claims.FileID)
	if err != nil {
		if errors.Is(err, file.ErrNotFound) {
			return file.Record{}, nil, ErrLinkInvalid
		}
		return file.Record{}, nil, err
	}

	rc, err := s.files.OpenRecord(ctx, rec)
	if err != nil {
		if errors.Is(err, file.ErrNotFound) {
			return file.Record{}, nil, ErrLinkInvalid
		}
		return file.Record{}, nil, err
	}
	return rec, rc, nil
}
