// Package entitlements answers whether a member may see a content item in full.
package entitlements

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/creatorvault-backend/internal/ledger"
	"github.com/angelmondragon/creatorvault-backend/pkg/db/models"
	"github.com/angelmondragon/creatorvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/creatorvault-backend/pkg/errors"
)

// grantingTypes in resolution priority order.
var grantingTypes = []enums.TransactionType{
	enums.TransactionTypeContentUnlock,
	enums.TransactionTypeBundleUnlock,
	enums.TransactionTypeProfileUnlock,
}

// Grant explains why access was given.
type Grant struct {
	Granted       bool
	Via           enums.TransactionType
	TransactionID uuid.UUID
}

// Service resolves access from completed ledger rows only. Pending,
// processing, failed, refunded and disputed rows never grant access.
type Service interface {
	HasAccess(ctx context.Context, memberID, contentID uuid.UUID) (bool, error)
	Resolve(ctx context.Context, memberID, contentID uuid.UUID) (Grant, error)
}

type service struct {
	ledger ledger.Repository
}

func NewService(repo ledger.Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{ledger: repo}, nil
}

func (s *service) HasAccess(ctx context.Context, memberID, contentID uuid.UUID) (bool, error) {
	grant, err := s.Resolve(ctx, memberID, contentID)
	if err != nil {
		return false, err
	}
	return grant.Granted, nil
}

// Resolve prefers a direct content unlock, then a bundle, then a profile
// unlock. Bundle and profile rows cover only the content ids snapshotted on
// the row at purchase time.
func (s *service) Resolve(ctx context.Context, memberID, contentID uuid.UUID) (Grant, error) {
	if memberID == uuid.Nil || contentID == uuid.Nil {
		return Grant{}, pkgerrors.New(pkgerrors.CodeValidation, "member id and content id required")
	}
	rows, err := s.ledger.ListCompletedUnlocks(ctx, memberID, grantingTypes)
	if err != nil {
		return Grant{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load member unlocks")
	}
	return bestGrant(rows, contentID), nil
}

func bestGrant(rows []models.Transaction, contentID uuid.UUID) Grant {
	for _, kind := range grantingTypes {
		for _, row := range rows {
			if row.Type == kind && row.CoversContent(contentID) {
				return Grant{Granted: true, Via: kind, TransactionID: row.ID}
			}
		}
	}
	return Grant{}
}
