package security

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/wencestudios/freelancehub/internal/domain"
)

// Permission represents an action permission
type Permission string

const (
	PermCreateJob          Permission = "create_job"
	PermUpdateJob          Permission = "update_job"
	PermViewJobBids        Permission = "view_job_bids"
	PermAcceptBid          Permission = "accept_bid"
	PermDeclineBid         Permission = "decline_bid"
	PermSubmitBid          Permission = "submit_bid"
	PermCancelBid          Permission = "cancel_bid"
	PermListOwnBids        Permission = "list_own_bids"
	PermListEmployerBids   Permission = "list_employer_bids"
	PermReadNotifications  Permission = "read_notifications"
	PermClearNotifications Permission = "clear_notifications"
)

// RolePermissions maps user types to their permissions
var RolePermissions = map[domain.UserType][]Permission{
	domain.UserTypeEmployer: {
		PermCreateJob,
		PermUpdateJob,
		PermViewJobBids,
		PermAcceptBid,
		PermDeclineBid,
		PermListEmployerBids,
		PermReadNotifications,
		PermClearNotifications,
	},
	domain.UserTypeWriter: {
		PermSubmitBid,
		PermCancelBid,
		PermListOwnBids,
		PermReadNotifications,
		PermClearNotifications,
	},
}

// AuthorizationService handles authorization checks
type AuthorizationService struct {
	logger *slog.Logger
}

// NewAuthorizationService creates a new authorization service
func NewAuthorizationService(logger *slog.Logger) *AuthorizationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthorizationService{
		logger: logger,
	}
}

// HasPermission checks if a user type has a specific permission
func (as *AuthorizationService) HasPermission(role domain.UserType, permission Permission) bool {
	return slices.Contains(RolePermissions[role], permission)
}

// Require returns ErrForbidden unless role has permission.
func (as *AuthorizationService) Require(role domain.UserType, permission Permission) error {
	if !as.HasPermission(role, permission) {
		as.logger.Warn("permission denied",
			slog.String("role", string(role)),
			slog.String("permission", string(permission)),
		)
		return fmt.Errorf("%s cannot %s: %w", role, permission, domain.ErrForbidden)
	}
	return nil
}

// RequireOwner returns ErrForbidden unless userID owns the resource.
func (as *AuthorizationService) RequireOwner(userID, ownerID, resource, resourceID string) error {
	if userID == "" || userID != ownerID {
		as.logger.Warn("resource access denied",
			slog.String("user_id", userID),
			slog.String("resource", resource),
			slog.String("resource_id", resourceID),
			slog.String("owner_id", ownerID),
		)
		return fmt.Errorf("%s %s: %w", resource, resourceID, domain.ErrForbidden)
	}
	return nil
}
