// Package policy decides who may read or write which complaint. Every
// decision switches over the closed models.Role set and denies anything it
// does not recognize.
package policy

import (
	"civicconnect-be/apierrors"
	"civicconnect-be/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Actor is the authenticated caller as seen by the policy.
type Actor struct {
	ID   primitive.ObjectID
	Role models.Role
	Town string
}

// Scope restricts a complaint listing. Zero fields mean "no restriction".
type Scope struct {
	Town      string
	CreatedBy *primitive.ObjectID
}

// Field names accepted by PATCH /api/complaints/:id.
var (
	CitizenFields = []string{"title", "description", "locationText", "coords", "category"}
	AdminFields   = []string{"status", "remarks", "proofName", "assignedTo", "priority", "dueDate", "estimatedHours", "targetLocation"}
)

// ListScope returns the visibility scope for GET /api/complaints.
// Admins see their own town; citizens see what they filed; employees use
// the task view instead.
func ListScope(a Actor) (Scope, error) {
	switch a.Role {
	case models.RoleAdmin:
		return Scope{Town: a.Town}, nil
	case models.RoleCitizen:
		id := a.ID
		return Scope{CreatedBy: &id}, nil
	case models.RoleEmployee:
		return Scope{}, apierrors.ErrForbidden
	default:
		return Scope{}, apierrors.ErrForbidden
	}
}

// CanRead allows admins everything and citizens their own complaints.
func CanRead(a Actor, c *models.Complaint) error {
	switch a.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleCitizen:
		if c.CreatedBy == a.ID {
			return nil
		}
		return apierrors.ErrForbidden
	case models.RoleEmployee:
		return apierrors.ErrForbidden
	default:
		return apierrors.ErrForbidden
	}
}

// CanCreate lets any known role file a complaint.
func CanCreate(a Actor) error {
	switch a.Role {
	case models.RoleCitizen, models.RoleAdmin, models.RoleEmployee:
		return nil
	default:
		return apierrors.ErrForbidden
	}
}

// PatchFields returns the write mask for the caller on c. The creator gets
// the citizen fields; admins additionally get the admin fields.
func PatchFields(a Actor, c *models.Complaint) (map[string]bool, error) {
	mask := map[string]bool{}
	isOwner := c.CreatedBy == a.ID

	switch a.Role {
	case models.RoleAdmin:
		for _, f := range CitizenFields {
			mask[f] = true
		}
		for _, f := range AdminFields {
			mask[f] = true
		}
		return mask, nil
	case models.RoleCitizen, models.RoleEmployee:
		if !isOwner {
			return nil, apierrors.ErrForbidden
		}
		for _, f := range CitizenFields {
			mask[f] = true
		}
		return mask, nil
	default:
		return nil, apierrors.ErrForbidden
	}
}

func requireAdmin(a Actor) error {
	switch a.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleCitizen, models.RoleEmployee:
		return apierrors.ErrForbidden
	default:
		return apierrors.ErrForbidden
	}
}

func CanDelete(a Actor) error { return requireAdmin(a) }
func CanViewAnalytics(a Actor) error { return requireAdmin(a) }
func CanManageEmployees(a Actor) error { return requireAdmin(a) }

// CanWorkTask lets an employee act on a task assigned to them. Tasks owned
// by someone else are reported as missing so their existence does not leak.
func CanWorkTask(a Actor, c *models.Complaint) error {
	switch a.Role {
	case models.RoleEmployee:
		if c.IsAssignedTo(a.ID) {
			return nil
		}
		return apierrors.NotFound("Task not found")
	case models.RoleCitizen, models.RoleAdmin:
		return apierrors.ErrForbidden
	default:
		return apierrors.ErrForbidden
	}
}

// RequireRole reports whether the caller holds one of the given roles.
func RequireRole(a Actor, roles ...models.Role) error {
	for _, r := range roles {
		if a.Role == r {
			return nil
		}
	}
	return apierrors.ErrForbidden
}
