// Package auth carries the identity of whoever invokes an operation. Handlers
// build a Caller from the session and pass it down explicitly.
package auth

import (
	"github.com/google/uuid"

	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/apperr"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/models"
)

type Caller struct {
	UserID    uuid.UUID
	Role      models.Role
	IP        string
	UserAgent string
}

// System is the actor recorded for automated resolutions such as gateway callbacks.
var System = Caller{Role: models.RoleSuperAdmin}

func (c Caller) IsSystem() bool { return c.UserID == uuid.Nil && c.Role == models.RoleSuperAdmin }

func (c Caller) IsAdmin() bool { return c.Role.IsAdmin() }

// ActorID is the id stored in audit columns; nil for the system actor.
func (c Caller) ActorID() *uuid.UUID {
	if c.UserID == uuid.Nil {
		return nil
	}
	id := c.UserID
	return &id
}

func (c Caller) RequireUser() error {
	if c.UserID == uuid.Nil {
		return apperr.New(apperr.KindUnauthorized, "login required")
	}
	return nil
}

func (c Caller) RequireAdmin() error {
	if !c.IsAdmin() {
		return apperr.New(apperr.KindForbidden, "forbidden: insufficient role")
	}
	return nil
}
