package service

import (
	"context"
	"errors"

	"correspondence/internal/audit"
	"correspondence/internal/identity/models"
	"correspondence/pkg/domain"
	dErrors "correspondence/pkg/domain-errors"
	"correspondence/pkg/platform/sentinel"
	"correspondence/pkg/requestcontext"
)

// unusablePasswordHash is stored between insert and username derivation. It
// is not a bcrypt digest, so nothing verifies against it.
const unusablePasswordHash = "!"

// CreateResult is a new user plus the initial password an administrator
// hands over. The initial password equals the username.
type CreateResult struct {
	User            *models.User
	InitialPassword string
}

// UpdateResult reports whether the update regenerated the user's credentials.
type UpdateResult struct {
	User             *models.User
	CredentialsReset bool
	InitialPassword  string
}

// CreateUser validates the role rules and creates a user in two explicit
// steps inside one transaction: insert with a provisional username to obtain
// the id, then derive the username from name and id and set the password to it.
func (s *Service) CreateUser(ctx context.Context, fullName string, role domain.Role, division domain.Division) (*CreateResult, error) {
	user, err := models.NewUser(fullName, role, division, requestcontext.Now(ctx))
	if err != nil {
		return nil, asValidation(err)
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.checkUniqueness(txCtx, 0, user.FullName, role, division); err != nil {
			return err
		}

		user.PasswordHash = unusablePasswordHash
		if err := s.users.Create(txCtx, user); err != nil {
			if conflict := conflictFor(err, role, division); conflict != nil {
				return conflict
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
		}

		if err := s.finalizeCreated(txCtx, user); err != nil {
			s.discardProvisional(txCtx, user)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, audit.EventUserCreated, user, "role", user.Role, "division", user.Division)
	if s.metrics != nil {
		s.metrics.IncrementUsersCreated()
	}
	return &CreateResult{User: user, InitialPassword: user.Username}, nil
}

// UpdateUser applies patch and re-runs every role rule excluding the user's
// own record. A full name change regenerates username and password.
func (s *Service) UpdateUser(ctx context.Context, id domain.UserID, patch models.UserPatch) (*UpdateResult, error) {
	if patch.IsEmpty() {
		return nil, dErrors.New(dErrors.CodeValidation, "nothing to update")
	}

	result := &UpdateResult{}
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		user, err := s.users.FindByID(txCtx, id)
		if err != nil {
			return wrapUserErr(err, "failed to load user")
		}

		fullName, role, division := patch.Apply(user)
		fullName, err = models.NormalizeFullName(fullName)
		if err != nil {
			return asValidation(err)
		}
		if err := models.ValidateAssignment(role, division); err != nil {
			return asValidation(err)
		}
		if err := s.checkUniqueness(txCtx, user.ID, fullName, role, division); err != nil {
			return err
		}

		nameChanged := fullName != user.FullName
		user.FullName = fullName
		user.Role = role
		user.Division = division
		user.UpdatedAt = requestcontext.Now(txCtx)
		if nameChanged {
			if err := s.assignDerivedCredentials(txCtx, user); err != nil {
				return err
			}
			result.CredentialsReset = true
			result.InitialPassword = user.Username
		}

		if err := s.users.Update(txCtx, user); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "user not found")
			}
			if conflict := conflictFor(err, role, division); conflict != nil {
				return conflict
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update user")
		}
		result.User = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, audit.EventUserUpdated, result.User, "role", result.User.Role, "division", result.User.Division)
	if result.CredentialsReset {
		s.logAudit(ctx, audit.EventCredentialsReset, result.User)
		if s.metrics != nil {
			s.metrics.IncrementCredentialsReset()
		}
	}
	return result, nil
}

// DeleteUser hard-deletes a user. Mail and templates they authored are kept
// with their author cleared.
func (s *Service) DeleteUser(ctx context.Context, id domain.UserID) error {
	var deleted *models.User
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		user, err := s.users.FindByID(txCtx, id)
		if err != nil {
			return wrapUserErr(err, "failed to load user")
		}
		for _, r := range s.releasers {
			if err := r.ReleaseUser(txCtx, id); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to release user references")
			}
		}
		if err := s.users.Delete(txCtx, id); err != nil {
			return wrapUserErr(err, "failed to delete user")
		}
		deleted = user
		return nil
	})
	if err != nil {
		return err
	}

	s.logAudit(ctx, audit.EventUserDeleted, deleted)
	if s.metrics != nil {
		s.metrics.IncrementUsersDeleted()
	}
	return nil
}

// checkUniqueness reports the first business conflict for the proposed
// name/role/division, ignoring the record self.
func (s *Service) checkUniqueness(ctx context.Context, self domain.UserID, fullName string, role domain.Role, division domain.Division) error {
	existing, err := s.users.FindByFullName(ctx, fullName)
	switch {
	case err == nil && existing.ID != self:
		return nameConflict()
	case err != nil && !errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check full name")
	}

	switch role {
	case domain.RoleSecretary:
		holders, err := s.users.FindByRole(ctx, domain.RoleSecretary, domain.DivisionNone)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check role holders")
		}
		if heldByOther(holders, self) {
			return roleSingletonConflict(role)
		}
	case domain.RoleSubDivisionHead:
		holders, err := s.users.FindByRole(ctx, domain.RoleSubDivisionHead, division)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check role holders")
		}
		if heldByOther(holders, self) {
			return divisionHeadConflict(division)
		}
	}
	return nil
}

func heldByOther(holders []*models.User, self domain.UserID) bool {
	for _, h := range holders {
		if h.ID != self {
			return true
		}
	}
	return false
}

// finalizeCreated is the second step of CreateUser: derive the username from
// the new id and persist it together with the initial password.
func (s *Service) finalizeCreated(ctx context.Context, user *models.User) error {
	if err := s.assignDerivedCredentials(ctx, user); err != nil {
		return err
	}
	if err := s.users.Update(ctx, user); err != nil {
		if conflict := conflictFor(err, user.Role, user.Division); conflict != nil {
			return conflict
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to finalize user")
	}
	return nil
}

// discardProvisional removes the row inserted by a CreateUser whose second
// step failed. Runners without rollback would otherwise keep it, holding the
// name and any singleton role.
func (s *Service) discardProvisional(ctx context.Context, user *models.User) {
	if err := s.users.Delete(ctx, user.ID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		s.logger.WarnContext(ctx, "failed to discard provisional user",
			"user_id", user.ID,
			"username", user.Username,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
}

func (s *Service) assignDerivedCredentials(ctx context.Context, user *models.User) error {
	username := models.DeriveUsername(user.FullName, user.ID)
	holder, err := s.users.FindByUsername(ctx, username)
	switch {
	case err == nil && holder.ID != user.ID:
		return usernameConflict()
	case err != nil && !errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check username")
	}
	digest, err := s.hasher.Hash(username)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}
	user.Username = username
	user.PasswordHash = digest
	return nil
}
