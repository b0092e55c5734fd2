package service

import (
	"context"
	"errors"
	"slices"

	auditmodels "taskhub/internal/audit/models"
	"taskhub/internal/identity"
	"taskhub/internal/members/models"
	"taskhub/internal/members/store"
	"taskhub/internal/partition"
	provmodels "taskhub/internal/provisioning/models"
	"taskhub/internal/provisioning/saga"
	"taskhub/internal/sentinel"
	id "taskhub/pkg/domain"
	dErrors "taskhub/pkg/domain-errors"
)

// Steps of member creation, reported on failures.
const (
	stepAccount = "account"
	stepRoles   = "roles"
	stepMirror  = "mirror"
)

var memberRoles = []string{identity.RoleAdmin, identity.RoleManager, identity.RoleMember}

// CreateMember opens an account in the caller's realm, grants its roles and
// mirrors it into the caller's partition. A failure at any step removes the
// account again, unless it existed before the call.
func (s *Service) CreateMember(ctx context.Context, ident *identity.Identity, req *models.CreateMemberRequest) (*models.Member, error) {
	scope, err := partition.FromIdentity(ident)
	if err != nil {
		return nil, err
	}
	realm := ident.Realm()

	var exists bool
	err = s.partitions.Run(ctx, scope, func(ctx context.Context, q partition.Querier) error {
		var err error
		exists, err = store.ExistsByEmail(ctx, q, req.Email)
		return err
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up member")
	}
	if exists {
		return nil, dErrors.New(dErrors.CodeConflict, "a user with this email already exists")
	}

	member := &models.Member{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      req.Roles[0],
		Status:    models.MemberStatusActive,
	}
	var preexisting bool
	steps := []saga.Step{
		{
			Name: stepAccount,
			Do: func(ctx context.Context) error {
				found, err := s.accounts.FindUserByEmail(ctx, realm, req.Email)
				if err != nil {
					return err
				}
				if found != "" {
					preexisting = true
					return sentinel.ErrAlreadyExists
				}
				member.IdPUserID, err = s.accounts.EnsureUser(ctx, realm, provmodels.Account{
					Email:     req.Email,
					FirstName: req.FirstName,
					LastName:  req.LastName,
					Password:  req.Password,
				})
				return err
			},
			Undo: func(ctx context.Context) error {
				if preexisting {
					return nil
				}
				accountID, err := s.accountID(ctx, realm, member)
				if err != nil || accountID == "" {
					return err
				}
				return s.accounts.DeleteUser(ctx, realm, accountID)
			},
		},
		{
			Name: stepRoles,
			Do: func(ctx context.Context) error {
				return s.accounts.AssignRealmRoles(ctx, realm, member.IdPUserID, req.Roles)
			},
		},
		{
			Name: stepMirror,
			Do: func(ctx context.Context) error {
				return s.partitions.Run(ctx, scope, func(ctx context.Context, q partition.Querier) error {
					memberID, err := store.Insert(ctx, q, member)
					if err != nil {
						return err
					}
					stored, err := store.Get(ctx, q, memberID)
					if err != nil {
						return err
					}
					member = stored
					return nil
				})
			},
		},
	}
	if failure := s.runner.Execute(ctx, "create_member", steps); failure != nil {
		return nil, s.createFailed(ctx, ident, req.Email, failure)
	}

	s.record(ctx, ident, auditmodels.ActionDataCreate, member.ID, map[string]any{
		"email": member.Email,
		"roles": req.Roles,
	})
	return member, nil
}

func (s *Service) createFailed(ctx context.Context, ident *identity.Identity, email string, failure *saga.Failure) error {
	s.logger.ErrorContext(ctx, "member creation failed",
		"tenant_id", ident.TenantID(),
		"email", email,
		"step", failure.Step,
		"error", failure.Err,
		"residue", len(failure.Residue),
	)
	code, msg := dErrors.CodeProvisioningFailed, "identity provider rejected the account at "+failure.Step
	switch {
	case errors.Is(failure.Err, sentinel.ErrAlreadyExists):
		code, msg = dErrors.CodeConflict, "a user with this email already exists"
	case errors.Is(failure.Err, context.Canceled), errors.Is(failure.Err, context.DeadlineExceeded):
		code, msg = dErrors.CodeTimeout, "member creation interrupted at "+failure.Step
	case failure.Step == stepMirror:
		code, msg = dErrors.CodeInternal, "failed to store member"
	}
	return &dErrors.Error{Code: code, Message: msg, Err: failure.Err}
}

// UpdateMember changes local profile fields. The identity provider account
// is left as is.
func (s *Service) UpdateMember(ctx context.Context, ident *identity.Identity, memberID id.MemberID, upd models.MemberUpdate) (*models.Member, error) {
	scope, err := partition.FromIdentity(ident)
	if err != nil {
		return nil, err
	}
	var member *models.Member
	err = s.partitions.Run(ctx, scope, func(ctx context.Context, q partition.Querier) error {
		if err := store.Update(ctx, q, memberID, upd); err != nil {
			return err
		}
		var err error
		member, err = store.Get(ctx, q, memberID)
		return err
	})
	if err != nil {
		return nil, memberError(err, "failed to update member")
	}

	changed := map[string]any{}
	if upd.FirstName != nil {
		changed["first_name"] = *upd.FirstName
	}
	if upd.LastName != nil {
		changed["last_name"] = *upd.LastName
	}
	if upd.Status != nil {
		changed["status"] = *upd.Status
	}
	s.record(ctx, ident, auditmodels.ActionDataUpdate, memberID, changed)
	return member, nil
}

// ReplaceRoles grants roles and revokes every other tenant role. The first
// role becomes the member's primary role.
func (s *Service) ReplaceRoles(ctx context.Context, ident *identity.Identity, memberID id.MemberID, roles []string) (*models.Member, error) {
	scope, err := partition.FromIdentity(ident)
	if err != nil {
		return nil, err
	}
	realm := ident.Realm()

	member, err := s.load(ctx, scope, memberID)
	if err != nil {
		return nil, err
	}
	accountID, err := s.accountID(ctx, realm, member)
	if err != nil {
		return nil, accountError(err, "failed to find account")
	}
	if accountID != "" {
		if err := s.accounts.AssignRealmRoles(ctx, realm, accountID, roles); err != nil {
			return nil, accountError(err, "failed to assign roles")
		}
		revoked := slices.DeleteFunc(slices.Clone(memberRoles), func(r string) bool { return slices.Contains(roles, r) })
		if len(revoked) > 0 {
			if err := s.accounts.RemoveRealmRoles(ctx, realm, accountID, revoked); err != nil {
				return nil, accountError(err, "failed to revoke roles")
			}
		}
	}

	member, err = s.setRole(ctx, scope, memberID, roles[0])
	if err != nil {
		return nil, err
	}
	s.record(ctx, ident, auditmodels.ActionDataUpdate, memberID, map[string]any{"roles": roles})
	return member, nil
}

// RemoveRole revokes one role. A member whose primary role is removed falls
// back to member.
func (s *Service) RemoveRole(ctx context.Context, ident *identity.Identity, memberID id.MemberID, role string) (*models.Member, error) {
	if !slices.Contains(memberRoles, role) {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown role "+role)
	}
	scope, err := partition.FromIdentity(ident)
	if err != nil {
		return nil, err
	}
	realm := ident.Realm()

	member, err := s.load(ctx, scope, memberID)
	if err != nil {
		return nil, err
	}
	accountID, err := s.accountID(ctx, realm, member)
	if err != nil {
		return nil, accountError(err, "failed to find account")
	}
	if accountID != "" {
		if err := s.accounts.RemoveRealmRoles(ctx, realm, accountID, []string{role}); err != nil {
			return nil, accountError(err, "failed to revoke role")
		}
	}
	if member.Role == role {
		if member, err = s.setRole(ctx, scope, memberID, identity.RoleMember); err != nil {
			return nil, err
		}
	}
	s.record(ctx, ident, auditmodels.ActionDataUpdate, memberID, map[string]any{"removed_role": role})
	return member, nil
}

// DeleteMember removes the account and then the local row. When the account
// cannot be removed the row stays, so the call can be retried.
func (s *Service) DeleteMember(ctx context.Context, ident *identity.Identity, memberID id.MemberID) error {
	scope, err := partition.FromIdentity(ident)
	if err != nil {
		return err
	}
	realm := ident.Realm()

	member, err := s.load(ctx, scope, memberID)
	if err != nil {
		return err
	}
	accountID, err := s.accountID(ctx, realm, member)
	if err != nil {
		return accountError(err, "failed to find account")
	}
	if accountID != "" && accountID == ident.UserID().String() {
		return dErrors.New(dErrors.CodeValidation, "cannot delete your own account")
	}
	if accountID != "" {
		if err := s.accounts.DeleteUser(ctx, realm, accountID); err != nil {
			return accountError(err, "failed to delete account")
		}
	}

	err = s.partitions.Run(ctx, scope, func(ctx context.Context, q partition.Querier) error {
		return store.Delete(ctx, q, memberID)
	})
	if err != nil {
		return memberError(err, "failed to delete member")
	}
	s.record(ctx, ident, auditmodels.ActionDataDelete, memberID, map[string]any{"email": member.Email})
	return nil
}

func (s *Service) load(ctx context.Context, scope partition.Scope, memberID id.MemberID) (*models.Member, error) {
	var member *models.Member
	err := s.partitions.Run(ctx, scope, func(ctx context.Context, q partition.Querier) error {
		var err error
		member, err = store.Get(ctx, q, memberID)
		return err
	})
	if err != nil {
		return nil, memberError(err, "failed to load member")
	}
	return member, nil
}

func (s *Service) setRole(ctx context.Context, scope partition.Scope, memberID id.MemberID, role string) (*models.Member, error) {
	var member *models.Member
	err := s.partitions.Run(ctx, scope, func(ctx context.Context, q partition.Querier) error {
		if err := store.SetRole(ctx, q, memberID, role); err != nil {
			return err
		}
		var err error
		member, err = store.Get(ctx, q, memberID)
		return err
	})
	if err != nil {
		return nil, memberError(err, "failed to update member role")
	}
	return member, nil
}

// accountID is the member's identity provider id. Rows mirrored without one
// are matched by email; "" means the realm has no such account.
func (s *Service) accountID(ctx context.Context, realm string, m *models.Member) (string, error) {
	if m.IdPUserID != "" {
		return m.IdPUserID, nil
	}
	return s.accounts.FindUserByEmail(ctx, realm, m.Email)
}

func (s *Service) record(ctx context.Context, ident *identity.Identity, action auditmodels.Action, memberID id.MemberID, details map[string]any) {
	s.audit.Record(ctx, auditmodels.Entry{
		TenantID:     auditmodels.TenantRef(ident.TenantID()),
		UserID:       string(ident.UserID()),
		Action:       action,
		ResourceType: auditmodels.ResourceUser,
		ResourceID:   memberID.String(),
		Details:      details,
	})
}

func accountError(err error, msg string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeProvisioningFailed, msg)
}
