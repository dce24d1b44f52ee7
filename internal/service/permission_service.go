package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/andalan-id/service-center-api/internal/models"
)

// Lifecycle abilities consulted by the workflow facade. Worker events use
// the event name itself as the ability.
const (
	AbilityAssign  = "assign"
	AbilityAccept  = "accept"
	AbilityStart   = "start"
	AbilitySubmit  = "submit"
	AbilityApprove = "approve"
	AbilityReject  = "reject"
	AbilityHandoff = "handoff"
	AbilityReceive = "receive"
	AbilityView    = "view"

	AbilityOpenTicket        = "open-ticket"
	AbilityAcknowledgeTicket = "acknowledge-ticket"
	AbilityResolveTicket     = "resolve-ticket"
	AbilityManageRoles       = "manage-roles"
	AbilityExportReports     = "export-reports"
	AbilityCreateWorkItem    = "create-work-item"
	AbilityCompleteWorkItem  = "complete-work-item"
)

// AbilityHandler decides one ability for one subject. Handlers are pure
// functions of the grants snapshot and the subject.
type AbilityHandler func(grants *models.Grants, subject models.Subject) bool

// Policy maps ability names to handlers for one subject kind.
type Policy map[string]AbilityHandler

// BypassRule is evaluated before any policy lookup. It returns its verdict
// and whether it decided at all; the first deciding rule short-circuits.
type BypassRule func(grants *models.Grants) (allow bool, decided bool)

// GrantsLoader resolves the flattened authorization snapshot for a
// principal. Implemented by the role repository and its Redis cache.
type GrantsLoader interface {
	GrantsForUser(ctx context.Context, userID, guard string) (*models.Grants, error)
}

// PermissionResolver answers "does this principal have this ability on
// this subject". It is constructed per request with the data it needs and
// holds no process-wide mutable state. Unknown abilities fail closed.
type PermissionResolver struct {
	grants   *models.Grants
	rules    []BypassRule
	policies map[models.SubjectKind]Policy
	global   Policy
	logger   *zap.Logger
}

// ResolverOption customises the resolver's rule list or policies.
type ResolverOption func(*PermissionResolver)

// WithPolicy registers or replaces the policy for a subject kind.
func WithPolicy(kind models.SubjectKind, policy Policy) ResolverOption {
	return func(r *PermissionResolver) {
		r.policies[kind] = policy
	}
}

// WithBypassRule appends a rule evaluated before policy lookup.
func WithBypassRule(rule BypassRule) ResolverOption {
	return func(r *PermissionResolver) {
		r.rules = append(r.rules, rule)
	}
}

// NewPermissionResolver builds a resolver around one principal's grants.
// The super-admin bypass is always the first rule in the list.
func NewPermissionResolver(grants *models.Grants, logger *zap.Logger, opts ...ResolverOption) *PermissionResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &PermissionResolver{
		grants:   grants,
		rules:    []BypassRule{superAdminBypass},
		policies: defaultPolicies(),
		global:   defaultGlobalPolicy(),
		logger:   logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Can evaluates the ordered rule list, then the subject's policy. A
// missing policy or handler denies and logs a developer-facing warning.
func (r *PermissionResolver) Can(ability string, subject models.Subject) bool {
	for _, rule := range r.rules {
		if allow, decided := rule(r.grants); decided {
			return allow
		}
	}

	if subject == nil {
		handler, ok := r.global[ability]
		if !ok {
			r.logger.Warn("permission check for unregistered ability",
				zap.String("ability", ability))
			return false
		}
		return handler(r.grants, nil)
	}

	ref := subject.SubjectRef()
	policy, ok := r.policies[ref.Kind]
	if !ok {
		r.logger.Warn("permission check for unregistered subject kind",
			zap.String("ability", ability),
			zap.String("subject_kind", string(ref.Kind)))
		return false
	}
	handler, ok := policy[ability]
	if !ok {
		r.logger.Warn("permission check for unregistered ability",
			zap.String("ability", ability),
			zap.String("subject_kind", string(ref.Kind)))
		return false
	}
	return handler(r.grants, subject)
}

// superAdminBypass grants everything, including unregistered abilities, to
// holders of the distinguished role. It decides only positively so later
// rules and policies still run for everyone else.
func superAdminBypass(grants *models.Grants) (bool, bool) {
	if grants.HasRole(models.RoleSuperAdmin) {
		return true, true
	}
	return false, false
}

func isAssignmentWorker(grants *models.Grants, subject models.Subject) bool {
	assignment, ok := subject.(*models.Assignment)
	if !ok {
		return false
	}
	return grants != nil && assignment.UserID == grants.UserID
}

func hasPermission(name string) AbilityHandler {
	return func(grants *models.Grants, _ models.Subject) bool {
		return grants.HasPermission(name)
	}
}

func anyOf(handlers ...AbilityHandler) AbilityHandler {
	return func(grants *models.Grants, subject models.Subject) bool {
		for _, h := range handlers {
			if h(grants, subject) {
				return true
			}
		}
		return false
	}
}

func defaultPolicies() map[models.SubjectKind]Policy {
	return map[models.SubjectKind]Policy{
		models.SubjectKindAssignment: {
			AbilityAccept:  isAssignmentWorker,
			AbilityStart:   isAssignmentWorker,
			AbilitySubmit:  isAssignmentWorker,
			AbilityHandoff: isAssignmentWorker,
			AbilityApprove: hasPermission(models.PermissionManageWorkItems),
			AbilityReject:  hasPermission(models.PermissionManageWorkItems),
			AbilityReceive: hasPermission(models.PermissionReceiveAssignments),
			AbilityView:    anyOf(isAssignmentWorker, hasPermission(models.PermissionViewWorkItems), hasPermission(models.PermissionManageWorkItems)),
		},
		models.SubjectKindWorkItem: {
			AbilityAssign:           hasPermission(models.PermissionManageWorkItems),
			AbilityCompleteWorkItem: hasPermission(models.PermissionManageWorkItems),
			AbilityView:             anyOf(hasPermission(models.PermissionViewWorkItems), hasPermission(models.PermissionManageWorkItems)),
		},
	}
}

func defaultGlobalPolicy() Policy {
	return Policy{
		AbilityView:              anyOf(hasPermission(models.PermissionViewWorkItems), hasPermission(models.PermissionManageWorkItems)),
		AbilityOpenTicket:        hasPermission(models.PermissionManageTickets),
		AbilityAcknowledgeTicket: hasPermission(models.PermissionManageTickets),
		AbilityResolveTicket:     hasPermission(models.PermissionManageTickets),
		AbilityManageRoles:       hasPermission(models.PermissionManageRoles),
		AbilityExportReports:     hasPermission(models.PermissionExportReports),
		AbilityCreateWorkItem:    hasPermission(models.PermissionManageWorkItems),
	}
}

// PermissionService builds request-scoped resolvers from cached grants.
type PermissionService struct {
	grants GrantsLoader
	guard  string
	logger *zap.Logger
}

// NewPermissionService constructs the service.
func NewPermissionService(grants GrantsLoader, guard string, logger *zap.Logger) *PermissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PermissionService{grants: grants, guard: guard, logger: logger}
}

// ResolverFor loads the principal's grants and wraps them in a resolver.
func (s *PermissionService) ResolverFor(ctx context.Context, userID string) (*PermissionResolver, error) {
	grants, err := s.grants.GrantsForUser(ctx, userID, s.guard)
	if err != nil {
		return nil, err
	}
	return NewPermissionResolver(grants, s.logger), nil
}

// Check answers a one-off ability query for a principal.
func (s *PermissionService) Check(ctx context.Context, userID, ability string, subject models.Subject) (bool, error) {
	resolver, err := s.ResolverFor(ctx, userID)
	if err != nil {
		return false, err
	}
	return resolver.Can(ability, subject), nil
}
