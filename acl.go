package auth

import (
	"fmt"
	"math/bits"
	"sort"
	"sync"
)

// WildcardAction grants every action defined for a resource
const WildcardAction = "*"

// MaxActionsPerResource is the number of distinct action bits a resource
// can define. The top bit of the budget is reserved.
const MaxActionsPerResource = RoleBits - 1

const actionBitLimit uint32 = 1 << MaxActionsPerResource

// ResourceActions maps an action name to its bit flag
type ResourceActions map[string]uint32

// Resources maps a resource name to its actions
type Resources map[string]ResourceActions

// Permissions maps a resource name to the granted action bitmask
type Permissions map[string]uint32

// RolePermissions maps a role to its per resource permissions
type RolePermissions map[Role]Permissions

// ACL evaluates (role, action, resource) triples against bitmask rules.
// Rules are validated lazily on the first Can call and are read-only after
// that, so a single ACL can be shared between requests.
type ACL struct {
	mu          sync.RWMutex
	strict      bool
	resources   Resources
	permissions RolePermissions
	parsed      bool
	parseErr    error
}

// ACLOption customizes an ACL
type ACLOption func(*ACL)

// WithStrictACL makes unknown resources and actions fail with ErrBadInput
// instead of denying
func WithStrictACL(strict bool) ACLOption {
	return func(a *ACL) {
		a.strict = strict
	}
}

// NewACL returns an ACL with no rules; every check denies until SetRules
func NewACL(opts ...ACLOption) *ACL {
	a := &ACL{
		resources:   Resources{},
		permissions: RolePermissions{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// SetRules replaces the rule set. The maps are copied.
func (a *ACL) SetRules(resources Resources, permissions RolePermissions) *ACL {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.resources = make(Resources, len(resources))
	for name, actions := range resources {
		cp := make(ResourceActions, len(actions))
		for action, flag := range actions {
			cp[action] = flag
		}
		a.resources[name] = cp
	}

	a.permissions = make(RolePermissions, len(permissions))
	for role, perms := range permissions {
		cp := make(Permissions, len(perms))
		for resource, mask := range perms {
			cp[resource] = mask
		}
		a.permissions[role] = cp
	}

	a.parsed = false
	a.parseErr = nil
	return a
}

// Can reports whether role may perform action on resource
func (a *ACL) Can(role Role, action, resource string) (bool, error) {
	if role.IsSuperAdmin() {
		return true, nil
	}

	if err := a.ensureParsed(); err != nil {
		return false, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	actions, knownResource := a.resources[resource]
	perms, knownRole := a.permissions[role]
	if !knownResource || !knownRole {
		if !knownResource && a.strict {
			return false, withDetail(ErrBadInput, "unknown acl resource", nil, map[string]any{
				"resource": resource,
			})
		}
		return false, nil
	}

	flag, knownAction := actions[action]
	if !knownAction {
		if a.strict {
			return false, withDetail(ErrBadInput, "unknown acl action", nil, map[string]any{
				"resource": resource,
				"action":   action,
			})
		}
		return false, nil
	}

	return perms[resource]&flag != 0, nil
}

// MustCan is Can for call sites that treat rule errors as a deny
func (a *ACL) MustCan(role Role, action, resource string) bool {
	ok, err := a.Can(role, action, resource)
	return err == nil && ok
}

func (a *ACL) ensureParsed() error {
	a.mu.RLock()
	if a.parsed {
		err := a.parseErr
		a.mu.RUnlock()
		return err
	}
	a.mu.RUnlock()

	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.parsed {
		a.parseErr = a.validate()
		a.parsed = true
	}
	return a.parseErr
}

func (a *ACL) validate() error {
	for resource, actions := range a.resources {
		if len(actions) > MaxActionsPerResource {
			return withDetail(ErrBadInput, "too many actions for acl resource", nil, map[string]any{
				"resource": resource,
				"actions":  len(actions),
				"max":      MaxActionsPerResource,
			})
		}

		var seen uint32
		for action, flag := range actions {
			if flag == 0 || flag >= actionBitLimit || bits.OnesCount32(flag) != 1 {
				return withDetail(ErrBadInput, "acl action flag must be a single bit", nil, map[string]any{
					"resource": resource,
					"action":   action,
					"flag":     flag,
				})
			}
			if seen&flag != 0 {
				return withDetail(ErrBadInput, "acl action flag reused", nil, map[string]any{
					"resource": resource,
					"action":   action,
				})
			}
			seen |= flag
		}
	}

	if !a.strict {
		return nil
	}

	for role, perms := range a.permissions {
		for resource := range perms {
			if _, ok := a.resources[resource]; !ok {
				return withDetail(ErrBadInput, "acl permissions reference unknown resource", nil, map[string]any{
					"role":     int(role),
					"resource": resource,
				})
			}
		}
	}

	return nil
}

// MakePermissions ORs the bits of the allowed actions. A "*" entry grants
// every action of the resource.
func MakePermissions(allowed []string, actions ResourceActions) (uint32, error) {
	var mask uint32
	for _, name := range allowed {
		if name == WildcardAction {
			for _, flag := range actions {
				mask |= flag
			}
			continue
		}

		flag, ok := actions[name]
		if !ok {
			return 0, withDetail(ErrBadInput, fmt.Sprintf("unknown action %q", name), nil, map[string]any{
				"action": name,
			})
		}
		mask |= flag
	}
	return mask, nil
}

// NewResourceActions assigns one bit per action in the given order
func NewResourceActions(actions ...string) (ResourceActions, error) {
	if len(actions) > MaxActionsPerResource {
		return nil, withDetail(ErrBadInput, "too many actions for acl resource", nil, map[string]any{
			"actions": len(actions),
			"max":     MaxActionsPerResource,
		})
	}

	out := make(ResourceActions, len(actions))
	for i, action := range actions {
		if action == "" || action == WildcardAction {
			return nil, withDetail(ErrBadInput, "invalid action name", nil, map[string]any{
				"action": action,
			})
		}
		if _, dup := out[action]; dup {
			return nil, withDetail(ErrBadInput, "duplicated action name", nil, map[string]any{
				"action": action,
			})
		}
		out[action] = 1 << uint(i)
	}
	return out, nil
}

// Names returns the action names sorted by bit
func (r ResourceActions) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return r[names[i]] < r[names[j]] })
	return names
}
