package access

import "context"

// Role classifies who is acting on the system.
type Role string

const (
	RoleCreator Role = "creator"
	RoleStaff   Role = "staff"
	RoleSystem  Role = "system"
)

// Capability names a privileged operation family.
type Capability string

const (
	// CapabilityManagePayouts covers initiating and finalizing payouts.
	CapabilityManagePayouts Capability = "payouts:manage"
	// CapabilityManageWallets covers KYC/activation flags, creator provisioning and cash-in intake.
	CapabilityManageWallets Capability = "wallets:manage"
)

// Principal is the authenticated caller of an operation.
type Principal struct {
	ID   string
	Role Role
}

// System returns the principal used by scheduled jobs.
func System(id string) Principal {
	return Principal{ID: id, Role: RoleSystem}
}

// Checker decides whether a principal may perform privileged work.
type Checker interface {
	Can(p Principal, capability Capability) bool
	CanAccessWallet(p Principal, ownerID string) bool
}

// CapabilityChecker grants every capability to staff and system principals.
type CapabilityChecker struct{}

// NewCapabilityChecker returns the default role based checker.
func NewCapabilityChecker() CapabilityChecker {
	return CapabilityChecker{}
}

func (CapabilityChecker) Can(p Principal, _ Capability) bool {
	return p.ID != "" && (p.Role == RoleStaff || p.Role == RoleSystem)
}

// CanAccessWallet allows owners to read their own wallet and elevated roles to read any.
func (c CapabilityChecker) CanAccessWallet(p Principal, ownerID string) bool {
	if c.Can(p, CapabilityManageWallets) {
		return true
	}
	return p.ID != "" && p.ID == ownerID
}

type principalKey struct{}

// WithPrincipal stores p on ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored on ctx, if any.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
