// Package access decides who may read or write each collection. Every
// decision comes from one explicit table keyed by role, collection and action.
package access

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/digistore-backend/pkg/enums"
)

type Collection string

const (
	Products      Collection = "products"
	Carts         Collection = "carts"
	DiscountCodes Collection = "discount_codes"
	Transactions  Collection = "transactions"
	Earnings      Collection = "earnings"
	Notifications Collection = "notifications"
	Pages         Collection = "pages"
	Users         Collection = "users"
	Taxonomy      Collection = "taxonomy"
)

type Action string

const (
	Read   Action = "read"
	Create Action = "create"
	Update Action = "update"
	Delete Action = "delete"
)

// Rule is the outcome stored in the permission table.
type Rule int

const (
	Deny Rule = iota
	Allow
	// Owner allows the action on records the actor owns.
	Owner
	// Published allows reads of published records only.
	Published
	// OwnerOrPublished allows the actor's own records plus everything published.
	OwnerOrPublished
)

func (r Rule) String() string {
	switch r {
	case Allow:
		return "allow"
	case Owner:
		return "owner"
	case Published:
		return "published"
	case OwnerOrPublished:
		return "owner_or_published"
	default:
		return "deny"
	}
}

type rules map[Action]Rule

func all(rule Rule) rules {
	return rules{Read: rule, Create: rule, Update: rule, Delete: rule}
}

// table is the complete permission matrix; a missing entry denies.
var table = map[enums.Role]map[Collection]rules{
	enums.RoleAnonymous: {
		Products: {Read: Published},
		Pages:    {Read: Published},
		Taxonomy: {Read: Allow},
	},
	enums.RoleCustomer: {
		Products:      {Read: Published},
		Pages:         {Read: Published},
		Taxonomy:      {Read: Allow},
		Carts:         all(Owner),
		Transactions:  {Read: Owner},
		Notifications: {Read: Owner, Update: Owner},
		Users:         {Read: Owner, Update: Owner},
	},
	enums.RoleSeller: {
		Products:      {Read: OwnerOrPublished, Create: Allow, Update: Owner, Delete: Owner},
		Pages:         {Read: Published},
		Taxonomy:      {Read: Allow},
		Carts:         all(Owner),
		Transactions:  {Read: Owner},
		Earnings:      {Read: Owner},
		Notifications: {Read: Owner, Update: Owner},
		Users:         {Read: Owner, Update: Owner},
	},
	enums.RoleAdmin: {
		Products:      all(Allow),
		Pages:         all(Allow),
		Taxonomy:      all(Allow),
		Carts:         all(Allow),
		DiscountCodes: all(Allow),
		Transactions:  {Read: Allow, Update: Allow},
		Earnings:      {Read: Allow},
		Notifications: {Read: Allow, Delete: Allow},
		Users:         all(Allow),
	},
}

// RuleFor looks up the table entry; unknown roles fall back to anonymous.
func RuleFor(role enums.Role, collection Collection, action Action) Rule {
	byCollection, ok := table[role]
	if !ok {
		byCollection = table[enums.RoleAnonymous]
	}
	return byCollection[collection][action]
}

// Actor is the caller a decision is made for.
type Actor struct {
	UserID uuid.UUID
	Role   enums.Role
}

// Anonymous is the actor for unauthenticated requests.
func Anonymous() *Actor {
	return &Actor{Role: enums.RoleAnonymous}
}

func (a *Actor) IsAnonymous() bool {
	return a == nil || a.UserID == uuid.Nil || a.Role == enums.RoleAnonymous
}

func (a *Actor) role() enums.Role {
	if a.IsAnonymous() {
		return enums.RoleAnonymous
	}
	return a.Role
}

// Decision is the evaluated rule bound to the actor it was made for.
type Decision struct {
	Rule  Rule
	actor *Actor
}

// Evaluate resolves the rule for the actor. Owner-based rules are denied to
// anonymous callers because they own nothing.
func Evaluate(actor *Actor, collection Collection, action Action) Decision {
	rule := RuleFor(actor.role(), collection, action)
	if actor.IsAnonymous() && (rule == Owner || rule == OwnerOrPublished) {
		rule = Deny
		if RuleFor(enums.RoleAnonymous, collection, action) == Published {
			rule = Published
		}
	}
	return Decision{Rule: rule, actor: actor}
}

// Allowed reports whether any record could pass; filters still apply.
func (d Decision) Allowed() bool {
	return d.Rule != Deny
}

// Unrestricted reports a plain allow with no filter.
func (d Decision) Unrestricted() bool {
	return d.Rule == Allow
}

// Columns names what Scope filters on.
type Columns struct {
	Owner  string
	Status string
}

// Scope returns a gorm scope applying the decision's filter to a read query.
func (d Decision) Scope(cols Columns) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		switch d.Rule {
		case Allow:
			return q
		case Owner:
			return q.Where(cols.Owner+" = ?", d.actor.UserID)
		case Published:
			return q.Where(cols.Status+" = ?", enums.PublishStatusPublished)
		case OwnerOrPublished:
			return q.Where("("+cols.Owner+" = ? OR "+cols.Status+" = ?)", d.actor.UserID, enums.PublishStatusPublished)
		default:
			return q.Where("1 = 0")
		}
	}
}

// Permits checks a single loaded record against the decision.
func (d Decision) Permits(owner uuid.UUID, published bool) bool {
	switch d.Rule {
	case Allow:
		return true
	case Owner:
		return owner != uuid.Nil && owner == d.actor.UserID
	case Published:
		return published
	case OwnerOrPublished:
		return published || (owner != uuid.Nil && owner == d.actor.UserID)
	default:
		return false
	}
}

type actorKey struct{}

// WithActor stores the caller on the context.
func WithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the caller on the context or the anonymous actor.
func ActorFrom(ctx context.Context) *Actor {
	if actor, ok := ctx.Value(actorKey{}).(*Actor); ok && actor != nil {
		return actor
	}
	return Anonymous()
}
