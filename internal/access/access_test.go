package access

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/digistore-backend/pkg/enums"
)

func TestEvaluateTable(t *testing.T) {
	seller := &Actor{UserID: uuid.New(), Role: enums.RoleSeller}
	customer := &Actor{UserID: uuid.New(), Role: enums.RoleCustomer}
	admin := &Actor{UserID: uuid.New(), Role: enums.RoleAdmin}

	cases := []struct {
		name       string
		actor      *Actor
		collection Collection
		action     Action
		want       Rule
	}{
		{"anonymous product read", Anonymous(), Products, Read, Published},
		{"anonymous cart read", Anonymous(), Carts, Read, Deny},
		{"nil actor page read", nil, Pages, Read, Published},
		{"customer product create", customer, Products, Create, Deny},
		{"customer cart update", customer, Carts, Update, Owner},
		{"customer discount read", customer, DiscountCodes, Read, Deny},
		{"customer transaction create", customer, Transactions, Create, Deny},
		{"customer notification create", customer, Notifications, Create, Deny},
		{"seller product read", seller, Products, Read, OwnerOrPublished},
		{"seller product create", seller, Products, Create, Allow},
		{"seller product delete", seller, Products, Delete, Owner},
		{"seller page update", seller, Pages, Update, Deny},
		{"admin discount create", admin, DiscountCodes, Create, Allow},
		{"admin transaction delete", admin, Transactions, Delete, Deny},
		{"admin notification create", admin, Notifications, Create, Deny},
		{"admin notification delete", admin, Notifications, Delete, Allow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Evaluate(tc.actor, tc.collection, tc.action).Rule
			if got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestEvaluateUnknownRoleFallsBackToAnonymous(t *testing.T) {
	actor := &Actor{UserID: uuid.New(), Role: enums.Role("superuser")}
	if got := Evaluate(actor, Carts, Read); got.Allowed() {
		t.Fatalf("expected unknown role to be denied, got %s", got.Rule)
	}
	if got := Evaluate(actor, Products, Read).Rule; got != Published {
		t.Fatalf("expected published reads, got %s", got)
	}
}

func TestDecisionPermits(t *testing.T) {
	owner := uuid.New()
	other := uuid.New()
	seller := &Actor{UserID: owner, Role: enums.RoleSeller}

	update := Evaluate(seller, Products, Update)
	if !update.Permits(owner, false) {
		t.Fatalf("owner should update own draft")
	}
	if update.Permits(other, true) {
		t.Fatalf("owner rule must not permit someone else's product")
	}

	read := Evaluate(seller, Products, Read)
	if !read.Permits(other, true) {
		t.Fatalf("published product should be readable")
	}
	if read.Permits(other, false) {
		t.Fatalf("someone else's draft should be hidden")
	}
	if !read.Permits(owner, false) {
		t.Fatalf("own draft should be readable")
	}

	if Evaluate(Anonymous(), Carts, Read).Permits(uuid.Nil, true) {
		t.Fatalf("deny must never permit")
	}
}

func TestActorContext(t *testing.T) {
	if actor := ActorFrom(context.Background()); !actor.IsAnonymous() {
		t.Fatalf("expected anonymous fallback")
	}
	want := &Actor{UserID: uuid.New(), Role: enums.RoleCustomer}
	got := ActorFrom(WithActor(context.Background(), want))
	if got != want {
		t.Fatalf("expected stored actor back")
	}
}
