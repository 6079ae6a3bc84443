package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/service"
	"retailpos/backend/internal/store"
)

type userStoreStub struct {
	mu    sync.Mutex
	users map[string]domain.UserAccount
}

func (s *userStoreStub) FindUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	if _, exists := s.users[user.Username]; exists {
		return store.ErrDuplicate
	}
	s.users[user.Username] = user
	return nil
}

func TestCreateUserStoresPasswordHashAndCanLogin(t *testing.T) {
	users := &userStoreStub{}
	manager := NewAuthManager("test-secret", time.Hour, users)

	created, err := manager.CreateUser(context.Background(), domain.UserCreateRequest{
		Username: " NewCashier ",
		Name:     "New Cashier",
		Password: "pass1234",
		Role:     "cashier",
	})
	if err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	if created.Username != "newcashier" || created.Role != domain.RoleCashier {
		t.Fatalf("unexpected user summary %+v", created)
	}

	stored := users.users["newcashier"]
	if stored.PasswordHash == "pass1234" || !strings.HasPrefix(stored.PasswordHash, "$2") {
		t.Fatalf("expected bcrypt hash, got %s", stored.PasswordHash)
	}

	resp, actor, err := manager.Login(context.Background(), domain.LoginRequest{Username: "newcashier", Password: "pass1234"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if actor.ID != created.ID || actor.Name != "New Cashier" {
		t.Fatalf("unexpected actor %+v", actor)
	}

	parsed, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if parsed != actor {
		t.Fatalf("expected token to carry %+v, got %+v", actor, parsed)
	}
}

func TestCreateUserRejectsOwnerRoleAndDuplicates(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, &userStoreStub{})
	ctx := context.Background()

	_, err := manager.CreateUser(ctx, domain.UserCreateRequest{Username: "boss2", Password: "pass1234", Role: "owner"})
	if !errors.Is(err, service.ErrValidation) {
		t.Fatalf("expected validation error for owner role, got %v", err)
	}

	req := domain.UserCreateRequest{Username: "floor1", Password: "pass1234", Role: "manager"}
	if _, err := manager.CreateUser(ctx, req); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	if _, err := manager.CreateUser(ctx, req); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestLoginRejectsWrongPasswordAndInactiveAccount(t *testing.T) {
	users := &userStoreStub{}
	manager := NewAuthManager("test-secret", time.Hour, users)
	if _, err := manager.EnsureUser(context.Background(), "owner", "Owner", "owner123", domain.RoleOwner); err != nil {
		t.Fatalf("ensure user: %v", err)
	}

	_, _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "owner", Password: "nope"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	_, _, err = manager.Login(context.Background(), domain.LoginRequest{Username: "ghost", Password: "owner123"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown user, got %v", err)
	}

	account := users.users["owner"]
	account.Active = false
	users.users["owner"] = account
	_, _, err = manager.Login(context.Background(), domain.LoginRequest{Username: "owner", Password: "owner123"})
	if !errors.Is(err, ErrInactiveAccount) {
		t.Fatalf("expected inactive account, got %v", err)
	}
}

func TestEnsureUserLeavesExistingAccount(t *testing.T) {
	users := &userStoreStub{}
	manager := NewAuthManager("test-secret", time.Hour, users)

	created, err := manager.EnsureUser(context.Background(), "owner", "Owner", "first-pass", domain.RoleOwner)
	if err != nil || !created {
		t.Fatalf("expected first ensure to create, got created=%v err=%v", created, err)
	}
	created, err = manager.EnsureUser(context.Background(), "owner", "Owner", "second-pass", domain.RoleOwner)
	if err != nil || created {
		t.Fatalf("expected second ensure to be a no-op, got created=%v err=%v", created, err)
	}

	if _, _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "owner", Password: "first-pass"}); err != nil {
		t.Fatalf("original password should still work: %v", err)
	}
}

func TestParseTokenRejectsExpiredAndForeignTokens(t *testing.T) {
	users := &userStoreStub{}
	manager := NewAuthManager("test-secret", time.Minute, users)
	if _, err := manager.EnsureUser(context.Background(), "cashier", "Cashier", "cashier123", domain.RoleCashier); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	resp, _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "cashier", Password: "cashier123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	other := NewAuthManager("another-secret", time.Minute, users)
	if _, err := other.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}

	manager.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := manager.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}
