package auth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"jualin/pos/internal/domain"
)

type userStoreStub struct {
	mu    sync.Mutex
	users map[string]domain.UserAccount
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	return nil
}

func stubWithAdmin() *userStoreStub {
	return &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      domain.RoleAdmin,
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}
}

func TestLoginAndParseToken(t *testing.T) {
	manager := NewManager("test-secret", time.Hour, "123456", stubWithAdmin())

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.Role != domain.RoleAdmin {
		t.Fatalf("role: got %s, want admin", resp.Role)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "admin" || actor.Role != domain.RoleAdmin {
		t.Fatalf("actor: %+v", actor)
	}

	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "wrong"}); err == nil {
		t.Fatal("wrong password should not log in")
	}
	if _, err := manager.ParseToken(resp.AccessToken + "x"); err == nil {
		t.Fatal("tampered token should not parse")
	}
}

func TestLoginUpgradesPlainPassword(t *testing.T) {
	store := stubWithAdmin()
	manager := NewManager("test-secret", time.Hour, "123456", store)

	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"}); err != nil {
		t.Fatalf("login: %v", err)
	}

	users, _ := store.ListUsers(context.Background())
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	if !strings.HasPrefix(users[0].Password, "$2") {
		t.Fatalf("expected bcrypt hash in store, got %s", users[0].Password)
	}
	// Login still works against the upgraded hash.
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"}); err != nil {
		t.Fatalf("login after upgrade: %v", err)
	}
}

func TestCreateCashier(t *testing.T) {
	store := stubWithAdmin()
	manager := NewManager("test-secret", time.Hour, "123456", store)

	cashier, err := manager.CreateCashier(context.Background(), domain.CashierCreateRequest{
		Username: "KasirBaru",
		Password: "pass1234",
	})
	if err != nil {
		t.Fatalf("create cashier: %v", err)
	}
	if cashier.Username != "kasirbaru" {
		t.Fatalf("username should be lowercased: %s", cashier.Username)
	}

	stored, ok := store.users["kasirbaru"]
	if !ok {
		t.Fatal("cashier not persisted")
	}
	if stored.Password == "pass1234" || !strings.HasPrefix(stored.Password, "$2") {
		t.Fatalf("cashier password stored unhashed: %s", stored.Password)
	}

	if _, err := manager.CreateCashier(context.Background(), domain.CashierCreateRequest{Username: "kasirbaru", Password: "pass1234"}); err == nil {
		t.Fatal("duplicate username should be rejected")
	}
	if _, err := manager.CreateCashier(context.Background(), domain.CashierCreateRequest{Username: "ab", Password: "pass1234"}); err == nil {
		t.Fatal("short username should be rejected")
	}
	if _, err := manager.CreateCashier(context.Background(), domain.CashierCreateRequest{Username: "kasirdua", Password: "123"}); err == nil {
		t.Fatal("short password should be rejected")
	}

	cashiers := manager.ListCashiers(context.Background())
	if len(cashiers) != 1 || cashiers[0].Username != "kasirbaru" {
		t.Fatalf("list cashiers: %+v", cashiers)
	}
}

func TestValidateManagerPIN(t *testing.T) {
	manager := NewManager("test-secret", time.Hour, "4321", stubWithAdmin())
	if !manager.ValidateManagerPIN("4321") {
		t.Fatal("correct PIN rejected")
	}
	if manager.ValidateManagerPIN("0000") {
		t.Fatal("wrong PIN accepted")
	}
	if manager.ValidateManagerPIN("") {
		t.Fatal("empty PIN accepted")
	}
}
