package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/vkportal/vkauth"
	"github.com/vkportal/vkauth/password"
)

type guardTestStore struct {
	staff      map[string]*vkauth.StaffIdentity
	candidates map[string]*vkauth.CandidateIdentity
}

func (s *guardTestStore) FindStaffByLogin(_ context.Context, login string) (*vkauth.StaffIdentity, error) {
	for _, staff := range s.staff {
		if staff.Email == login {
			return staff, nil
		}
	}
	return nil, nil
}

func (s *guardTestStore) FindStaffByID(_ context.Context, id string) (*vkauth.StaffIdentity, error) {
	return s.staff[id], nil
}

func (s *guardTestStore) FindCandidateByLogin(_ context.Context, login string) (*vkauth.CandidateIdentity, error) {
	for _, cand := range s.candidates {
		if cand.ExternalID == login {
			return cand, nil
		}
	}
	return nil, nil
}

func (s *guardTestStore) FindCandidateByID(_ context.Context, id string) (*vkauth.CandidateIdentity, error) {
	return s.candidates[id], nil
}

func (s *guardTestStore) PersistEnrollment(context.Context, string, []byte, [][32]byte) error {
	return nil
}

func (s *guardTestStore) DisableTwoFactor(context.Context, string) error { return nil }

func (s *guardTestStore) ReplaceBackupCodes(context.Context, string, [][32]byte) error { return nil }

func (s *guardTestStore) ConsumeBackupCode(context.Context, string, [32]byte) (bool, error) {
	return false, nil
}

func (s *guardTestStore) UpdateTwoFactorLastUsedCounter(context.Context, string, int64) error {
	return nil
}

func newGuardTestEngine(t *testing.T) (*vkauth.Engine, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := vkauth.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("test-secret")
	cfg.TOTP.Enabled = false
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}
	staffHash, err := hasher.Hash("staff-password")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	candidateHash, err := hasher.Hash("candidate-password")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	store := &guardTestStore{
		staff: map[string]*vkauth.StaffIdentity{
			"staff-1": {
				ID:           "staff-1",
				Username:     "alice",
				Email:        "alice@example.com",
				PasswordHash: staffHash,
				Role:         vkauth.RoleGestor,
				Active:       true,
			},
			"staff-2": {
				ID:           "staff-2",
				Username:     "boris",
				Email:        "boris@example.com",
				PasswordHash: staffHash,
				Role:         vkauth.RoleAdmin,
				Active:       true,
			},
		},
		candidates: map[string]*vkauth.CandidateIdentity{
			"cand-1": {
				ID:           "cand-1",
				ExternalID:   "vk-2026-001",
				ProcessID:    "proc-1",
				DisplayName:  "Jana Kovac",
				PasswordHash: candidateHash,
			},
		},
	}

	engine, err := vkauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithIdentityStore(store).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	return engine, mr, func() {
		engine.Close()
		mr.Close()
	}
}

func loginToken(t *testing.T, engine *vkauth.Engine, login, pass string) string {
	t.Helper()

	result, err := engine.Login(context.Background(), login, pass)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	return result.Token
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doGuarded(handler http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestGuardRejectsMissingToken(t *testing.T) {
	engine, _, done := newGuardTestEngine(t)
	defer done()

	handler := Guard(engine, Options{})(okHandler())
	if rr := doGuarded(handler, ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	handler = Guard(engine, Options{LoginURL: "/login"})(okHandler())
	rr := doGuarded(handler, "")
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != "/login" {
		t.Fatalf("expected redirect to /login, got %q", loc)
	}
}

func TestGuardRejectsGarbageToken(t *testing.T) {
	engine, _, done := newGuardTestEngine(t)
	defer done()

	handler := Guard(engine, Options{})(okHandler())
	if rr := doGuarded(handler, "not-a-jwt"); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestGuardPassesStaffAndExposesAuth(t *testing.T) {
	engine, _, done := newGuardTestEngine(t)
	defer done()

	token := loginToken(t, engine, "alice@example.com", "staff-password")

	var seen *vkauth.AuthResult
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result, ok := AuthFromContext(r.Context())
		if !ok {
			t.Fatal("expected auth result in context")
		}
		seen = result
		w.WriteHeader(http.StatusOK)
	})

	handler := Guard(engine, Options{})(inner)
	if rr := doGuarded(handler, token); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if seen.IdentityID != "staff-1" || seen.Kind != vkauth.KindStaff || seen.Role != vkauth.RoleGestor {
		t.Fatalf("unexpected auth result: %+v", seen)
	}
}

func TestGuardEnforcesRoleList(t *testing.T) {
	engine, _, done := newGuardTestEngine(t)
	defer done()

	gestorToken := loginToken(t, engine, "alice@example.com", "staff-password")
	adminToken := loginToken(t, engine, "boris@example.com", "staff-password")

	handler := Guard(engine, Options{}, vkauth.RoleAdmin, vkauth.RoleSuperadmin)(okHandler())
	if rr := doGuarded(handler, gestorToken); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for gestor, got %d", rr.Code)
	}
	if rr := doGuarded(handler, adminToken); rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", rr.Code)
	}

	handler = Guard(engine, Options{UnauthorizedURL: "/denied"}, vkauth.RoleAdmin)(okHandler())
	rr := doGuarded(handler, gestorToken)
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/denied" {
		t.Fatalf("expected redirect to /denied, got %d %q", rr.Code, rr.Header().Get("Location"))
	}
}

func TestGuardReadsCookieFallback(t *testing.T) {
	engine, _, done := newGuardTestEngine(t)
	defer done()

	token := loginToken(t, engine, "alice@example.com", "staff-password")
	handler := Guard(engine, Options{CookieName: "vk_session"})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: "vk_session", Value: token})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 via cookie, got %d", rr.Code)
	}
}

func TestCandidateGuardKinds(t *testing.T) {
	engine, _, done := newGuardTestEngine(t)
	defer done()

	staffToken := loginToken(t, engine, "alice@example.com", "staff-password")
	candidateToken := loginToken(t, engine, "vk-2026-001", "candidate-password")

	handler := CandidateGuard(engine, Options{})(okHandler())
	if rr := doGuarded(handler, staffToken); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff token, got %d", rr.Code)
	}
	if rr := doGuarded(handler, candidateToken); rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for candidate token, got %d", rr.Code)
	}

	// A staff token cannot pass a staff guard after switching either.
	staffGuard := Guard(engine, Options{})(okHandler())
	adminToken := loginToken(t, engine, "boris@example.com", "staff-password")
	switched, err := engine.SwitchToCandidate(context.Background(), adminToken, "cand-1")
	if err != nil {
		t.Fatalf("SwitchToCandidate failed: %v", err)
	}
	if rr := doGuarded(handler, switched.Token); rr.Code != http.StatusOK {
		t.Fatalf("expected switched token to pass candidate guard, got %d", rr.Code)
	}
	if rr := doGuarded(staffGuard, switched.Token); rr.Code != http.StatusForbidden {
		t.Fatalf("expected switched token rejected by staff guard, got %d", rr.Code)
	}
}

func TestGuardFailsClosedWhenRedisDown(t *testing.T) {
	engine, mr, done := newGuardTestEngine(t)
	defer done()

	token := loginToken(t, engine, "alice@example.com", "staff-password")
	mr.Close()

	handler := Guard(engine, Options{})(okHandler())
	if rr := doGuarded(handler, token); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with session store down, got %d", rr.Code)
	}
}

func TestGuardRevokedSessionRedirects(t *testing.T) {
	engine, _, done := newGuardTestEngine(t)
	defer done()

	token := loginToken(t, engine, "alice@example.com", "staff-password")
	if err := engine.Logout(context.Background(), token); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	handler := Guard(engine, Options{LoginURL: "/login"})(okHandler())
	rr := doGuarded(handler, token)
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/login" {
		t.Fatalf("expected redirect to /login, got %d %q", rr.Code, rr.Header().Get("Location"))
	}
}
