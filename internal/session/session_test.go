package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

var testSecret = []byte("test-secret")

func TestIssueAndVerify(t *testing.T) {
	svc := NewService(testSecret, time.Minute, nil)
	token, err := svc.Issue("acct-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := svc.Verify(context.Background(), token.Value)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.AccountID() != "acct-1" {
		t.Fatalf("unexpected subject %q", claims.AccountID())
	}
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	token, _ := NewService([]byte("other"), time.Minute, nil).Issue("acct-1")
	svc := NewService(testSecret, time.Minute, nil)
	if _, err := svc.Verify(context.Background(), token.Value); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
	if _, err := svc.Verify(context.Background(), "not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	svc := NewService(testSecret, time.Minute, nil)
	start := time.Date(2024, time.March, 14, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return start }
	token, err := svc.Issue("acct-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	svc.now = func() time.Time { return start.Add(2 * time.Minute) }
	if _, err := svc.Verify(context.Background(), token.Value); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
}

func TestRevokeWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	ctx := context.Background()
	svc := NewService(testSecret, time.Minute, NewRedisRevocations(cache))
	token, err := svc.Issue("acct-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := svc.Revoke(ctx, token.Value); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := svc.Verify(ctx, token.Value); !errors.Is(err, ErrRevoked) {
		t.Fatalf("expected revoked, got %v", err)
	}

	other, _ := svc.Issue("acct-1")
	if _, err := svc.Verify(ctx, other.Value); err != nil {
		t.Fatalf("unrelated session affected: %v", err)
	}

	mr.FastForward(2 * time.Minute)
	if n := len(mr.Keys()); n != 0 {
		t.Fatalf("expected revocation to expire, %d keys left", n)
	}
}

type staticAuth map[string]string

func (a staticAuth) Login(_ context.Context, card, pin string) (string, error) {
	if a[card] != pin {
		return "", errors.New("invalid card number or PIN")
	}
	return "acct-" + card, nil
}

func TestLoginLogoutHandlers(t *testing.T) {
	svc := NewService(testSecret, time.Minute, nil)
	h := NewHandler(staticAuth{"4000": "1234"}, svc)
	app := fiber.New()
	app.Post("/login", h.Login)
	app.Post("/logout", h.Logout)

	req := httptest.NewRequest(fiber.MethodPost, "/login", strings.NewReader(`{"card_number":"4000","pin":"9999"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.StatusCode)
	}

	req = httptest.NewRequest(fiber.MethodPost, "/login", strings.NewReader(`{"card_number":"4000","pin":"1234"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 got %d", resp.StatusCode)
	}
	var body struct {
		AccessToken string `json:"access_token"`
		AccountID   string `json:"account_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if body.AccountID != "acct-4000" || body.AccessToken == "" {
		t.Fatalf("unexpected login body %+v", body)
	}

	req = httptest.NewRequest(fiber.MethodPost, "/logout", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+body.AccessToken)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("logout: %v", err)
	}
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("expected 204 got %d", resp.StatusCode)
	}
	if _, err := svc.Verify(context.Background(), body.AccessToken); !errors.Is(err, ErrRevoked) {
		t.Fatalf("expected revoked after logout, got %v", err)
	}
}
