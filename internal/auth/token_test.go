package auth

import (
	"errors"
	"testing"
	"time"

	"pagetree/internal/rbac"
)

func TestIssueAndParseToken(t *testing.T) {
	secret := []byte("secret")
	issued, claims, err := Issue(secret, "user-1", "Avery", "editor", time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if claims.JTI == "" {
		t.Fatal("expected a token id")
	}
	parsed, err := ParseToken(secret, issued)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	requester := parsed.Requester()
	if requester.ID != "user-1" || requester.Name != "Avery" || requester.Role != rbac.RoleEditor {
		t.Fatalf("unexpected requester: %+v", requester)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueToken(secret, Claims{
		Sub:  "user-1",
		Name: "Avery",
		Role: "editor",
		JTI:  "jti-1",
		Exp:  time.Now().Add(-time.Minute).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if _, err := ParseToken(secret, issued); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestParseTokenRejectsTampering(t *testing.T) {
	issued, _, err := Issue([]byte("secret"), "user-1", "Avery", "viewer", time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, err := ParseToken([]byte("other"), issued); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong secret, got %v", err)
	}
	if _, err := ParseToken([]byte("secret"), issued+".extra"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for extra segment, got %v", err)
	}
}

func TestParseBearer(t *testing.T) {
	secret := []byte("secret")
	issued, _, err := Issue(secret, "user-2", "Sam", "admin", time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	cases := []struct {
		name   string
		header string
		want   error
	}{
		{name: "valid", header: "Bearer " + issued},
		{name: "lowercase scheme", header: "bearer " + issued},
		{name: "missing", header: "", want: ErrMissingToken},
		{name: "wrong scheme", header: "Basic abc", want: ErrInvalidToken},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseBearer(secret, tc.header)
			if tc.want == nil && err != nil {
				t.Fatalf("ParseBearer() error = %v", err)
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}
