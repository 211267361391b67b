package main

import (
	"bytes"
	"strings"
	"testing"

	"tasklist/internal/auth"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestTokenCommand(t *testing.T) {
	t.Setenv("TASKLIST_JWT_SECRET", secret)
	t.Setenv("TASKLIST_STORAGE_DRIVER", "memory")
	var out, errOut bytes.Buffer
	if code := run([]string{"token", "alice", "--name=Alice", "--expiry=1h"}, &out, &errOut); code != 0 {
		t.Fatalf("exit %d: %s", code, errOut.String())
	}
	claims, err := auth.ValidateToken([]byte(secret), strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("minted token invalid: %v", err)
	}
	if claims.UserID != "alice" || claims.Username != "Alice" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestRunRejectsWeakSecret(t *testing.T) {
	t.Setenv("TASKLIST_JWT_SECRET", "short")
	var out, errOut bytes.Buffer
	if code := run([]string{"token", "alice"}, &out, &errOut); code != 1 {
		t.Fatalf("expected config failure, got %d", code)
	}
	if !strings.Contains(errOut.String(), "jwt_secret") {
		t.Fatalf("unexpected stderr %q", errOut.String())
	}
}

func TestRunUsage(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run([]string{"bogus"}, &out, &errOut); code != 2 {
		t.Fatalf("expected usage exit, got %d", code)
	}
	out.Reset()
	if code := run([]string{"--version"}, &out, &errOut); code != 0 || strings.TrimSpace(out.String()) != version {
		t.Fatalf("version: %d %q", code, out.String())
	}
}
