package main

import (
	"net/http/httptest"
	"testing"
)

func TestOriginChecker(t *testing.T) {
	if originChecker(nil) != nil {
		t.Fatalf("empty list should allow any origin")
	}
	if originChecker([]string{"https://app.example", "*"}) != nil {
		t.Fatalf("wildcard should allow any origin")
	}

	check := originChecker([]string{"https://App.example/"})
	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Origin", "https://app.example")
	if !check(req) {
		t.Fatalf("expected origin to be allowed")
	}
	req.Header.Set("Origin", "https://evil.example")
	if check(req) {
		t.Fatalf("expected origin to be rejected")
	}
}

func TestRedactDSN(t *testing.T) {
	if redactDSN("") != "" || redactDSN("postgres://u:p@h/db") != "***" {
		t.Fatalf("unexpected redaction")
	}
}
