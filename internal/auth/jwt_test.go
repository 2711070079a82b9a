package auth

import (
	"testing"
	"time"
)

func TestIssueAndParse(t *testing.T) {
	pair, err := Issue("t1", RoleTeacher, "classtrack", "test-key", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("empty tokens")
	}

	claims, err := Parse(pair.AccessToken, "test-key", "classtrack")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "t1" || claims.Role != RoleTeacher {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestParseRejectsWrongKey(t *testing.T) {
	pair, _ := Issue("t1", RoleTeacher, "classtrack", "test-key", time.Minute, time.Hour)
	if _, err := Parse(pair.AccessToken, "other-key", "classtrack"); err == nil {
		t.Fatal("token signed with a different key must fail")
	}
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	pair, _ := Issue("t1", RoleTeacher, "someone-else", "test-key", time.Minute, time.Hour)
	if _, err := Parse(pair.AccessToken, "test-key", "classtrack"); err == nil {
		t.Fatal("issuer mismatch must fail")
	}
}

func TestParseRejectsExpired(t *testing.T) {
	pair, _ := Issue("t1", RoleTeacher, "classtrack", "test-key", -time.Minute, time.Hour)
	if _, err := Parse(pair.AccessToken, "test-key", "classtrack"); err == nil {
		t.Fatal("expired token must fail")
	}
}
