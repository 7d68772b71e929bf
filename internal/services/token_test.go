package services

import (
	"testing"
	"time"
)

func TestMintCredentials_RoundTrip(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)

	creds, err := svc.MintCredentials("rig-ff-001")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if creds.Username != "web-rig-ff-001" {
		t.Errorf("unexpected username %q", creds.Username)
	}

	claims, err := svc.ValidateToken(creds.Password)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.RigID != "rig-ff-001" {
		t.Errorf("unexpected rig claim %q", claims.RigID)
	}
	if claims.Subject != "web-rig-ff-001" {
		t.Errorf("unexpected subject %q", claims.Subject)
	}
	if claims.ID == "" {
		t.Error("expected a token id")
	}
}

func TestMintCredentials_EmptyRigID(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)

	if _, err := svc.MintCredentials(""); err == nil {
		t.Error("expected an error for an empty rig id")
	}
}

func TestMintCredentials_UniquePasswords(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)

	a, err := svc.MintCredentials("rig-ff-001")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	b, err := svc.MintCredentials("rig-ff-001")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if a.Password == b.Password {
		t.Error("each minted password should carry a fresh token id")
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)
	other := NewTokenService("different-secret", time.Hour)

	creds, err := svc.MintCredentials("rig-ff-001")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	if _, err := other.ValidateToken(creds.Password); err == nil {
		t.Error("token signed with another secret should not validate")
	}
}

func TestValidateToken_Expired(t *testing.T) {
	svc := NewTokenService("test-secret", -time.Minute)

	creds, err := svc.MintCredentials("rig-ff-001")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	if _, err := svc.ValidateToken(creds.Password); err == nil {
		t.Error("expired token should not validate")
	}
}

func TestValidateToken_Garbage(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)

	if _, err := svc.ValidateToken("not-a-jwt"); err == nil {
		t.Error("malformed token should not validate")
	}
}
