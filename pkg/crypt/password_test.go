package crypt

import "testing"

func TestBcryptRoundTrip(t *testing.T) {
	h, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPassword("hunter2", h) {
		t.Error("correct password rejected")
	}
	if CheckPassword("hunter3", h) {
		t.Error("wrong password accepted")
	}
	if NeedsUpgrade(h) {
		t.Error("bcrypt hash flagged for upgrade")
	}
}

func TestLegacyDES(t *testing.T) {
	stored := Crypt("hunter2", "XX")
	if stored == "" {
		t.Fatal("crypt returned empty hash")
	}
	if !CheckPassword("hunter2", stored) {
		t.Error("correct password rejected against DES hash")
	}
	if CheckPassword("hunter3", stored) {
		t.Error("wrong password accepted against DES hash")
	}
	if !NeedsUpgrade(stored) {
		t.Error("DES hash should be flagged for upgrade")
	}
}

func TestCheckPasswordMalformed(t *testing.T) {
	if CheckPassword("x", "") || CheckPassword("x", "Q") {
		t.Error("malformed hash accepted")
	}
}
