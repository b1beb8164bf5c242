package domain

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestStaffJSON_PasswordHashHidden(t *testing.T) {
	staff := Staff{
		Name:         "Alice",
		Email:        "alice@example.com",
		PasswordHash: "$2a$10$examplehash",
		Role:         RoleAdmin,
	}

	raw, err := json.Marshal(staff)
	if err != nil {
		t.Fatalf("marshal staff: %v", err)
	}

	body := string(raw)
	if strings.Contains(body, "password_hash") {
		t.Fatalf("json should not contain password_hash, got: %s", body)
	}
	if strings.Contains(body, "$2a$10$examplehash") {
		t.Fatalf("json should not contain PasswordHash value, got: %s", body)
	}
	if !strings.Contains(body, "\"role\":\"admin\"") {
		t.Fatalf("json should include role field, got: %s", body)
	}
}

func TestStaffJSON_UnmarshalIgnoresPasswordHashField(t *testing.T) {
	input := `{"name":"Alice","email":"alice@example.com","password_hash":"attacker-controlled"}`

	var staff Staff
	if err := json.Unmarshal([]byte(input), &staff); err != nil {
		t.Fatalf("unmarshal staff: %v", err)
	}

	if staff.Name != "Alice" {
		t.Fatalf("Name = %q, want %q", staff.Name, "Alice")
	}
	if staff.PasswordHash != "" {
		t.Fatalf("PasswordHash = %q, want empty", staff.PasswordHash)
	}
}

func TestRole_Valid(t *testing.T) {
	tests := []struct {
		role Role
		want bool
	}{
		{RoleAdmin, true},
		{RoleStaff, true},
		{Role(""), false},
		{Role("owner"), false},
	}
	for _, tt := range tests {
		if got := tt.role.Valid(); got != tt.want {
			t.Errorf("Role(%q).Valid() = %v; want %v", tt.role, got, tt.want)
		}
	}
}

func TestPrincipal_IsAdmin(t *testing.T) {
	var nilPrincipal *Principal
	if nilPrincipal.IsAdmin() {
		t.Error("nil principal should not be admin")
	}
	if (&Principal{Role: RoleStaff}).IsAdmin() {
		t.Error("staff principal should not be admin")
	}
	if !(&Principal{Role: RoleAdmin}).IsAdmin() {
		t.Error("admin principal should be admin")
	}
}

func TestPrincipal_Subject(t *testing.T) {
	if got := (&Principal{StaffID: 42}).Subject(); got != "42" {
		t.Errorf("Subject() = %q; want 42", got)
	}
	if got := (&Principal{Role: RoleAdmin}).Subject(); got != LocalSubject {
		t.Errorf("Subject() = %q; want %q", got, LocalSubject)
	}
}
