package auth

import (
	"testing"
	"time"

	"github.com/simp-lee/practiceadmin/internal/domain"
)

func TestPrincipalCache(t *testing.T) {
	pc := NewPrincipalCache(16, time.Minute)
	t.Cleanup(pc.Close)

	p := &domain.Principal{StaffID: 3, Name: "Sam", Role: domain.RoleStaff}
	pc.put(p)
	p.Role = domain.RoleAdmin

	got, ok := pc.get(3)
	if !ok || got.Name != "Sam" || got.Role != domain.RoleStaff {
		t.Fatalf("get(3) = %+v, %v; want the stored copy", got, ok)
	}
	got.Name = "changed"
	if again, _ := pc.get(3); again.Name != "Sam" {
		t.Errorf("cached entry changed through a returned copy: %+v", again)
	}

	pc.Forget(3)
	if _, ok := pc.get(3); ok {
		t.Error("entry still cached after Forget")
	}
}

func TestPrincipalCache_Expires(t *testing.T) {
	pc := NewPrincipalCache(16, 20*time.Millisecond)
	t.Cleanup(pc.Close)

	pc.put(&domain.Principal{StaffID: 1})
	time.Sleep(40 * time.Millisecond)
	if _, ok := pc.get(1); ok {
		t.Error("entry outlived its ttl")
	}
}

func TestPrincipalCache_Nil(t *testing.T) {
	var pc *PrincipalCache
	pc.put(&domain.Principal{StaffID: 1})
	if _, ok := pc.get(1); ok {
		t.Error("nil cache returned an entry")
	}
	pc.Forget(1)
	pc.Close()
}
