package rights

import (
	"reflect"
	"testing"
)

func TestDefaultTable(t *testing.T) {
	tbl := Default()

	if got := tbl.Granted(RoleUser); len(got) != 0 {
		t.Fatalf("expected user to hold no rights, got %v", got)
	}
	if got := tbl.Granted(RoleAdmin); !reflect.DeepEqual(got, []string{GetUsers, ManageUsers}) {
		t.Fatalf("unexpected admin rights %v", got)
	}
	if !tbl.HasAll(RoleAdmin, []string{ManageUsers}) {
		t.Fatal("expected admin to hold manageUsers")
	}
	if tbl.HasAll(RoleUser, []string{ManageUsers}) {
		t.Fatal("expected user to lack manageUsers")
	}
	if !tbl.HasAll(RoleUser, nil) {
		t.Fatal("expected empty requirement to pass")
	}
	if got := tbl.Roles(); !reflect.DeepEqual(got, []string{RoleAdmin, RoleUser}) {
		t.Fatalf("unexpected roles %v", got)
	}
}

func TestHasAllUnknownRightOrRole(t *testing.T) {
	tbl := Default()

	if tbl.HasAll(RoleAdmin, []string{GetUsers, "deleteEverything"}) {
		t.Fatal("unknown right must never be satisfied")
	}
	if tbl.HasAll("ghost", []string{GetUsers}) {
		t.Fatal("unknown role must hold no rights")
	}
	if tbl.HasRole("ghost") {
		t.Fatal("ghost role should not be known")
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New([]string{"a", "a"}, nil); err == nil {
		t.Fatal("expected duplicate right error")
	}
	if _, err := New([]string{""}, nil); err == nil {
		t.Fatal("expected empty right error")
	}
	if _, err := New([]string{"a"}, map[string][]string{"r": {"b"}}); err == nil {
		t.Fatal("expected unregistered right error")
	}
	if _, err := New(nil, map[string][]string{"": nil}); err == nil {
		t.Fatal("expected empty role error")
	}

	many := make([]string, MaxRights+1)
	for i := range many {
		many[i] = string(rune('a'+i%26)) + string(rune('A'+i/26))
	}
	if _, err := New(many, nil); err == nil {
		t.Fatal("expected rights limit error")
	}
}

func TestTableIsImmutableFromCallers(t *testing.T) {
	names := []string{"a", "b"}
	roles := map[string][]string{"r": {"a"}}
	tbl, err := New(names, roles)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	names[0] = "z"
	roles["r"] = append(roles["r"], "b")
	out := tbl.Rights()
	out[1] = "mutated"

	if !tbl.HasAll("r", []string{"a"}) || tbl.HasAll("r", []string{"b"}) {
		t.Fatal("table changed after caller mutated inputs")
	}
	if got := tbl.Rights(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("rights leaked mutation: %v", got)
	}
}

func TestMask(t *testing.T) {
	var m Mask
	m = m.Set(0).Set(63).Set(64)
	if !m.Has(0) || !m.Has(63) || m.Has(64) || m.Has(-1) {
		t.Fatalf("unexpected mask bits %b", m)
	}
	if !m.Contains(Mask(1)) || Mask(1).Contains(m) {
		t.Fatal("unexpected Contains result")
	}
}
