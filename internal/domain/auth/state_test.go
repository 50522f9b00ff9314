package auth

import "testing"

func TestStateConstructors(t *testing.T) {
	v := Verifying()
	if v.Status != StatusVerifying || v.IsAuthenticated() {
		t.Fatalf("unexpected verifying state: %+v", v)
	}

	u := Unauthenticated(ReasonNetwork)
	if u.Status != StatusUnauthenticated || u.Reason != "network_error" || u.Principal != nil {
		t.Fatalf("unexpected unauthenticated state: %+v", u)
	}

	p := Principal{ID: "u1", Email: "a@clinic.test", Role: RolePatient}
	a := Authenticated(p, false)
	if !a.IsAuthenticated() || a.Verified {
		t.Fatalf("unexpected authenticated state: %+v", a)
	}
	p.Role = RoleAdmin
	if a.Principal.Role != RolePatient {
		t.Fatalf("Authenticated must copy the principal")
	}
}

func TestState_Equal(t *testing.T) {
	p := Principal{ID: "u1", Email: "a@clinic.test", Role: RolePatient}
	tests := []struct {
		name string
		a, b State
		want bool
	}{
		{"same verifying", Verifying(), Verifying(), true},
		{"different reason", Unauthenticated(ReasonLoggedOut), Unauthenticated(ReasonUnauthorized), false},
		{"same principal value", Authenticated(p, true), Authenticated(p, true), true},
		{"verified differs", Authenticated(p, true), Authenticated(p, false), false},
		{"status differs", Verifying(), Unauthenticated(ReasonNone), false},
		{"nil vs principal", State{Status: StatusAuthenticated}, Authenticated(p, false), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Fatalf("Equal() = %v, want %v", got, tt.want)
			}
		})
	}
}
