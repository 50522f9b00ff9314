package auth

// Status is the tag of the auth state union.
type Status string

const (
	StatusVerifying       Status = "verifying"
	StatusUnauthenticated Status = "unauthenticated"
	StatusAuthenticated   Status = "authenticated"
)

// Reasons recorded when entering Unauthenticated.
const (
	ReasonNone         = ""
	ReasonUnauthorized = "unauthorized"
	ReasonNetwork      = "network_error"
	ReasonLoggedOut    = "logged_out"
)

// State is the current auth state. Exactly one Status is current; Principal is
// set only when Status is StatusAuthenticated.
type State struct {
	Status    Status     `json:"status"`
	Principal *Principal `json:"principal,omitempty"`
	// Verified is false when the principal came from the local copy after a
	// network failure. Such a state is for UI optimism only.
	Verified bool   `json:"verified"`
	Reason   string `json:"reason,omitempty"`
}

// Verifying returns the state held while a verification is in flight.
func Verifying() State { return State{Status: StatusVerifying} }

// Unauthenticated returns the signed-out state with the reason it was entered.
func Unauthenticated(reason string) State {
	return State{Status: StatusUnauthenticated, Reason: reason}
}

// Authenticated returns a signed-in state for p.
func Authenticated(p Principal, verified bool) State {
	pc := p
	return State{Status: StatusAuthenticated, Principal: &pc, Verified: verified}
}

// IsAuthenticated reports whether a principal is present.
func (s State) IsAuthenticated() bool {
	return s.Status == StatusAuthenticated && s.Principal != nil
}

// Equal compares two states by value.
func (s State) Equal(o State) bool {
	if s.Status != o.Status || s.Verified != o.Verified || s.Reason != o.Reason {
		return false
	}
	if (s.Principal == nil) != (o.Principal == nil) {
		return false
	}
	return s.Principal == nil || *s.Principal == *o.Principal
}
