package domain

// Identity is what the identity provider asserts about a signed-in user.
type Identity struct {
	ID    string
	Email string
	Name  string
}

// Actor is an identity with its resolved role, as seen by services.
type Actor struct {
	Identity
	Role Role
}

// DisplayName prefers the human name, then the email.
func (a Actor) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	if a.Email != "" {
		return a.Email
	}
	return a.ID
}
