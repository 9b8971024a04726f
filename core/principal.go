package core

import "context"

// sessionPrincipalKey is the session value holding the serialized principal.
const sessionPrincipalKey = "principal"

// PrincipalResolver maps users to the opaque id kept in the session and back.
type PrincipalResolver struct {
	users CredentialStore
}

func NewPrincipalResolver(users CredentialStore) *PrincipalResolver {
	return &PrincipalResolver{users: users}
}

// Serialize returns the value stored in the session for u.
func (p *PrincipalResolver) Serialize(u *User) int64 {
	return u.ID
}

// Deserialize resolves a stored id. ErrUserNotFound is passed through so the
// session layer can treat the request as anonymous.
func (p *PrincipalResolver) Deserialize(ctx context.Context, id int64) (*User, error) {
	return p.users.FindByID(ctx, id)
}

// principalID extracts the stored id; gob decodes it back as int64.
func principalID(values map[interface{}]interface{}) (int64, bool) {
	id, ok := values[sessionPrincipalKey].(int64)
	return id, ok && id > 0
}
