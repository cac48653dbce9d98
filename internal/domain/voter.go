package domain

// VoterRoll is the set of identifiers registered for one election, held in
// the auth type's normalized form.
type VoterRoll struct {
	authType AuthType
	members  map[string]struct{}
}

func NewVoterRoll(authType AuthType, identifiers []string) *VoterRoll {
	roll := &VoterRoll{
		authType: authType,
		members:  make(map[string]struct{}, len(identifiers)),
	}
	for _, id := range identifiers {
		if normalized, err := NormalizeIdentifier(authType, id); err == nil {
			roll.members[normalized] = struct{}{}
		}
	}
	return roll
}

func (r *VoterRoll) Contains(identifier string) bool {
	_, ok := r.members[identifier]
	return ok
}

// Append records a voter whose registration the server has acknowledged.
func (r *VoterRoll) Append(identifier string) {
	r.members[identifier] = struct{}{}
}

func (r *VoterRoll) Len() int {
	return len(r.members)
}
