package middleware

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
)

const sessionName = "voter-session"

var attemptKeys = []string{"election_id", "identifier", "pin_id", "verified", "state"}

// Attempt is the part of an admission attempt that survives between
// requests.
type Attempt struct {
	ElectionID string
	Identifier string
	PinID      string
	Verified   bool
	State      string
}

type VoterSession struct {
	store sessions.Store
}

func NewVoterSession(store sessions.Store) *VoterSession {
	return &VoterSession{store: store}
}

func (m *VoterSession) SaveAttempt(w http.ResponseWriter, r *http.Request, a Attempt) error {
	session, err := m.store.Get(r, sessionName)
	if err != nil {
		return err
	}

	session.Values["election_id"] = a.ElectionID
	session.Values["identifier"] = a.Identifier
	session.Values["pin_id"] = a.PinID
	session.Values["verified"] = a.Verified
	session.Values["state"] = a.State

	return session.Save(r, w)
}

// LoadAttempt returns the stored attempt if it belongs to electionID.
func (m *VoterSession) LoadAttempt(r *http.Request, electionID string) (Attempt, bool) {
	session, err := m.store.Get(r, sessionName)
	if err != nil {
		return Attempt{}, false
	}

	id, _ := session.Values["election_id"].(string)
	if id == "" || id != electionID {
		return Attempt{}, false
	}

	a := Attempt{ElectionID: id}
	a.Identifier, _ = session.Values["identifier"].(string)
	a.PinID, _ = session.Values["pin_id"].(string)
	a.Verified, _ = session.Values["verified"].(bool)
	a.State, _ = session.Values["state"].(string)
	return a, true
}

func (m *VoterSession) ClearAttempt(w http.ResponseWriter, r *http.Request) error {
	session, err := m.store.Get(r, sessionName)
	if err != nil {
		return err
	}

	for _, key := range attemptKeys {
		delete(session.Values, key)
	}
	return session.Save(r, w)
}

// MarkAdmitted records that identifier reached the ballot of electionID
// and drops the finished attempt.
func (m *VoterSession) MarkAdmitted(w http.ResponseWriter, r *http.Request, electionID, identifier string) error {
	session, err := m.store.Get(r, sessionName)
	if err != nil {
		return err
	}

	for _, key := range attemptKeys {
		delete(session.Values, key)
	}
	session.Values["admitted:"+electionID] = identifier
	return session.Save(r, w)
}

func (m *VoterSession) AdmittedIdentifier(r *http.Request, electionID string) (string, bool) {
	session, err := m.store.Get(r, sessionName)
	if err != nil {
		return "", false
	}

	identifier, ok := session.Values["admitted:"+electionID].(string)
	return identifier, ok && identifier != ""
}

// RequireAdmission guards routes with {id} and {voter} variables: the
// decoded voter token must match the identifier admitted in this session.
func (m *VoterSession) RequireAdmission(decode func(token string) (string, error)) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			vars := mux.Vars(r)

			identifier, err := decode(vars["voter"])
			if err != nil {
				http.Error(w, "Ballot link is not valid", http.StatusNotFound)
				return
			}

			admitted, ok := m.AdmittedIdentifier(r, vars["id"])
			if !ok || admitted != identifier {
				http.Error(w, "Voter has not been admitted to this election", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
