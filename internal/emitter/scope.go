package emitter

// AccountScope identifies the account an emitter instance is bound to.
// Queue entries are keyed by scope so switching accounts never leaks
// events from the previous account's queue into the new one (spec
// §4.F).
type AccountScope struct {
	ServerURL string
	Username  string
	TeamSlug  string
}

// Key returns a stable string key for this scope, suitable for use as a
// queue partition key or map key.
func (s AccountScope) Key() string {
	return s.ServerURL + "|" + s.Username + "|" + s.TeamSlug
}
