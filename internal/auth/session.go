package auth

// Session is the resolved identity of an authenticated caller. It
// satisfies chat.Identity.
type Session struct {
	userID string
}

// NewSession creates a session for a verified user id.
func NewSession(userID string) Session {
	return Session{userID: userID}
}

// CurrentUserID returns the stable identifier of the active caller.
func (s Session) CurrentUserID() (string, error) {
	if s.userID == "" {
		return "", ErrUnauthenticated
	}
	return s.userID, nil
}
