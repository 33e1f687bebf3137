package backend

// Subscription is a browser push subscription owned by one account.
// Endpoint plus the two key material fields are everything the push
// transport needs to address the browser.
type Subscription struct {
	ID        int64  `json:"id"`
	AccountID int64  `json:"-"`
	Endpoint  string `json:"endpoint"`
	P256dh    string `json:"p256dh"`
	Auth      string `json:"auth"`
}

// Validate checks the subscription fields.
func (s *Subscription) Validate() error {
	if s.Endpoint == "" {
		return &ValidationError{Field: "endpoint", Reason: "must not be empty"}
	}
	if s.P256dh == "" || s.Auth == "" {
		return &ValidationError{Field: "keys", Reason: "p256dh and auth must not be empty"}
	}
	return nil
}
