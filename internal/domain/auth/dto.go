package auth

// RealtimeTokenResponse is a short-lived token for websocket clients that
// cannot set an Authorization header.
type RealtimeTokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}
