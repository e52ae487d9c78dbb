// Package domain contains core domain types for the unigo chat gateway.
package domain

// User is the profile subset the remote API reports for a signed-in user.
type User struct {
	Character      string `json:"character,omitempty"`
	CustomImageURL string `json:"custom_image_url,omitempty"`
}

// AuthInfo is the result of the remote auth check.
type AuthInfo struct {
	IsAuthenticated bool  `json:"is_authenticated"`
	User            *User `json:"user,omitempty"`
	HasHistory      bool  `json:"has_history,omitempty"`
}

// Guest is the AuthInfo used whenever the auth check fails or says no.
func Guest() AuthInfo {
	return AuthInfo{}
}
