// file: model/token.go

package model

// SessionBundle is returned by login and refresh rotation.
type SessionBundle struct {
	AccessToken string      `json:"accessToken"`
	ExpiresIn   int         `json:"expiresIn"`
	User        UserSummary `json:"user"`
	// RefreshToken is transported in an HTTP-only cookie, never in the body.
	RefreshToken string `json:"-"`
}
