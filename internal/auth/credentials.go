package auth

import "crypto/subtle"

// VerifyAPIKey reports whether the presented key matches the configured
// one. The comparison is constant-time; an empty configured key never
// matches.
func VerifyAPIKey(configured, presented string) bool {
	if configured == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(presented)) == 1
}

// VerifyCredentials checks an admin login. Both fields are compared in
// constant time and combined without short-circuiting. Empty configured
// credentials never match.
func VerifyCredentials(wantUser, wantPass, user, pass string) bool {
	if wantUser == "" || wantPass == "" {
		return false
	}
	u := subtle.ConstantTimeCompare([]byte(wantUser), []byte(user))
	p := subtle.ConstantTimeCompare([]byte(wantPass), []byte(pass))
	return u&p == 1
}
