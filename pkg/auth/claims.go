package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenVersion is the claims layout version carried in every minted token.
// Verification rejects tokens from a newer layout.
const TokenVersion = 1

// Claims is the payload of an NLPipe API token.
//
// Tokens carry no expiry: they authenticate long-running worker machines
// and are revoked by rotating the server secret.
type Claims struct {
	// Version is the claims layout version. Currently always 1.
	Version int `json:"version"`

	jwt.RegisteredClaims
}
