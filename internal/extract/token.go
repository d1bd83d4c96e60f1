package extract

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// handoffTokenDuration is deliberately short: in the current single-process
// deployment the token is minted and verified within the same second.
const handoffTokenDuration = 2 * time.Minute

// ErrHandoffTokenInvalid is returned when a handoff token fails signature,
// expiry, or claim-shape verification.
var ErrHandoffTokenInvalid = errors.New("extract: invalid handoff token")

// handoffClaims binds an extraction task to the item and source it is
// authorized to touch.
type handoffClaims struct {
	jwt.RegisteredClaims
	ItemID   string `json:"item_id"`
	SourceID string `json:"source_id"`
}

// TokenIssuer signs and verifies extraction worker handoff tokens. A single
// process-lifetime HMAC key is enough since no token needs to outlive the
// process: the orchestrator mints one right before spawning the extraction
// task and the task verifies it before its first Store call.
type TokenIssuer struct {
	key []byte
}

func NewTokenIssuer(key []byte) *TokenIssuer {
	return &TokenIssuer{key: key}
}

// Issue mints a handoff token for the given item/source pair.
func (i *TokenIssuer) Issue(itemID, sourceID string) (string, error) {
	now := time.Now()
	claims := handoffClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(handoffTokenDuration)),
		},
		ItemID:   itemID,
		SourceID: sourceID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("extract: signing handoff token: %w", err)
	}
	return signed, nil
}

// Verify checks the token's signature and expiry and returns the item id it
// authorizes. A validation failure is never fatal — the caller logs it and
// drops the task.
func (i *TokenIssuer) Verify(tokenString string) (itemID string, err error) {
	token, err := jwt.ParseWithClaims(tokenString, &handoffClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("extract: unexpected signing method: %v", t.Header["alg"])
		}
		return i.key, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return "", ErrHandoffTokenInvalid
	}
	claims, ok := token.Claims.(*handoffClaims)
	if !ok || !token.Valid || claims.ItemID == "" {
		return "", ErrHandoffTokenInvalid
	}
	return claims.ItemID, nil
}
