package connect

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/dealguard/dealguard/internal/errors"
)

// statePayload is the claim set carried through the OAuth round trip. The
// remote authority echoes it back verbatim; the signature is what proves the
// callback belongs to an authorization this service started.
type statePayload struct {
	UserID string `json:"user_id"`
	Nonce  string `json:"nonce"`
	Exp    int64  `json:"exp"`
}

func signState(secret []byte, userID string, exp time.Time) (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate state nonce: %w", err)
	}

	payload, err := json.Marshal(statePayload{
		UserID: userID,
		Nonce:  hex.EncodeToString(nonce),
		Exp:    exp.Unix(),
	})
	if err != nil {
		return "", err
	}

	encoded := base64.RawURLEncoding.EncodeToString(payload)
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(encoded))
	return encoded + "." + hex.EncodeToString(mac.Sum(nil)), nil
}

// verifyState checks the signature and expiry and returns the user the
// authorization was started for. Every failure mode maps to ErrInvalidState
// so callers cannot leak which check failed.
func verifyState(secret []byte, state string, now time.Time) (string, error) {
	encoded, sig, ok := strings.Cut(state, ".")
	if !ok || encoded == "" || sig == "" {
		return "", apperrors.ErrInvalidState
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(encoded))
	want := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(sig), []byte(want)) {
		return "", apperrors.ErrInvalidState
	}

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", apperrors.ErrInvalidState
	}
	var payload statePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", apperrors.ErrInvalidState
	}
	if payload.UserID == "" || now.Unix() > payload.Exp {
		return "", apperrors.ErrInvalidState
	}
	return payload.UserID, nil
}
