package telegram

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

var (
	// ErrInitDataInvalid is returned when the init-data signature does not
	// verify against the bot token.
	ErrInitDataInvalid = errors.New("telegram: init data signature invalid")
	// ErrInitDataExpired is returned when auth_date is outside the allowed
	// window.
	ErrInitDataExpired = errors.New("telegram: init data expired")
)

// InitDataUser is the user object embedded in Mini App init data.
type InitDataUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

// ValidateInitData checks the HMAC signature Telegram attaches to Mini App
// launch parameters. The secret is HMAC-SHA256 of the bot token keyed with
// the literal "WebAppData", per the Bot API contract.
func ValidateInitData(initData, botToken string, maxAge time.Duration, now time.Time) (*InitDataUser, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, fmt.Errorf("telegram: parse init data: %w", err)
	}
	providedHash := values.Get("hash")
	if providedHash == "" {
		return nil, ErrInitDataInvalid
	}
	values.Del("hash")

	pairs := make([]string, 0, len(values))
	for key := range values {
		pairs = append(pairs, key+"="+values.Get(key))
	}
	sort.Strings(pairs)
	checkString := strings.Join(pairs, "\n")

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))
	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(checkString))
	if !hmac.Equal([]byte(hex.EncodeToString(mac.Sum(nil))), []byte(strings.ToLower(providedHash))) {
		return nil, ErrInitDataInvalid
	}

	if maxAge > 0 {
		var authDate int64
		if _, err := fmt.Sscanf(values.Get("auth_date"), "%d", &authDate); err != nil {
			return nil, ErrInitDataInvalid
		}
		if now.Sub(time.Unix(authDate, 0)) > maxAge {
			return nil, ErrInitDataExpired
		}
	}

	var user InitDataUser
	if raw := values.Get("user"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &user); err != nil {
			return nil, fmt.Errorf("telegram: decode user: %w", err)
		}
	}
	return &user, nil
}
