// Package initdata verifies the signed identity payload a mini-app client
// presents on every request.
//
// The payload is a URL-encoded field set signed by the chat platform: all
// fields except "hash" are sorted byte-lexically, joined as key=value lines,
// and authenticated with HMAC-SHA256 under a key derived from the bot token.
package initdata

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/glamlab/stylist-gateway/internal/apperr"
)

// domainSeparator keys the secret derivation step. Fixed by the platform.
const domainSeparator = "WebAppData"

// Provenance records how an identity was established. An anonymous identity
// must never be conflated with a verified one even if the keys collide, so
// the provenance travels with the key everywhere it is stored.
type Provenance string

const (
	ProvenanceVerified  Provenance = "verified"
	ProvenanceAnonymous Provenance = "anonymous"
)

// Profile is the platform user object embedded in a verified payload.
type Profile struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
	PhotoURL     string `json:"photo_url,omitempty"`
}

// Identity is the key under which credits and history are tracked.
type Identity struct {
	Key        string     `json:"key"`
	Provenance Provenance `json:"provenance"`
	Profile    *Profile   `json:"profile,omitempty"`
}

// Verified reports whether the identity came from a valid signature.
func (id *Identity) Verified() bool {
	return id.Provenance == ProvenanceVerified
}

// Anonymous builds a guest identity from a connection-level hint, or a
// generated token when no hint is available.
func Anonymous(hint string) *Identity {
	key := strings.TrimSpace(hint)
	if key == "" {
		key = uuid.New().String()
	}
	return &Identity{
		Key:        "guest:" + key,
		Provenance: ProvenanceAnonymous,
		Profile:    &Profile{FirstName: "Guest"},
	}
}

// Verify checks a raw signed payload against the bot token and returns the
// verified identity. An empty bot token never verifies.
func Verify(raw, botToken string) (*Identity, error) {
	if botToken == "" {
		return nil, apperr.Unauthorized("verification secret not configured")
	}

	fields, err := url.ParseQuery(raw)
	if err != nil {
		return nil, apperr.SignatureMismatch()
	}

	supplied := fields.Get("hash")
	if supplied == "" {
		return nil, apperr.MissingSignature()
	}
	fields.Del("hash")

	computed := computeHash(fields, botToken)
	suppliedBytes, err := hex.DecodeString(supplied)
	if err != nil || !hmac.Equal(computed, suppliedBytes) {
		return nil, apperr.SignatureMismatch()
	}

	var profile Profile
	userJSON := fields.Get("user")
	if err := json.Unmarshal([]byte(userJSON), &profile); err != nil || profile.ID == 0 {
		return nil, apperr.MalformedProfile(err)
	}

	return &Identity{
		Key:        strconv.FormatInt(profile.ID, 10),
		Provenance: ProvenanceVerified,
		Profile:    &profile,
	}, nil
}

// computeHash builds the canonical check-string and authenticates it. The
// check-string uses byte-lexical key order; original field order is irrelevant.
func computeHash(fields url.Values, botToken string) []byte {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(fields.Get(k))
	}

	secret := hmac.New(sha256.New, []byte(domainSeparator))
	secret.Write([]byte(botToken))
	derived := secret.Sum(nil)

	mac := hmac.New(sha256.New, derived)
	mac.Write([]byte(b.String()))
	return mac.Sum(nil)
}

// Sign computes a valid hash for a field set. Exposed for tests and tooling
// that need to mint payloads.
func Sign(fields url.Values, botToken string) string {
	clone := url.Values{}
	for k, vs := range fields {
		if k == "hash" {
			continue
		}
		clone[k] = vs
	}
	return hex.EncodeToString(computeHash(clone, botToken))
}
