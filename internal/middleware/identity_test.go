package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/glamlab/stylist-gateway/internal/initdata"
	"github.com/glamlab/stylist-gateway/internal/logging"
)

const testBotToken = "test-bot-token"

func signedPayload(t *testing.T, userJSON string) string {
	t.Helper()
	fields := url.Values{}
	fields.Set("auth_date", "1700000000")
	fields.Set("user", userJSON)
	fields.Set("hash", initdata.Sign(fields, testBotToken))
	return fields.Encode()
}

func resolveIdentity(t *testing.T, mw *IdentityMiddleware, req *http.Request) (*initdata.Identity, *httptest.ResponseRecorder) {
	t.Helper()
	var got *initdata.Identity
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return got, rr
}

func TestIdentityVerifiedPayload(t *testing.T) {
	mw := NewIdentityMiddleware(testBotToken, nil, false, logging.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/credits", nil)
	req.Header.Set(InitDataHeader, signedPayload(t, `{"id":42,"first_name":"Ada"}`))

	identity, rr := resolveIdentity(t, mw, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if identity == nil {
		t.Fatal("no identity in context")
	}
	if identity.Key != "42" {
		t.Fatalf("key = %q, want 42", identity.Key)
	}
	if identity.Provenance != initdata.ProvenanceVerified {
		t.Fatalf("provenance = %q, want verified", identity.Provenance)
	}
}

func TestIdentityInvalidSignatureRejectedWhenGuestsDisallowed(t *testing.T) {
	mw := NewIdentityMiddleware(testBotToken, nil, false, logging.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/credits", nil)
	req.Header.Set(InitDataHeader, "auth_date=1700000000&user=%7B%22id%22%3A42%7D&hash=deadbeef")

	identity, rr := resolveIdentity(t, mw, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if identity != nil {
		t.Fatal("handler was reached despite invalid signature")
	}
}

func TestIdentityInvalidSignatureDegradesToGuest(t *testing.T) {
	mw := NewIdentityMiddleware(testBotToken, nil, true, logging.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/credits", nil)
	req.Header.Set(InitDataHeader, "auth_date=1700000000&user=%7B%22id%22%3A42%7D&hash=deadbeef")
	req.RemoteAddr = "203.0.113.7:51234"

	identity, rr := resolveIdentity(t, mw, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if identity == nil {
		t.Fatal("no identity in context")
	}
	if identity.Provenance != initdata.ProvenanceAnonymous {
		t.Fatalf("provenance = %q, want anonymous", identity.Provenance)
	}
	if identity.Key != "guest:203.0.113.7" {
		t.Fatalf("key = %q, want guest:203.0.113.7", identity.Key)
	}
}

func TestIdentityMissingCredentialsGuestPolicy(t *testing.T) {
	for _, allowGuests := range []bool{true, false} {
		mw := NewIdentityMiddleware(testBotToken, nil, allowGuests, logging.NewNop())
		req := httptest.NewRequest(http.MethodGet, "/api/v1/credits", nil)
		req.RemoteAddr = "198.51.100.2:1000"

		identity, rr := resolveIdentity(t, mw, req)
		if allowGuests {
			if rr.Code != http.StatusOK || identity == nil || identity.Verified() {
				t.Fatalf("allowGuests=true: status=%d identity=%+v", rr.Code, identity)
			}
		} else {
			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("allowGuests=false: status = %d, want 401", rr.Code)
			}
		}
	}
}

func TestIdentityGuestKeyNeverCollidesWithVerified(t *testing.T) {
	// A guest whose connection hint matches a verified user's numeric key must
	// still map to a distinct ledger identity.
	verifiedKey := "42"
	guest := initdata.Anonymous(verifiedKey)
	if guest.Key == verifiedKey {
		t.Fatalf("guest key %q collides with verified key", guest.Key)
	}
}

func TestIdentityForwardedForPreferred(t *testing.T) {
	mw := NewIdentityMiddleware(testBotToken, nil, true, logging.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/credits", nil)
	req.RemoteAddr = "10.0.0.1:1000"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	identity, _ := resolveIdentity(t, mw, req)
	if identity.Key != "guest:203.0.113.9" {
		t.Fatalf("key = %q, want guest:203.0.113.9", identity.Key)
	}
}

func TestSessionTokenRoundTrip(t *testing.T) {
	secret := []byte("session-secret")
	original := &initdata.Identity{Key: "42", Provenance: initdata.ProvenanceVerified}

	token, err := NewSessionToken(original, secret, time.Hour)
	if err != nil {
		t.Fatalf("NewSessionToken() error = %v", err)
	}

	parsed, err := ParseSessionToken(token, secret)
	if err != nil {
		t.Fatalf("ParseSessionToken() error = %v", err)
	}
	if parsed.Key != "42" || parsed.Provenance != initdata.ProvenanceVerified {
		t.Fatalf("parsed = %+v", parsed)
	}
}

func TestSessionTokenWrongSecretRejected(t *testing.T) {
	token, err := NewSessionToken(initdata.Anonymous("x"), []byte("right"), time.Hour)
	if err != nil {
		t.Fatalf("NewSessionToken() error = %v", err)
	}
	if _, err := ParseSessionToken(token, []byte("wrong")); err == nil {
		t.Fatal("token accepted under wrong secret")
	}
}

func TestSessionTokenExpiredRejected(t *testing.T) {
	token, err := NewSessionToken(initdata.Anonymous("x"), []byte("secret"), -time.Minute)
	if err != nil {
		t.Fatalf("NewSessionToken() error = %v", err)
	}
	if _, err := ParseSessionToken(token, []byte("secret")); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestSessionTokenUnknownProvenanceDowngraded(t *testing.T) {
	// Claims with a fabricated provenance value parse as anonymous, never as
	// verified.
	token, err := NewSessionToken(&initdata.Identity{Key: "42", Provenance: "superuser"}, []byte("secret"), time.Hour)
	if err != nil {
		t.Fatalf("NewSessionToken() error = %v", err)
	}
	parsed, err := ParseSessionToken(token, []byte("secret"))
	if err != nil {
		t.Fatalf("ParseSessionToken() error = %v", err)
	}
	if parsed.Provenance != initdata.ProvenanceAnonymous {
		t.Fatalf("provenance = %q, want anonymous", parsed.Provenance)
	}
}

func TestIdentityBearerSession(t *testing.T) {
	secret := []byte("session-secret")
	mw := NewIdentityMiddleware(testBotToken, secret, false, logging.NewNop())

	token, err := NewSessionToken(&initdata.Identity{Key: "42", Provenance: initdata.ProvenanceVerified}, secret, time.Hour)
	if err != nil {
		t.Fatalf("NewSessionToken() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/credits", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	identity, rr := resolveIdentity(t, mw, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if identity == nil || identity.Key != "42" || !identity.Verified() {
		t.Fatalf("identity = %+v", identity)
	}
}
