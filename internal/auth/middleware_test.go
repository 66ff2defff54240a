package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/auth"
	"github.com/noah-isme/backend-kasir/internal/common"
)

var secret = []byte("test-secret")

func signedToken(t *testing.T, cashierID, branchID uuid.UUID, expiry time.Time) string {
	t.Helper()
	tok, err := jwt.NewBuilder().
		Subject(cashierID.String()).
		Issuer("kasir-test").
		IssuedAt(time.Now()).
		Expiration(expiry).
		Claim("branch_id", branchID.String()).
		Claim("name", "Siti").
		Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, secret))
	require.NoError(t, err)
	return string(signed)
}

func TestRequireOperatorAttachesIdentity(t *testing.T) {
	cashierID := uuid.New()
	branchID := uuid.New()
	mw := auth.Middleware{Verifier: auth.Verifier{Secret: secret, Issuer: "kasir-test"}}

	var seen common.Operator
	handler := mw.RequireOperator(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		op, ok := common.OperatorFrom(r.Context())
		require.True(t, ok)
		seen = op
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/carts", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, cashierID, branchID, time.Now().Add(time.Hour)))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, cashierID, seen.CashierID)
	require.Equal(t, branchID, seen.BranchID)
	require.Equal(t, "Siti", seen.Name)
}

func TestRequireOperatorRejectsMissingToken(t *testing.T) {
	mw := auth.Middleware{Verifier: auth.Verifier{Secret: secret}}
	handler := mw.RequireOperator(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	req := httptest.NewRequest(http.MethodGet, "/carts", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequireOperatorRejectsExpiredToken(t *testing.T) {
	mw := auth.Middleware{Verifier: auth.Verifier{Secret: secret}}
	handler := mw.RequireOperator(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	req := httptest.NewRequest(http.MethodGet, "/carts", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, uuid.New(), uuid.New(), time.Now().Add(-time.Hour)))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequireOperatorRejectsWrongSecret(t *testing.T) {
	mw := auth.Middleware{Verifier: auth.Verifier{Secret: []byte("other-secret")}}
	handler := mw.RequireOperator(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	req := httptest.NewRequest(http.MethodGet, "/carts", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, uuid.New(), uuid.New(), time.Now().Add(time.Hour)))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}
