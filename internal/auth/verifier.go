// Package auth validates operator tokens issued by the identity collaborator.
// The core never issues credentials; it only verifies them and scopes the
// request to the acting cashier and branch.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/backend-kasir/internal/common"
)

const (
	claimBranchID = "branch_id"
	claimName     = "name"
)

// Verifier checks HS256 operator tokens and extracts the operator identity.
type Verifier struct {
	Secret    []byte
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Now       func() time.Time
}

func (v Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// ParseOperator validates the token and returns the operator it identifies.
// The subject carries the cashier id; branch scope comes from a private claim.
func (v Verifier) ParseOperator(token string) (common.Operator, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return common.Operator{}, errors.New("auth: empty token")
	}
	if len(v.Secret) == 0 {
		return common.Operator{}, errors.New("auth: secret not configured")
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(jwa.HS256, v.Secret))
	if err != nil {
		return common.Operator{}, fmt.Errorf("auth: parse token: %w", err)
	}

	options := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(v.now)),
	}
	if v.ClockSkew > 0 {
		options = append(options, jwt.WithAcceptableSkew(v.ClockSkew))
	}
	if v.Issuer != "" {
		options = append(options, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		options = append(options, jwt.WithAudience(v.Audience))
	}
	if err := jwt.Validate(parsed, options...); err != nil {
		return common.Operator{}, fmt.Errorf("auth: validate token: %w", err)
	}

	cashierID, err := uuid.Parse(parsed.Subject())
	if err != nil {
		return common.Operator{}, fmt.Errorf("auth: invalid subject: %w", err)
	}
	rawBranch, ok := parsed.Get(claimBranchID)
	if !ok {
		return common.Operator{}, errors.New("auth: token missing branch scope")
	}
	branchStr, ok := rawBranch.(string)
	if !ok {
		return common.Operator{}, errors.New("auth: token missing branch scope")
	}
	branchID, err := uuid.Parse(branchStr)
	if err != nil {
		return common.Operator{}, fmt.Errorf("auth: invalid branch scope: %w", err)
	}
	op := common.Operator{CashierID: cashierID, BranchID: branchID}
	if rawName, ok := parsed.Get(claimName); ok {
		if name, ok := rawName.(string); ok {
			op.Name = name
		}
	}
	return op, nil
}
