package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hpungsan/storysync/internal/clock"
	"github.com/hpungsan/storysync/internal/errors"
	"github.com/hpungsan/storysync/internal/logging"
)

// Credentials asks a view context for its token first and falls back to a static token.
type Credentials struct {
	view   TokenSource
	static string
	clock  clock.Clock
	log    logging.Logger
}

// NewCredentials returns a credential chain. view may be nil for headless use.
func NewCredentials(view TokenSource, static string, clk clock.Clock, log logging.Logger) *Credentials {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Credentials{view: view, static: strings.TrimSpace(static), clock: clk, log: log}
}

// Token implements TokenSource.
func (c *Credentials) Token(ctx context.Context) (string, error) {
	if c.view != nil {
		token, err := c.view.Token(ctx)
		switch {
		case err != nil:
			c.log.Debug(ctx, "view context gave no token", "error", err)
		case strings.TrimSpace(token) == "":
			c.log.Debug(ctx, "view context returned an empty token")
		default:
			if err := CheckExpiry(token, c.clock); err != nil {
				return "", err
			}
			return token, nil
		}
	}

	if c.static != "" {
		if err := CheckExpiry(c.static, c.clock); err != nil {
			return "", err
		}
		return c.static, nil
	}
	return "", errors.NewNoCredential("no view context answered and no static token is configured")
}

// CheckExpiry rejects a JWT whose exp claim has passed. The signature is not verified:
// the server does that. Tokens that are not JWTs are accepted as opaque.
func CheckExpiry(token string, clk clock.Clock) error {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	if !clk.Now().Before(exp.Time) {
		return errors.NewNoCredential(fmt.Sprintf("token expired at %s", exp.Time.UTC().Format("2006-01-02T15:04:05Z")))
	}
	return nil
}
