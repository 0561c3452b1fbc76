package telephony

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cucumber/godog"
	"github.com/golang-jwt/jwt/v5"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Do(method, path string, query map[string]string, headers map[string]string) error
	GetResponseField(field string) (interface{}, error)
	GetLastResponseStatus() int
	GetPrefix() string
	GetAdminToken() string
	GetTokenSecret() string
}

// RegisterSteps registers resolve and admin mapping step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &telephonySteps{tc: tc}

	// Resolve
	ctx.Step(`^I resolve DID "([^"]*)"$`, steps.resolve)
	ctx.Step(`^I resolve without a DID$`, steps.resolveWithoutDID)
	ctx.Step(`^the token should carry DID "([^"]*)" and persona "([^"]*)"$`, steps.tokenShouldCarry)
	ctx.Step(`^the token should expire (\d+) seconds after it was issued$`, steps.tokenLifetime)

	// Admin
	ctx.Step(`^I map DID "([^"]*)" to persona "([^"]*)" with CNAM "([^"]*)"$`, steps.upsert)
	ctx.Step(`^I map DID "([^"]*)" to persona "([^"]*)" with CNAM "([^"]*)" using token "([^"]*)"$`, steps.upsertWithToken)
	ctx.Step(`^I map DID "([^"]*)" to persona "([^"]*)" with CNAM "([^"]*)" without credentials$`, steps.upsertAnonymous)
	ctx.Step(`^I unmap DID "([^"]*)"$`, steps.delete)
	ctx.Step(`^DID "([^"]*)" is mapped to persona "([^"]*)" with CNAM "([^"]*)"$`, steps.givenMapped)
	ctx.Step(`^DID "([^"]*)" is not mapped$`, steps.givenNotMapped)
}

type telephonySteps struct {
	tc     TestContext
	claims jwt.MapClaims
}

func (s *telephonySteps) path(p string) string {
	return s.tc.GetPrefix() + p
}

func (s *telephonySteps) adminHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func (s *telephonySteps) resolve(ctx context.Context, did string) error {
	return s.tc.Do(http.MethodGet, s.path("/resolve"), map[string]string{"did": did}, nil)
}

func (s *telephonySteps) resolveWithoutDID(ctx context.Context) error {
	return s.tc.Do(http.MethodGet, s.path("/resolve"), nil, nil)
}

func (s *telephonySteps) parseToken() (jwt.MapClaims, error) {
	raw, err := s.tc.GetResponseField("token")
	if err != nil {
		return nil, err
	}
	tokenString, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("token is not a string: %v", raw)
	}

	claims := jwt.MapClaims{}
	if secret := s.tc.GetTokenSecret(); secret != "" {
		_, err = jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	} else {
		_, _, err = jwt.NewParser().ParseUnverified(tokenString, claims)
	}
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	return claims, nil
}

func (s *telephonySteps) tokenShouldCarry(ctx context.Context, did, persona string) error {
	claims, err := s.parseToken()
	if err != nil {
		return err
	}
	s.claims = claims
	if claims["did"] != did {
		return fmt.Errorf("expected did claim %q, got %v", did, claims["did"])
	}
	if claims["persona"] != persona {
		return fmt.Errorf("expected persona claim %q, got %v", persona, claims["persona"])
	}
	return nil
}

func (s *telephonySteps) tokenLifetime(ctx context.Context, seconds int) error {
	claims := s.claims
	if claims == nil {
		var err error
		if claims, err = s.parseToken(); err != nil {
			return err
		}
	}
	iat, err := claims.GetIssuedAt()
	if err != nil || iat == nil {
		return fmt.Errorf("token has no iat: %v", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return fmt.Errorf("token has no exp: %v", err)
	}
	if got := exp.Sub(iat.Time); got != time.Duration(seconds)*time.Second {
		return fmt.Errorf("expected lifetime %ds, got %s", seconds, got)
	}
	return nil
}

func (s *telephonySteps) upsertWithToken(ctx context.Context, did, persona, cnam, token string) error {
	query := map[string]string{"did": did, "persona": persona, "cnam": cnam}
	return s.tc.Do(http.MethodPost, s.path("/admin/map"), query, s.adminHeaders(token))
}

func (s *telephonySteps) upsert(ctx context.Context, did, persona, cnam string) error {
	return s.upsertWithToken(ctx, did, persona, cnam, s.tc.GetAdminToken())
}

func (s *telephonySteps) upsertAnonymous(ctx context.Context, did, persona, cnam string) error {
	query := map[string]string{"did": did, "persona": persona, "cnam": cnam}
	return s.tc.Do(http.MethodPost, s.path("/admin/map"), query, nil)
}

func (s *telephonySteps) delete(ctx context.Context, did string) error {
	return s.tc.Do(http.MethodDelete, s.path("/admin/map"), map[string]string{"did": did}, s.adminHeaders(s.tc.GetAdminToken()))
}

func (s *telephonySteps) givenMapped(ctx context.Context, did, persona, cnam string) error {
	if err := s.upsert(ctx, did, persona, cnam); err != nil {
		return err
	}
	if status := s.tc.GetLastResponseStatus(); status != http.StatusOK {
		return fmt.Errorf("seeding mapping for %s returned %d", did, status)
	}
	return nil
}

func (s *telephonySteps) givenNotMapped(ctx context.Context, did string) error {
	if err := s.delete(ctx, did); err != nil {
		return err
	}
	if status := s.tc.GetLastResponseStatus(); status != http.StatusOK {
		return fmt.Errorf("removing mapping for %s returned %d", did, status)
	}
	return nil
}
