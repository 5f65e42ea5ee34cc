package gateway

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AnonymousPrincipal is assigned when no credential is presented. The
// policy gate denies unregistered principals, so anonymous callers can
// still reach read-only catalog skills but never receive governed
// content.
const AnonymousPrincipal = "anonymous"

// PrincipalHeader carries the caller identity when a trusted proxy has
// already authenticated the request.
const PrincipalHeader = "X-Agent-Principal"

// TraceHeader carries the caller-supplied correlation id.
const TraceHeader = "X-Trace-Id"

type callerKey struct{}

// Caller is the authenticated request identity plus its correlation id.
type Caller struct {
	Principal string
	TraceID   string
}

// WithCaller attaches a Caller to the context.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFromContext retrieves the Caller, defaulting to an anonymous
// identity with a fresh trace id when none is set.
func CallerFromContext(ctx context.Context) Caller {
	if c, ok := ctx.Value(callerKey{}).(Caller); ok {
		return c
	}
	return Caller{Principal: AnonymousPrincipal, TraceID: uuid.New().String()}
}

// AuthenticatorConfig configures bearer-token principal extraction.
type AuthenticatorConfig struct {
	// PublicKeyPath is the PEM-encoded RSA public key for RS256
	// verification. If empty, tokens are parsed but NOT verified
	// (trusted proxy mode).
	PublicKeyPath string

	// Issuer is the expected iss claim. If empty, issuer is not validated.
	Issuer string

	// Audience is the expected aud claim. If empty, audience is not validated.
	Audience string

	Logger *slog.Logger
}

// Authenticator resolves the caller principal from bearer tokens. The
// resolution order is JWT sub claim, then the trusted-proxy principal
// header, then anonymous.
type Authenticator struct {
	publicKey *rsa.PublicKey
	issuer    string
	audience  string
	logger    *slog.Logger
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(cfg AuthenticatorConfig) (*Authenticator, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var publicKey *rsa.PublicKey
	if cfg.PublicKeyPath != "" {
		keyData, err := os.ReadFile(cfg.PublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read JWT public key from %s: %w", cfg.PublicKeyPath, err)
		}
		block, _ := pem.Decode(keyData)
		if block == nil {
			return nil, fmt.Errorf("failed to decode PEM block from %s", cfg.PublicKeyPath)
		}
		parsedKey, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse public key: %w", err)
		}
		rsaKey, ok := parsedKey.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("public key is not RSA (got %T)", parsedKey)
		}
		publicKey = rsaKey
		cfg.Logger.Info("gateway auth: using RS256 verification", "keyPath", cfg.PublicKeyPath)
	} else {
		cfg.Logger.Warn("gateway auth: no public key configured, tokens parsed without verification (trusted proxy mode)")
	}

	return &Authenticator{
		publicKey: publicKey,
		issuer:    cfg.Issuer,
		audience:  cfg.Audience,
		logger:    cfg.Logger,
	}, nil
}

// Principal resolves the caller identity from the request.
func (a *Authenticator) Principal(r *http.Request) string {
	if token := extractBearerToken(r); token != "" {
		if sub, err := a.subject(token); err == nil && sub != "" {
			return sub
		} else if err != nil {
			a.logger.Debug("bearer token parse failed", "error", err)
		}
	}
	if p := r.Header.Get(PrincipalHeader); p != "" {
		return p
	}
	return AnonymousPrincipal
}

// Middleware resolves the caller identity and trace id and stores them
// in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(TraceHeader)
		if traceID == "" {
			traceID = uuid.New().String()
		}
		caller := Caller{Principal: a.Principal(r), TraceID: traceID}
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}

func (a *Authenticator) subject(tokenString string) (string, error) {
	parserOpts := []jwt.ParserOption{}
	if a.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(a.audience))
	}

	var token *jwt.Token
	var err error
	if a.publicKey != nil {
		token, err = jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return a.publicKey, nil
		}, parserOpts...)
	} else {
		parser := jwt.NewParser(parserOpts...)
		token, _, err = parser.ParseUnverified(tokenString, jwt.MapClaims{})
	}
	if err != nil {
		return "", fmt.Errorf("JWT parse error: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("unexpected claims type")
	}
	sub, _ := claims["sub"].(string)
	return sub, nil
}

// extractBearerToken extracts the token from "Authorization: Bearer <token>".
func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
