package auth

import (
	"bufio"
	"crypto/subtle"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

var (
	// ErrMissingHeader is returned when a secret is configured but the request carries no Authorization header
	ErrMissingHeader = errors.New("missing authorization header")
	// ErrMalformedHeader is returned when the header is not of the form "Bearer <token>"
	ErrMalformedHeader = errors.New("authorization header must be of the form 'Bearer <token>'")
	// ErrInvalidToken is returned when the bearer token does not match the configured secret
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenUnavailable is returned when the token file exists but cannot be read
	ErrTokenUnavailable = errors.New("token file unreadable")
)

const bearerPrefix = "Bearer "

// Gate is the shared-secret check in front of every non-health route.
// The secret is resolved on each call and never cached, so rotating the
// env var or the file takes effect on the next request.
type Gate struct {
	envVar    string
	tokenFile string
	lookupEnv func(string) (string, bool)
}

// NewGate creates a gate reading the secret from envVar, falling back to
// the first line of tokenFile. Either may be empty.
func NewGate(envVar, tokenFile string) *Gate {
	return &Gate{
		envVar:    envVar,
		tokenFile: tokenFile,
		lookupEnv: os.LookupEnv,
	}
}

// Secret resolves the expected token. An empty string with a nil error
// means no secret is configured.
func (g *Gate) Secret() (string, error) {
	if g.envVar != "" {
		if v, ok := g.lookupEnv(g.envVar); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v, nil
			}
		}
	}

	if g.tokenFile == "" {
		return "", nil
	}

	f, err := os.Open(g.tokenFile)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenUnavailable, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()), nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenUnavailable, err)
	}
	return "", nil
}

// Enabled reports whether a secret is currently configured
func (g *Gate) Enabled() bool {
	secret, err := g.Secret()
	return err != nil || secret != ""
}

// Check decides whether a request carrying the given Authorization
// header value is admitted. A nil error admits.
func (g *Gate) Check(header string) error {
	secret, err := g.Secret()
	if err != nil {
		return err
	}
	if secret == "" {
		return nil
	}

	if header == "" {
		return ErrMissingHeader
	}
	if !strings.HasPrefix(header, bearerPrefix) {
		return ErrMalformedHeader
	}
	token := header[len(bearerPrefix):]
	if token == "" || strings.ContainsAny(token, " \t") {
		return ErrMalformedHeader
	}

	if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
		return ErrInvalidToken
	}
	return nil
}
