// Package logging builds the zap logger and the field helpers that keep
// identifiers and credentials out of the logs.
package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const RedactedText = "[REDACTED]"

var (
	saltMu   sync.RWMutex
	hashSalt string

	bearerPattern = regexp.MustCompile(`Bearer\s+[A-Za-z0-9-_]+\.[A-Za-z0-9-_]+\.[A-Za-z0-9-_]*`)
)

// New returns a JSON production logger for "prod"/"production" and a
// console development logger otherwise.
func New(env, level string) (*zap.Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(env) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
	}

	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	return cfg.Build()
}

// SetHashSalt sets the salt mixed into hashed user ids.
func SetHashSalt(salt string) {
	saltMu.Lock()
	defer saltMu.Unlock()
	hashSalt = salt
}

// HashID returns a short, stable, non-reversible form of id.
func HashID(id string) string {
	if id == "" {
		return ""
	}
	saltMu.RLock()
	salt := hashSalt
	saltMu.RUnlock()

	h := sha256.New()
	_, _ = h.Write([]byte(salt))
	_, _ = h.Write([]byte(id))
	return "hash:" + hex.EncodeToString(h.Sum(nil))[:12]
}

// UserID is the zap field for a user identifier.
func UserID(id string) zap.Field {
	return zap.String("user_id", HashID(id))
}

// SanitizeError strips bearer tokens from error text before it is logged.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return bearerPattern.ReplaceAllString(err.Error(), "Bearer "+RedactedText)
}
