package testutil

import (
	"log"
	"os"
	"testing"
)

// TestSigningKey is the HMAC key used to sign session tokens in tests.
var TestSigningKey = []byte("test-signing-key")

func TestLogger(t *testing.T) *log.Logger {
	logger := log.New(os.Stdout, "[test] ", log.LstdFlags)
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
	})
	return logger
}
