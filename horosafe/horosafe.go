// Package horosafe provides bounded I/O and input guards shared by the
// docprompt service: capped reads for uploads and remote responses, upload
// file name sanitising, and secret length checks.
package horosafe

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// MinSecretLen is the minimum acceptable length for API keys handed to
// remote services. Shorter values are almost always a placeholder.
const MinSecretLen = 16

// MaxResponseBody is the default cap for HTTP response body reads (1 MiB).
const MaxResponseBody int64 = 1 << 20

// ErrTooLarge is returned when a bounded read exceeds its limit.
var ErrTooLarge = errors.New("horosafe: input exceeds size limit")

// ErrSecretTooShort is returned when a secret does not meet MinSecretLen.
var ErrSecretTooShort = fmt.Errorf("horosafe: secret must be at least %d bytes", MinSecretLen)

// ValidateSecret checks that secret is at least MinSecretLen bytes.
func ValidateSecret(secret []byte) error {
	if len(secret) < MinSecretLen {
		return ErrSecretTooShort
	}
	return nil
}

// LimitedReadAll reads at most maxBytes from r. Returns an error wrapping
// ErrTooLarge if the limit is exceeded.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	lr := io.LimitReader(r, maxBytes+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, maxBytes)
	}
	return data, nil
}

// BaseName reduces a client-supplied file name to its last path element so it
// can be logged and echoed back without leaking or traversing directories.
// Both slash styles are treated as separators. Returns "" for names that
// reduce to nothing usable.
func BaseName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	base := filepath.Base("/" + name)
	if base == "/" || base == "." || base == ".." {
		return ""
	}
	var sb strings.Builder
	for _, r := range base {
		if r < 0x20 || r == 0x7f {
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
