// Package naming assigns stored names to uploaded files.
package naming

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/maneesh/videodrop/internal/config"
)

// Namer generates the identifier part of a stored name for an upload
// received at the given time
type Namer interface {
	NewID(receivedAt time.Time) string
}

// UUIDNamer issues random version 4 UUIDs.
type UUIDNamer struct{}

func (UUIDNamer) NewID(time.Time) string {
	return uuid.NewString()
}

// TimestampNamer issues the receipt time in milliseconds since the Unix epoch.
// Two uploads received within the same millisecond get the same ID.
type TimestampNamer struct{}

func (TimestampNamer) NewID(receivedAt time.Time) string {
	return strconv.FormatInt(receivedAt.UnixMilli(), 10)
}

// New returns the Namer for a configured scheme
func New(scheme string) (Namer, error) {
	switch scheme {
	case config.NamingUUID:
		return UUIDNamer{}, nil
	case config.NamingTimestamp:
		return TimestampNamer{}, nil
	default:
		return nil, fmt.Errorf("unknown naming scheme %q", scheme)
	}
}

// Extension returns the extension of a client-supplied filename, dot included.
// Only the last path element counts, whichever separator the client used, and
// a leading dot does not start an extension.
// ".." has none either.
func Extension(originalName string) string {
	base := originalName
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	dot := strings.LastIndexByte(base, '.')
	if dot <= 0 || base == ".." {
		return ""
	}
	return base[dot:]
}

// StoredName joins id and the extension of originalName
func StoredName(id, originalName string) string {
	return id + Extension(originalName)
}
