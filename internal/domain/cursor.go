package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Feed cursors are an opaque encoding of the last-seen page key in the form
// "unixmillis::postId". An empty cursor means "from the top".

// EncodeCursor formats a page key as an opaque cursor string.
func EncodeCursor(key PageKey) string {
	return fmt.Sprintf("%d::%s", key.CreatedAt.UnixMilli(), key.PostID)
}

// DecodeCursor parses an opaque cursor back into a page key. A malformed
// cursor is a ValidationError.
func DecodeCursor(cursor string) (PageKey, error) {
	parts := strings.SplitN(cursor, "::", 2)
	if len(parts) != 2 || parts[1] == "" {
		return PageKey{}, Validationf("cursor must be in format 'timestamp::postId'")
	}
	millis, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return PageKey{}, Validationf("invalid timestamp in cursor: %v", err)
	}
	return PageKey{CreatedAt: time.UnixMilli(millis).UTC(), PostID: parts[1]}, nil
}
