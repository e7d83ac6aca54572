package feed

import (
	"fmt"
	"strings"
	"time"

	"insiderr-api/internal/domain"
)

const cursorSep = "|"

// Cursor задаёт позицию в ленте: время и необязательный ключ для разрешения равенства времени.
type Cursor struct {
	Time time.Time
	Key  string
}

// EncodeCursor сериализует курсор как "<RFC3339 UTC>[|<key>]".
func EncodeCursor(c Cursor) string {
	s := c.Time.UTC().Format(time.RFC3339Nano)
	if c.Key != "" {
		s += cursorSep + c.Key
	}
	return s
}

// DecodeCursor разбирает строку курсора. Ошибка оборачивает domain.ErrInvalidCursor.
func DecodeCursor(raw string) (Cursor, error) {
	timePart, key, hasKey := strings.Cut(strings.TrimSpace(raw), cursorSep)
	t, err := time.Parse(time.RFC3339Nano, timePart)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %q", domain.ErrInvalidCursor, raw)
	}
	if hasKey && key == "" {
		return Cursor{}, fmt.Errorf("%w: пустой ключ в %q", domain.ErrInvalidCursor, raw)
	}
	return Cursor{Time: t.UTC(), Key: key}, nil
}
