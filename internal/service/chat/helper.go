package chat

import (
	"database/sql"
	"time"
)

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}
