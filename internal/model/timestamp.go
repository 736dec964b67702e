package model

import "time"

// TimestampLayout は移行先に書き込む日時の統一テキスト形式。
// UTC・ミリ秒精度のRFC 3339。
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp は日時を統一テキスト形式に正規化する。
// tがnilまたはゼロ値の場合はfallbackを使う。
func FormatTimestamp(t *time.Time, fallback time.Time) string {
	if t == nil || t.IsZero() {
		return fallback.UTC().Format(TimestampLayout)
	}
	return t.UTC().Format(TimestampLayout)
}

// FormatOptionalTimestamp は日時を統一テキスト形式に正規化する。
// tがnilまたはゼロ値の場合は空文字列を返す。
func FormatOptionalTimestamp(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimestampLayout)
}
