package ui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)

func TestFormatLastSeen(t *testing.T) {
	cases := []struct {
		ago  time.Duration
		want string
	}{
		{30 * time.Second, "just now"},
		{time.Minute, "1 min ago"},
		{5 * time.Minute, "5 min ago"},
		{time.Hour, "1 hour ago"},
		{3 * time.Hour, "3 hours ago"},
		{24 * time.Hour, "1 day ago"},
		{72 * time.Hour, "3 days ago"},
		{45 * 24 * time.Hour, "Jan 30, 2024"},
	}
	for _, c := range cases {
		require.Equal(t, c.want, formatLastSeen(now.Add(-c.ago), now), c.ago.String())
	}
}

func TestFormatDateSeparator(t *testing.T) {
	require.Equal(t, "Today", formatDateSeparator(now.Add(-time.Hour), now))
	require.Equal(t, "Yesterday", formatDateSeparator(now.Add(-24*time.Hour), now))
	require.Equal(t, "March 1", formatDateSeparator(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), now))
	require.Equal(t, "December 31, 2023", formatDateSeparator(time.Date(2023, 12, 31, 9, 0, 0, 0, time.UTC), now))
}

func TestFormatMessageTime(t *testing.T) {
	require.Equal(t, "13:30", formatMessageTime(now.Add(-time.Hour), now))
	require.Equal(t, "Yesterday 14:30", formatMessageTime(now.Add(-24*time.Hour), now))
	require.Equal(t, "Mar 01, 09:05", formatMessageTime(time.Date(2024, 3, 1, 9, 5, 0, 0, time.UTC), now))
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", truncate("short", 10))
	require.Equal(t, "hell…", truncate("hello world", 5))
	require.Equal(t, "привет", truncate("привет", 6))
	require.Equal(t, "при…", truncate("привет мир", 4))
	require.Equal(t, "…", truncate("abc", 1))
	require.Equal(t, "abc", truncate("abc", 0))
}
