package mailwatch

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/mverhagen/memberhub/internal/model"
	"github.com/mverhagen/memberhub/internal/notify"
)

func TestFromPlatformFilter(t *testing.T) {
	w := New(model.MailConfig{FromDomain: "hub.example.org"}, "", notify.NewQueue(), nil)

	require.True(t, w.fromPlatform(Envelope{FromAddr: "notify@hub.example.org"}))
	require.True(t, w.fromPlatform(Envelope{FromAddr: "Notify@HUB.Example.ORG"}))
	require.False(t, w.fromPlatform(Envelope{FromAddr: "notify@elsewhere.org"}))
	require.False(t, w.fromPlatform(Envelope{FromAddr: "notify@nothub.example.org.evil.com"}))
}

func TestFromPlatformWithoutDomainAcceptsAll(t *testing.T) {
	w := New(model.MailConfig{}, "", notify.NewQueue(), nil)

	require.True(t, w.fromPlatform(Envelope{FromAddr: "anyone@anywhere.org"}))
}

func TestClipShortensLongPreviews(t *testing.T) {
	short := "just a short preview"
	require.Equal(t, short, clip(short))

	long := strings.Repeat("0123456789", 30)
	clipped := clip(long)
	require.Len(t, clipped, previewLength+len("…"))
	require.True(t, strings.HasSuffix(clipped, "…"))
}

func TestClipKeepsRuneBoundaries(t *testing.T) {
	// 60 three-byte runes put the byte limit mid-rune.
	long := strings.Repeat("☃", 60)
	clipped := clip(long)

	require.True(t, utf8.ValidString(clipped))
	require.True(t, strings.HasSuffix(clipped, "…"))
	require.Equal(t, strings.Repeat("☃", 46)+"…", clipped)
}

func TestStopWithoutStartIsNoOp(t *testing.T) {
	w := New(model.MailConfig{}, "", notify.NewQueue(), nil)
	w.Stop()
	w.Stop()
}
