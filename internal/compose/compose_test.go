package compose

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediarelay/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDefaultCatalog_IsValid(t *testing.T) {
	require.NoError(t, DefaultCatalog().Validate())
}

func TestCompose_MediaKindsEndWithText(t *testing.T) {
	c := New(nil)
	text := "o cliente pediu a segunda via do boleto"

	for _, kind := range []domain.Kind{domain.KindAudio, domain.KindImage, domain.KindDocument, domain.KindVideo} {
		t.Run(string(kind), func(t *testing.T) {
			msg, err := c.Compose(kind, text, "", "")
			require.NoError(t, err)
			assert.Equal(t, kind, msg.Kind)
			assert.True(t, strings.HasSuffix(msg.Content, text))
			assert.Equal(t, c.Template(kind)+text, msg.Content)
			assert.NotEmpty(t, c.Template(kind))
		})
	}
}

func TestCompose_TextIsVerbatim(t *testing.T) {
	msg, err := New(nil).Compose(domain.KindText, "  Olá, tudo bem?  ", "", "")
	require.NoError(t, err)
	assert.Equal(t, "  Olá, tudo bem?  ", msg.Content)
}

func TestCompose_TextRequiresContent(t *testing.T) {
	_, err := New(nil).Compose(domain.KindText, " ", "", "")
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestCompose_Location(t *testing.T) {
	c := New(nil)
	msg, err := c.Compose(domain.KindLocation, "", "10.0", "20.0")
	require.NoError(t, err)
	assert.Contains(t, msg.Content, "https://www.google.com/maps?q=10.0,20.0")
	assert.True(t, strings.HasPrefix(msg.Content, c.Template(domain.KindLocation)))
}

func TestCompose_LocationRequiresBothCoordinates(t *testing.T) {
	_, err := New(nil).Compose(domain.KindLocation, "", "10.0", "")
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestCompose_UnknownKind(t *testing.T) {
	_, err := New(nil).Compose(domain.Kind("sticker"), "x", "", "")
	require.ErrorIs(t, err, domain.ErrUnsupportedMedia)
	assert.Contains(t, err.Error(), "sticker")
}

func TestFallback(t *testing.T) {
	c := New(nil)
	for _, kind := range []domain.Kind{domain.KindAudio, domain.KindImage, domain.KindDocument, domain.KindVideo} {
		assert.NotEmpty(t, c.Fallback(kind), kind)
	}
	assert.NotEmpty(t, c.Fallback(domain.KindText))
}

func TestLoadCatalog_OverridesSomeKinds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	content := `
templates:
  audio: "AUDIO: "
fallbacks:
  audio: "sem transcrição"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cat, err := LoadCatalog(path, testLogger())
	require.NoError(t, err)
	c := New(cat)

	msg, err := c.Compose(domain.KindAudio, "oi", "", "")
	require.NoError(t, err)
	assert.Equal(t, "AUDIO: oi", msg.Content)
	assert.Equal(t, "sem transcrição", c.Fallback(domain.KindAudio))
	// untouched kinds keep the embedded template
	assert.Equal(t, DefaultCatalog().Templates[domain.KindImage], c.Template(domain.KindImage))
}

func TestLoadCatalog_RejectsUnknownKind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte("templates:\n  sticker: \"x\"\n"), 0o644))

	_, err := LoadCatalog(path, testLogger())
	require.ErrorContains(t, err, "unknown kind")
}

func TestLoadCatalog_MissingFile(t *testing.T) {
	cat, err := LoadCatalog(filepath.Join(t.TempDir(), "nope.yaml"), testLogger())
	require.NoError(t, err)
	assert.Equal(t, DefaultCatalog(), cat)
}
