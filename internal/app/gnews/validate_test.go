package gnews

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSourceURL(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"https://news.google.com/rss/articles/CBMi?oc=5", false},
		{"http://example.com/a", false},
		{"  https://example.com  ", false},
		{"ftp://example.com", true},
		{"example.com/path", true},
		{"https://", true},
		{"://bad", true},
	}
	for _, tt := range tests {
		err := ValidateSourceURL(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidURL, tt.in)
		} else {
			assert.NoError(t, err, tt.in)
		}
	}
}

func TestIsGoogleNewsURL(t *testing.T) {
	assert.True(t, IsGoogleNewsURL("https://news.google.com/rss/articles/x"))
	assert.True(t, IsGoogleNewsURL("https://NEWS.google.com:443/"))
	assert.False(t, IsGoogleNewsURL("https://www.google.com/"))
	assert.False(t, IsGoogleNewsURL("https://example.com/news.google.com"))
}

func TestEncodeDecodeID(t *testing.T) {
	for _, id := range []int64{1, 42, 1 << 40} {
		pub, err := EncodeID(id)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(pub), 5)

		got, err := DecodeID(pub)
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}

	_, err := EncodeID(0)
	assert.ErrorIs(t, err, ErrInvalidID)

	_, err = DecodeID("")
	assert.ErrorIs(t, err, ErrInvalidID)
}
