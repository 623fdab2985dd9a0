package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoder(t *testing.T) {
	gbk, err := NewDecoder("gbk")
	require.NoError(t, err)
	assert.Equal(t, "gbk", gbk.Fallback())

	strict, err := NewDecoder("none")
	require.NoError(t, err)

	tests := []struct {
		name    string
		decoder *Decoder
		raw     []byte
		want    string
		wantErr error
	}{
		{"empty", strict, nil, "", nil},
		{"utf8", strict, []byte("print('héllo')"), "print('héllo')", nil},
		{"utf8 bom", strict, append([]byte{0xEF, 0xBB, 0xBF}, "x = 1"...), "x = 1", nil},
		{"utf16 le bom", strict, []byte{0xFF, 0xFE, 'h', 0, 'i', 0}, "hi", nil},
		{"utf16 be bom", strict, []byte{0xFE, 0xFF, 0, 'h', 0, 'i'}, "hi", nil},
		{"gbk fallback", gbk, []byte{0xD6, 0xD0, 0xCE, 0xC4}, "中文", nil},
		{"no fallback", strict, []byte{0xD6, 0xD0, 0xCE, 0xC4}, "", ErrDecode},
		{"binary", gbk, []byte{'a', 0, 'b'}, "", ErrBinary},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.decoder.Decode(tt.raw)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewDecoderRejectsUnknownCharset(t *testing.T) {
	_, err := NewDecoder("klingon-8")
	assert.Error(t, err)
}
