package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInput_SizeLimit(t *testing.T) {
	limit := 4096
	tests := []struct {
		name      string
		inputSize int
		wantErr   bool
	}{
		{"Under Limit", limit - 1, false},
		{"Exact Limit", limit, false},
		{"Over Limit", limit + 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Input(strings.Repeat("a", tt.inputSize))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInputTooLarge)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestInput_EnvOverride(t *testing.T) {
	t.Setenv(EnvMaxInputSize, "8")
	_, err := Input("123456789")
	assert.ErrorIs(t, err, ErrInputTooLarge)

	t.Setenv(EnvMaxInputSize, "not-a-number")
	_, err = Input("123456789")
	assert.NoError(t, err)
}

func TestInput_ControlCharacters(t *testing.T) {
	out, err := Input("Is \x1b[31mArticle 17\x1b[0m\x00 relevant?\n\tyes")
	require.NoError(t, err)
	assert.Equal(t, "Is [31mArticle 17[0m relevant?\n\tyes", out)

	_, err = Input(string([]byte{0xff, 0xfe}))
	assert.ErrorIs(t, err, ErrInvalidUTF8)
}

func TestAll(t *testing.T) {
	out, err := All([]string{"a\x07b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ab", "c"}, out)

	_, err = All([]string{"ok", strings.Repeat("x", 5000)})
	assert.Error(t, err)
}
