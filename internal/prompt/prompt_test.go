package prompt

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLine(t *testing.T) {
	out := new(bytes.Buffer)
	p := New(strings.NewReader("first\r\nsecond\nlast"), out)

	for _, want := range []string{"first", "second", "last"} {
		got, err := p.Line("> ")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := p.Line("> ")
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "> > > > ", out.String())
}

func TestPassword_NonTerminalReadsLine(t *testing.T) {
	out := new(bytes.Buffer)
	p := New(strings.NewReader("Secret123\n"), out)

	got, err := p.Password("Password: ")
	require.NoError(t, err)
	assert.Equal(t, "Secret123", got)
	assert.Equal(t, "Password: ", out.String())
}

func TestConfirm(t *testing.T) {
	tests := map[string]bool{
		"y\n":     true,
		"YES\n":   true,
		" yes \n": true,
		"n\n":     false,
		"\n":      false,
		"maybe\n": false,
	}
	for input, want := range tests {
		t.Run(strings.TrimSpace(input), func(t *testing.T) {
			got, err := New(strings.NewReader(input), io.Discard).Confirm("? ")
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}
