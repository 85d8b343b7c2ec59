package frame

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildARM(t *testing.T) {
	got, err := Build(DefaultProtocol(), "ARM")
	require.NoError(t, err)

	// CRC-16/CCITT-FALSE over [0x03 'A' 'R' 'M'] is 0xC435, little-endian
	// on the wire.
	want := []byte{0x02, 0x03, 0x41, 0x52, 0x4D, 0x35, 0xC4, 0x03}
	assert.Equal(t, want, got)
}

func TestBuildAllCommands(t *testing.T) {
	tests := []struct {
		command string
		frame   []byte
	}{
		{"ARM", []byte{0x02, 0x03, 0x41, 0x52, 0x4D, 0x35, 0xC4, 0x03}},
		{"DISARM", []byte{0x02, 0x06, 0x44, 0x49, 0x53, 0x41, 0x52, 0x4D, 0x80, 0xB0, 0x03}},
		{"RESOLVE", []byte{0x02, 0x07, 0x52, 0x45, 0x53, 0x4F, 0x4C, 0x56, 0x45, 0x65, 0xC0, 0x03}},
	}
	for _, tt := range tests {
		got, err := Build(DefaultProtocol(), tt.command)
		require.NoError(t, err, tt.command)
		assert.Equal(t, tt.frame, got, tt.command)
	}
}

func TestBuildRejectsEmptyCommand(t *testing.T) {
	_, err := Build(DefaultProtocol(), "")
	assert.ErrorIs(t, err, ErrInvalidLength)
}

func TestBuildRejectsOversizedCommand(t *testing.T) {
	p := DefaultProtocol()
	_, err := Build(p, strings.Repeat("A", p.MaxLen+1))
	assert.ErrorIs(t, err, ErrInvalidLength)

	// the boundary itself is fine
	f, err := Build(p, strings.Repeat("A", p.MaxLen))
	require.NoError(t, err)
	assert.Equal(t, byte(p.MaxLen), f[1])
}
