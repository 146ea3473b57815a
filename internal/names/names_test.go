package names

import (
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuest(t *testing.T) {
	for range 50 {
		name := Guest()
		parts := strings.Fields(name)
		require.Len(t, parts, 2, name)
		assert.True(t, slices.Contains(adjectives, strings.ToLower(parts[0])), name)
		assert.True(t, slices.Contains(animals, strings.ToLower(parts[1])), name)
	}
}

func TestInitials(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Sleepy Otter", "SO"},
		{"alice", "A"},
		{"  jane  van der berg ", "JV"},
		{"", ""},
		{"élodie roux", "ÉR"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Initials(tt.name), tt.name)
	}
}
