package sdkset_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taple-mesh/node/pkg/sdkset"
)

func TestContainsKnownSymbols(t *testing.T) {
	s := sdkset.New()
	for _, name := range []string{"alloc", "write_byte", "pointer_len", "read_byte"} {
		assert.True(t, s.Contains(name), "expected %s to be a recognized SDK symbol", name)
	}
}

func TestRejectsUnknownSymbol(t *testing.T) {
	s := sdkset.New()
	assert.False(t, s.Contains("read_file"))
	assert.False(t, s.Contains("open_socket"))
}

func TestLenMatchesFixedSet(t *testing.T) {
	s := sdkset.New()
	assert.Equal(t, 4, s.Len())
	assert.Len(t, s.All(), 4)
}
