package instanceid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromParts(t *testing.T) {
	a := FromParts("abc", "host-a")
	b := FromParts("abc", "host-a")
	c := FromParts("abc", "host-b")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestFromParts_TrimsHostID(t *testing.T) {
	assert.Equal(t, FromParts("abc", "h"), FromParts(" abc\n", "h"))
}

func TestGenerate_NotEmpty(t *testing.T) {
	assert.NotEmpty(t, Generate())
}
