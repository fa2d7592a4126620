//go:build linux
// +build linux

package netfilter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrefixMask(t *testing.T) {
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff}, prefixMask(32, 4))
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0x00}, prefixMask(24, 4))
	assert.Equal(t, []byte{0xff, 0xf0, 0x00, 0x00}, prefixMask(12, 4))
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x00}, prefixMask(0, 4))

	v6 := prefixMask(64, 16)
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, v6[:8])
	assert.Equal(t, make([]byte, 8), v6[8:])
}
