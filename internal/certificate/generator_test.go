package certificate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFontForLatinName(t *testing.T) {
	assert.Equal(t, latinFont, fontFor("Ann Chen"))
}

func TestFontForCJKName(t *testing.T) {
	assert.Equal(t, cjkFont, fontFor("陳小明"))
}

func TestFontForMixed(t *testing.T) {
	// One wide rune is enough to require the CJK font.
	assert.Equal(t, cjkFont, fontFor("Ann 陳"))
}
