package media

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewKey(t *testing.T) {
	key := NewKey(".gif")
	assert.True(t, strings.HasPrefix(key, "posts/"))
	assert.True(t, strings.HasSuffix(key, ".gif"))
	assert.True(t, ValidKey(key))

	assert.True(t, strings.HasSuffix(NewKey("png"), ".png"))
	assert.NotEqual(t, NewKey(".gif"), NewKey(".gif"))
}

func TestValidKey(t *testing.T) {
	for _, key := range []string{"", "/etc/passwd", "../secret", "posts/../../x", "posts//x", `posts\x`} {
		assert.False(t, ValidKey(key), key)
	}
	assert.True(t, ValidKey("posts/abc.gif"))
}
