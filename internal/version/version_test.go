package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfo(t *testing.T) {
	old := Version
	Version = "v1.2.3"
	defer func() { Version = old }()

	assert.Equal(t, "v1.2.3", Short())
	info := Info()
	assert.True(t, strings.HasPrefix(info, "eclesia v1.2.3\n"))
	assert.Contains(t, info, "go version:")

	b := Current()
	assert.Equal(t, "v1.2.3", b.Version)
	assert.Contains(t, info, b.Platform)
}
