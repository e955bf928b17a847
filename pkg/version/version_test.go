package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserAgent(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "silveran/"+Version, UserAgent())
}
