package featureflags

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnabled(t *testing.T) {
	for _, v := range []string{"1", "true", "YES", "on"} {
		t.Setenv("FLAG_KEEP_REFRESH_TOKEN", v)
		assert.True(t, Enabled(KeepRefreshToken), v)
	}
	for _, v := range []string{"", "0", "false", "maybe"} {
		t.Setenv("FLAG_KEEP_REFRESH_TOKEN", v)
		assert.False(t, Enabled(KeepRefreshToken), v)
	}

	t.Setenv("FLAG_NOTIFICATION_STREAM", "true")
	assert.True(t, Enabled("notification_stream"))
}
