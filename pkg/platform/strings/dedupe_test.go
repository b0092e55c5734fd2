package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	assert.Equal(t, []string{"admin", "member", "taskhub-app:viewer"},
		DedupeAndTrim([]string{" admin", "member", "admin", "", "  ", "taskhub-app:viewer"}))
	assert.Empty(t, DedupeAndTrim(nil))
}
