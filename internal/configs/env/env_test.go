package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvFallsBackOnMissingOrInvalid(t *testing.T) {
	t.Setenv("TWINSCAN_INT", "not-a-number")
	t.Setenv("TWINSCAN_FLOAT", "12.5")
	t.Setenv("TWINSCAN_BOOL", "true")

	assert.Equal(t, "fallback", GetEnv("TWINSCAN_UNSET", "fallback"))
	assert.Equal(t, 7, GetEnvInt("TWINSCAN_INT", 7))
	assert.InDelta(t, 12.5, GetEnvFloat("TWINSCAN_FLOAT", 0), 1e-9)
	assert.True(t, GetEnvBool("TWINSCAN_BOOL", false))
	assert.False(t, GetEnvBool("TWINSCAN_UNSET", false))
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("TWINSCAN_EXT", " .py, .java ,, .c ")
	assert.Equal(t, []string{".py", ".java", ".c"}, GetEnvList("TWINSCAN_EXT", nil))

	t.Setenv("TWINSCAN_EMPTY", " , ")
	assert.Equal(t, []string{".go"}, GetEnvList("TWINSCAN_EMPTY", []string{".go"}))
}

func TestGetEnvBytes(t *testing.T) {
	t.Setenv("TWINSCAN_SIZE", "2 KiB")
	assert.Equal(t, uint64(2048), GetEnvBytes("TWINSCAN_SIZE", 1))

	t.Setenv("TWINSCAN_SIZE", "lots")
	assert.Equal(t, uint64(1), GetEnvBytes("TWINSCAN_SIZE", 1))
}
