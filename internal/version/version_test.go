package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	info := Get()
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.NotEmpty(t, info.OpenCV)
	assert.Greater(t, info.MemoryMiB, uint64(0))
	assert.Contains(t, info.String(), "imreg "+Version)
}
