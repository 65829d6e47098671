package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatMsecs(t *testing.T) {
	assert.Equal(t, "2023-11-14T22:13:20.123Z", formatMsecs(1700000000123))
	assert.Equal(t, "1970-01-01T00:00:00Z", formatMsecs(0))
}
