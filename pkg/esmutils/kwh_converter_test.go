package esmutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConversions(t *testing.T) {
	assert.InDelta(t, 12345678.9, DeciWhToWh(123456789), 1e-6)
	assert.InDelta(t, 12345.6789, DeciWhToKWh(123456789), 1e-9)
}
