package main

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/NotCoffee418/sml_smart_meter/internal/smltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeCapture(t *testing.T) {
	meter := smltest.DefaultItron()
	data := smltest.Stream(meter.Transmission(), meter.Transmission())

	var out bytes.Buffer
	frames, err := analyze(data, true, &out)

	require.NoError(t, err)
	assert.Equal(t, 2, frames)
	assert.Contains(t, out.String(), "frame 2,")
	assert.Contains(t, out.String(), "reading (complete): valid[0x3f]=0x3f")
	assert.Contains(t, out.String(), "id='ISK'")
	// elements at level 5 are indented
	assert.Contains(t, out.String(), "\n          [5,0] octet 0100600100ff")
}

func TestAnalyzeBareFrame(t *testing.T) {
	var out bytes.Buffer
	frames, err := analyze(smltest.DefaultItron().File(), false, &out)

	require.NoError(t, err)
	assert.Equal(t, 1, frames)
	assert.True(t, strings.HasPrefix(out.String(), "bare frame"))
	assert.Contains(t, out.String(), "reading (complete)")
}

func TestAnalyzeChecksumMismatch(t *testing.T) {
	data := smltest.DefaultItron().Transmission()
	data[len(data)-1] ^= 0xff
	data[len(data)-2] ^= 0x0f

	var out bytes.Buffer
	_, err := analyze(data, true, &out)

	assert.Error(t, err)
	assert.Contains(t, out.String(), "checksum mismatch")
}

func TestParseHex(t *testing.T) {
	data, err := parseHex("1b 1b:1b-1b\n01")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x1b, 0x1b, 0x1b, 0x1b, 0x01}, data)

	_, err = parseHex("zz")
	assert.Error(t, err)
}

func TestLoadInput(t *testing.T) {
	defer func() { inputFile = "" }()

	_, err := loadInput(nil)
	assert.Error(t, err)

	frame := smltest.DefaultItron().Transmission()
	data, err := loadInput([]string{hex.EncodeToString(frame)})
	require.NoError(t, err)
	assert.Equal(t, frame, data)

	inputFile = filepath.Join(t.TempDir(), "meter.sml")
	require.NoError(t, os.WriteFile(inputFile, frame, 0644))
	data, err = loadInput(nil)
	require.NoError(t, err)
	assert.Equal(t, frame, data)

	_, err = loadInput([]string{"00"})
	assert.Error(t, err)
}
