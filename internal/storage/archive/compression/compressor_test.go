package compression

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("Avg. time between R_block creation "), 64)

	for _, name := range Available() {
		t.Run(name, func(t *testing.T) {
			c, err := Get(name)
			require.NoError(t, err)

			out, err := c.Compress(data)
			require.NoError(t, err)
			if name == "lz4" {
				assert.Less(t, len(out), len(data))
			}

			back, err := c.Decompress(out, len(data))
			require.NoError(t, err)
			assert.Equal(t, data, back)

			byID, err := ByID(c.ID())
			require.NoError(t, err)
			assert.Equal(t, name, byID.Name())
		})
	}
}

func TestEmpty(t *testing.T) {
	c, err := Get("lz4")
	require.NoError(t, err)
	out, err := c.Compress(nil)
	require.NoError(t, err)
	back, err := c.Decompress(out, 0)
	require.NoError(t, err)
	assert.Empty(t, back)
}

func TestLZ4RejectsImpossibleSize(t *testing.T) {
	c, err := Get("lz4")
	require.NoError(t, err)
	_, err = c.Decompress([]byte{0x10, 0}, 1<<30)
	assert.Error(t, err)
	_, err = c.Decompress([]byte{0x10, 0}, -1)
	assert.Error(t, err)
}

func TestUnknown(t *testing.T) {
	_, err := Get("zstd")
	assert.ErrorIs(t, err, ErrUnknownCompressor)
	_, err = ByID(200)
	assert.ErrorIs(t, err, ErrUnknownCompressor)
	assert.Equal(t, []string{"lz4", "none"}, Available())
}
