package compressor

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

func TestZstd(t *testing.T) {
	c, err := NewZstdCompressor()
	require.NoError(t, err)
	defer c.Close()

	src := bytes.Repeat([]byte("object graph "), 200)
	packet, err := c.Compress(nil, src)
	require.NoError(t, err)
	assert.Less(t, len(packet), len(src))

	plain, err := c.Decompress(make([]byte, 0, 16), packet)
	require.NoError(t, err)
	assert.Equal(t, src, plain)

	c.SetMinCompressSize(1 << 20)
	assert.Equal(t, 1<<20, c.MinCompressSize())
	raw, err := c.Compress(nil, src)
	require.NoError(t, err)
	assert.Equal(t, src, raw)

	_, err = c.Decompress(nil, []byte("not zstd"))
	assert.Error(t, err)

	c.Close()
	_, err = c.Compress(nil, src)
	assert.ErrorIs(t, err, zstd.ErrEncoderClosed)
	_, err = c.Decompress(nil, packet)
	assert.ErrorIs(t, err, zstd.ErrDecoderClosed)
}

func TestNew(t *testing.T) {
	nop, err := New("")
	require.NoError(t, err)
	out, err := nop.Compress(nil, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), out)

	z, err := New(NameZstd)
	require.NoError(t, err)
	assert.IsType(t, &ZstdCompressor{}, z)
	z.(*ZstdCompressor).Close()

	_, err = New("lz4")
	assert.ErrorIs(t, err, merr.ErrOperationNotSupported)
}
