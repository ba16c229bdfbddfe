package framer

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/blang/semver/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

func TestFrameRoundTrip(t *testing.T) {
	f := NewLengthPrefixedFramer(0)
	var buf bytes.Buffer
	envs := []*Envelope{
		{Version: CurrentVersion, Flags: FlagCompressed, Payload: []byte("first")},
		{Version: CurrentVersion},
	}
	for _, env := range envs {
		require.NoError(t, f.WriteFrame(&buf, env))
	}

	for _, want := range envs {
		got, err := f.ReadFrame(&buf)
		require.NoError(t, err)
		assert.True(t, want.Version.Equals(got.Version))
		assert.Equal(t, want.Flags, got.Flags)
		assert.Equal(t, len(want.Payload), len(got.Payload))
		assert.Equal(t, want.Has(FlagCompressed), got.Has(FlagCompressed))
	}
	_, err := f.ReadFrame(&buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestFrameLimits(t *testing.T) {
	f := NewLengthPrefixedFramer(8)
	err := f.WriteFrame(io.Discard, &Envelope{Version: CurrentVersion, Payload: make([]byte, 64)})
	assert.ErrorIs(t, err, merr.ErrStreamFrameTooLarge)

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], 1024)
	_, err = f.ReadFrame(bytes.NewReader(header[:]))
	assert.ErrorIs(t, err, merr.ErrStreamFrameTooLarge)

	_, err = NewLengthPrefixedFramer(0).ReadFrame(bytes.NewReader([]byte{0, 0, 0, 9, 1}))
	assert.ErrorIs(t, err, merr.ErrStreamCorrupted)
	_, err = NewLengthPrefixedFramer(0).ReadFrame(bytes.NewReader([]byte{0, 0}))
	assert.ErrorIs(t, err, merr.ErrStreamCorrupted)
}

func TestEnvelopeCompatibility(t *testing.T) {
	env := &Envelope{Version: semver.MustParse("1.4.0"), Payload: []byte{1}}
	data := env.AppendBinary(nil)
	assert.Len(t, data, env.Size())
	// 新版本追加的字段被跳过
	data = protowire.AppendTag(data, 15, protowire.VarintType)
	data = protowire.AppendVarint(data, 99)

	var got Envelope
	require.NoError(t, got.UnmarshalBinary(data))
	assert.Equal(t, []byte{1}, got.Payload)

	next := (&Envelope{Version: semver.MustParse("2.0.0")}).AppendBinary(nil)
	assert.ErrorIs(t, got.UnmarshalBinary(next), merr.ErrSerdeUnsupportedVer)

	assert.ErrorIs(t, got.UnmarshalBinary(protowire.AppendTag(nil, fieldFlags, protowire.VarintType)), merr.ErrStreamCorrupted)
	assert.ErrorIs(t, got.UnmarshalBinary(nil), merr.ErrStreamCorrupted)
}
