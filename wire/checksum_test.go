package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChecksumKnownVector(t *testing.T) {
	// RFC 1071 example header (IPv4 header with checksum field zeroed).
	buf := []byte{
		0x45, 0x00, 0x00, 0x73, 0x00, 0x00, 0x40, 0x00,
		0x40, 0x11, 0x00, 0x00, 0xc0, 0xa8, 0x00, 0x01,
		0xc0, 0xa8, 0x00, 0xc7,
	}
	got := InternetChecksum(buf)
	require.Equal(t, uint16(0xb861), got)

	// Checksum over header+checksum itself must fold to zero.
	var withSum [20]byte
	copy(withSum[:], buf)
	withSum[10] = byte(got >> 8)
	withSum[11] = byte(got)
	require.Zero(t, InternetChecksum(withSum[:]))
}

func TestChecksumOddLength(t *testing.T) {
	var c Checksum
	_, err := c.Write([]byte{0x00, 0x01, 0x02})
	require.NoError(t, err)
	want := InternetChecksum([]byte{0x00, 0x01, 0x02, 0x00})
	require.Equal(t, want, c.Sum())
}

func TestChecksumSplitWrites(t *testing.T) {
	full := []byte{0x12, 0x34, 0x56, 0x78, 0x9a}
	var whole Checksum
	_, _ = whole.Write(full)

	var split Checksum
	_, _ = split.Write(full[:1])
	_, _ = split.Write(full[1:3])
	_, _ = split.Write(full[3:])
	require.Equal(t, whole.Sum(), split.Sum())
}
