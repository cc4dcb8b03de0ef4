package ifaddr

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLookupUnknownInterface(t *testing.T) {
	_, err := Lookup("definitely-not-a-real-iface-xyz")
	require.Error(t, err)
	var notFound ErrNoSuchInterface
	require.ErrorAs(t, err, &notFound)
}

func TestLookupLoopback(t *testing.T) {
	ifs, err := net.Interfaces()
	require.NoError(t, err)

	var loName string
	for _, ifi := range ifs {
		if ifi.Flags&net.FlagLoopback != 0 {
			loName = ifi.Name
			break
		}
	}
	if loName == "" {
		t.Skip("host has no loopback interface")
	}

	info, err := Lookup(loName)
	require.NoError(t, err)
	require.True(t, info.Loopback)
	require.Equal(t, loName, info.Name)
}

func TestAllSkipsNothingFatally(t *testing.T) {
	infos, err := All()
	require.NoError(t, err)
	require.NotEmpty(t, infos)
}

func TestIPv4HelperReturnsFalseWithNoAddrs(t *testing.T) {
	info := Info{Name: "synthetic"}
	_, ok := info.IPv4()
	require.False(t, ok)
	_, ok = info.IPv6LinkLocal()
	require.False(t, ok)
}
