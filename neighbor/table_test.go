package neighbor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/soypat/warpcore/wire"
	"github.com/stretchr/testify/require"
)

func TestLookupMiss(t *testing.T) {
	tbl := New(nil)
	_, ok := tbl.Lookup(wire.AddrFromIPv4Bytes([4]byte{10, 0, 0, 1}))
	require.False(t, ok)
}

func TestUpdateAndLookup(t *testing.T) {
	tbl := New(nil)
	addr := wire.AddrFromIPv4Bytes([4]byte{10, 0, 0, 1})
	mac := wire.EthAddr{1, 2, 3, 4, 5, 6}
	tbl.Update(addr, mac)

	got, ok := tbl.Lookup(addr)
	require.True(t, ok)
	require.Equal(t, mac, got)
	require.Equal(t, 1, tbl.Len())
}

func TestWhoHasReturnsCachedWithoutQuerying(t *testing.T) {
	tbl := New(nil)
	addr := wire.AddrFromIPv4Bytes([4]byte{10, 0, 0, 1})
	mac := wire.EthAddr{1, 2, 3, 4, 5, 6}
	tbl.Update(addr, mac)

	r := &countingResolver{}
	got, err := tbl.WhoHas(context.Background(), addr, r)
	require.NoError(t, err)
	require.Equal(t, mac, got)
	require.Equal(t, 0, r.queries)
}

func TestWhoHasResolvesAfterQuery(t *testing.T) {
	tbl := New(nil)
	addr := wire.AddrFromIPv4Bytes([4]byte{10, 0, 0, 2})
	mac := wire.EthAddr{6, 5, 4, 3, 2, 1}

	r := &countingResolver{
		onQuery: func() {
			if true {
				tbl.Update(addr, mac)
			}
		},
	}
	got, err := tbl.WhoHas(context.Background(), addr, r)
	require.NoError(t, err)
	require.Equal(t, mac, got)
	require.Equal(t, 1, r.queries)
}

func TestWhoHasTimesOut(t *testing.T) {
	tbl := New(nil)
	addr := wire.AddrFromIPv4Bytes([4]byte{10, 0, 0, 3})
	r := &countingResolver{}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err := tbl.WhoHas(ctx, addr, r)
	require.ErrorIs(t, err, ErrResolutionTimeout)
}

func TestWhoHasPropagatesQueryError(t *testing.T) {
	tbl := New(nil)
	addr := wire.AddrFromIPv4Bytes([4]byte{10, 0, 0, 4})
	wantErr := errors.New("no route")
	r := &countingResolver{queryErr: wantErr}

	_, err := tbl.WhoHas(context.Background(), addr, r)
	require.ErrorIs(t, err, wantErr)
}

type countingResolver struct {
	queries  int
	onQuery  func()
	queryErr error
}

func (r *countingResolver) Query(wire.Addr) error {
	r.queries++
	if r.onQuery != nil {
		r.onQuery()
	}
	return r.queryErr
}

func (r *countingResolver) PumpRX(time.Duration) error { return nil }
