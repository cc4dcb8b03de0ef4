package bypass

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPipeDriverPairExchangesFrames(t *testing.T) {
	left, right := NewPipeDriverPair("test", 1500)
	defer left.Close()
	defer right.Close()

	require.True(t, left.IsPipe())
	require.Equal(t, "test-left", left.Name())
	require.Equal(t, "test-right", right.Name())

	frame := []byte{1, 2, 3, 4, 5}
	done := make(chan error, 1)
	go func() { done <- left.Send(frame) }()

	buf := make([]byte, 1500)
	n, err := right.RecvInto(buf)
	require.NoError(t, err)
	require.NoError(t, <-done)
	require.Equal(t, frame, buf[:n])
}

func TestPipeDriverMTU(t *testing.T) {
	left, right := NewPipeDriverPair("mtu-test", 9000)
	defer left.Close()
	defer right.Close()
	require.Equal(t, 9000, left.MTU())
	require.Equal(t, 9000, right.MTU())
}

func TestPipeDriverCloseUnblocksRecv(t *testing.T) {
	left, right := NewPipeDriverPair("close-test", 1500)
	defer right.Close()

	errCh := make(chan error, 1)
	go func() {
		buf := make([]byte, 1500)
		_, err := left.RecvInto(buf)
		errCh <- err
	}()

	require.NoError(t, left.Close())
	require.Error(t, <-errCh)
}
