package memq

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"blockrelay/infra/transport"
)

func TestFanoutAndFIFO(t *testing.T) {
	b := New()
	b.Bind("blocks", "a")
	b.Bind("blocks", "b")
	ctx := context.Background()

	require.NoError(t, b.Publish(ctx, "blocks", "", []byte("1")))
	require.NoError(t, b.Publish(ctx, "blocks", "", []byte("2")))
	require.NoError(t, b.Publish(ctx, "nowhere", "", []byte("x")))

	for _, q := range []string{"a", "b"} {
		m, err := b.ReceiveOne(ctx, q)
		require.NoError(t, err)
		require.Equal(t, "1", string(m))
		m, err = b.ReceiveOne(ctx, q)
		require.NoError(t, err)
		require.Equal(t, "2", string(m))
		m, err = b.ReceiveOne(ctx, q)
		require.NoError(t, err)
		require.Nil(t, m)
	}
}

func TestFailNext(t *testing.T) {
	b := New()
	b.Bind("e", "q")
	boom := errors.New("connection reset")
	b.FailNext(boom)

	err := b.Publish(context.Background(), "e", "", []byte("x"))
	require.True(t, transport.IsTransport(err))
	require.ErrorIs(t, err, boom)
	require.Equal(t, 0, b.Len("q"))

	require.NoError(t, b.Publish(context.Background(), "e", "", []byte("x")))
	require.Equal(t, 1, b.Len("q"))
}

func TestClosed(t *testing.T) {
	b := New()
	require.NoError(t, b.Close())
	_, err := b.ReceiveOne(context.Background(), "q")
	require.ErrorIs(t, err, ErrClosed)
}
