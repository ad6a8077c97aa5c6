package tools

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	packets []*rtp.Packet
	closed  bool
	err     error
}

func (f *fakeWriter) WriteRTP(pkt *rtp.Packet) error {
	if f.err != nil {
		return f.err
	}
	f.packets = append(f.packets, pkt)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func packets(pkts ...*rtp.Packet) func() (*rtp.Packet, error) {
	return func() (*rtp.Packet, error) {
		if len(pkts) == 0 {
			return nil, io.EOF
		}
		p := pkts[0]
		pkts = pkts[1:]
		return p, nil
	}
}

func TestCopyRTP(t *testing.T) {
	w := &fakeWriter{}
	n, err := copyRTP(context.Background(), packets(
		&rtp.Packet{Header: rtp.Header{SequenceNumber: 1}, Payload: []byte{1}},
		&rtp.Packet{Header: rtp.Header{SequenceNumber: 2}},
		&rtp.Packet{Header: rtp.Header{SequenceNumber: 3}, Payload: []byte{3}},
	), w)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, w.closed)
	assert.Equal(t, uint16(3), w.packets[1].SequenceNumber)
}

func TestCopyRTPStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := &fakeWriter{}
	n, err := copyRTP(ctx, func() (*rtp.Packet, error) {
		t.Fatal("read after cancel")
		return nil, nil
	}, w)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.True(t, w.closed)
}

func TestCopyRTPErrors(t *testing.T) {
	w := &fakeWriter{}
	_, err := copyRTP(context.Background(), func() (*rtp.Packet, error) {
		return nil, errors.New("srtp failure")
	}, w)
	assert.ErrorContains(t, err, "srtp failure")
	assert.True(t, w.closed)

	w = &fakeWriter{err: errors.New("disk full")}
	_, err = copyRTP(context.Background(), packets(&rtp.Packet{Payload: []byte{1}}), w)
	assert.ErrorContains(t, err, "disk full")
}
