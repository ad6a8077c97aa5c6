package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fixdesk/remotedesk/shared"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"go.uber.org/zap"
)

type rtpWriter interface {
	WriteRTP(pkt *rtp.Packet) error
	Close() error
}

// RecordRemoteVideo writes an inbound VP8 track to <dir>/<name>.ivf until
// the track ends or ctx is done. It returns the file path.
func RecordRemoteVideo(ctx context.Context, logger shared.LoggerAdapter, track *webrtc.TrackRemote, dir, name string) (string, error) {
	codec := track.Codec()
	if !strings.EqualFold(codec.MimeType, webrtc.MimeTypeVP8) {
		return "", fmt.Errorf("recording %s tracks is not supported", codec.MimeType)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating recording directory: %w", err)
	}
	path := filepath.Join(dir, name+".ivf")
	w, err := ivfwriter.New(path)
	if err != nil {
		return "", fmt.Errorf("creating ivf writer: %w", err)
	}
	logger.Info("recording remote video",
		zap.String("codec", codec.MimeType),
		zap.String("path", path),
	)
	n, err := copyRTP(ctx, func() (*rtp.Packet, error) {
		pkt, _, err := track.ReadRTP()
		return pkt, err
	}, w)
	logger.Info("remote video recording finished", zap.Int("packets", n), zap.String("path", path))
	return path, err
}

// copyRTP moves packets from read to w until read reports io.EOF or ctx
// ends, then closes w.
func copyRTP(ctx context.Context, read func() (*rtp.Packet, error), w rtpWriter) (n int, err error) {
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing recording: %w", cerr)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return n, nil
		default:
		}
		pkt, err := read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, fmt.Errorf("reading RTP packet: %w", err)
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		if err := w.WriteRTP(pkt); err != nil {
			return n, fmt.Errorf("writing RTP packet: %w", err)
		}
		n++
	}
}
