package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fixdesk/remotedesk"
	"github.com/fixdesk/remotedesk/shared"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/screen"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"go.uber.org/zap"
)

type ScreenOptions struct {
	FrameRate int
	BitRate   int
}

func DefaultScreenOptions() ScreenOptions {
	return ScreenOptions{FrameRate: 15, BitRate: 1_500_000}
}

// screenTrack feeds VP8 frames read from a display capture into a static
// sample track.
type screenTrack struct {
	*webrtc.TrackLocalStaticSample
	src       mediadevices.Track
	closeOnce sync.Once
	closeErr  error
}

func (t *screenTrack) OnEnded(handler func(error)) { t.src.OnEnded(handler) }

func (t *screenTrack) Close() error {
	t.closeOnce.Do(func() { t.closeErr = t.src.Close() })
	return t.closeErr
}

// ScreenAcquirer returns a MediaAcquirer that captures the primary display.
func ScreenAcquirer(logger shared.LoggerAdapter, opts ScreenOptions) remotedesk.MediaAcquirer {
	return func(ctx context.Context) ([]remotedesk.LocalTrack, error) {
		return ScreenStream(ctx, logger, opts)
	}
}

// ScreenStream captures the primary display as VP8. Every returned track
// is pumped until it is closed or ctx ends.
func ScreenStream(ctx context.Context, logger shared.LoggerAdapter, opts ScreenOptions) ([]remotedesk.LocalTrack, error) {
	if opts.FrameRate <= 0 {
		opts.FrameRate = DefaultScreenOptions().FrameRate
	}
	vp8Params, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("%w: creating vp8 params: %v", shared.ErrMediaAcquisition, err)
	}
	if opts.BitRate > 0 {
		vp8Params.BitRate = opts.BitRate
	}
	stream, err := mediadevices.GetDisplayMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			c.FrameRate = prop.Float(opts.FrameRate)
		},
		Codec: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vp8Params),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrMediaAcquisition, err)
	}
	sources := stream.GetVideoTracks()
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: no screen to share was found", shared.ErrMediaAcquisition)
	}

	tracks := make([]remotedesk.LocalTrack, 0, len(sources))
	for _, src := range sources {
		sample, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
			src.ID(),
			"screen",
		)
		if err != nil {
			for _, s := range sources {
				_ = s.Close()
			}
			return nil, fmt.Errorf("%w: creating track: %v", shared.ErrMediaAcquisition, err)
		}
		track := &screenTrack{TrackLocalStaticSample: sample, src: src}
		go streamLocalVideo(ctx, logger, sample, src, FrameInterval(opts.FrameRate))
		tracks = append(tracks, track)
	}
	logger.Info("screen captured", zap.Int("tracks", len(tracks)), zap.Int("fps", opts.FrameRate))
	return tracks, nil
}

func streamLocalVideo(ctx context.Context, logger shared.LoggerAdapter, track *webrtc.TrackLocalStaticSample, src mediadevices.Track, frameDuration time.Duration) {
	reader, err := src.NewEncodedReader(track.Codec().MimeType)
	if err != nil {
		logger.Error("creating screen track reader", err)
		return
	}
	defer func() { _ = reader.Close() }()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		buf, release, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Debug("screen track ended")
				return
			}
			logger.Error("reading from screen track", err)
			return
		}
		err = track.WriteSample(media.Sample{
			Data:     buf.Data,
			Duration: frameDuration,
		})
		release()
		if err != nil && !errors.Is(err, io.ErrClosedPipe) {
			logger.Warn("writing screen sample", zap.Error(err))
		}
	}
}
