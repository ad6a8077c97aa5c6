package remotedesk

import (
	"bytes"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/fixdesk/remotedesk/shared"
	"github.com/pion/webrtc/v4"
)

// signalBlob is the copy/paste form of a session description.
type signalBlob struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// EncodeSignal serializes a local description into the blob an operator
// copies to the other side.
func EncodeSignal(desc webrtc.SessionDescription) (string, error) {
	b, err := sonic.Marshal(signalBlob{Type: desc.Type.String(), SDP: desc.SDP})
	if err != nil {
		return "", fmt.Errorf("marshaling session description: %w", err)
	}
	return string(b), nil
}

// DecodeSignal parses a pasted blob and checks it carries a description of
// the expected type. Every failure wraps shared.ErrSignalFormat.
func DecodeSignal(blob string, want webrtc.SDPType) (webrtc.SessionDescription, error) {
	data := bytes.TrimSpace([]byte(blob))
	if len(data) == 0 {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: empty blob", shared.ErrSignalFormat)
	}
	var raw signalBlob
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: %v", shared.ErrSignalFormat, err)
	}
	if raw.Type == "" {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: missing type", shared.ErrSignalFormat)
	}
	typ := webrtc.NewSDPType(raw.Type)
	if typ != want {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: expected %s, got %q", shared.ErrSignalFormat, want, raw.Type)
	}
	if raw.SDP == "" {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: missing sdp", shared.ErrSignalFormat)
	}
	desc := webrtc.SessionDescription{Type: typ, SDP: raw.SDP}
	if _, err := desc.Unmarshal(); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: invalid sdp: %v", shared.ErrSignalFormat, err)
	}
	return desc, nil
}
