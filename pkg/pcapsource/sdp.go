package pcapsource

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"

	"github.com/bluenviron/tsloss/pkg/rtpmpegts"
)

// StreamInfo describes where a MPEG-TS stream is sent.
type StreamInfo struct {
	Port        int
	PayloadType uint8
}

// ParseSDP finds the first MPEG-TS media of a session description.
func ParseSDP(byts []byte) (*StreamInfo, error) {
	var sd sdp.SessionDescription
	err := sd.Unmarshal(byts)
	if err != nil {
		return nil, fmt.Errorf("invalid SDP: %w", err)
	}

	for _, md := range sd.MediaDescriptions {
		for _, f := range md.MediaName.Formats {
			tmp, err := strconv.ParseUint(f, 10, 8)
			if err != nil {
				continue
			}
			payloadType := uint8(tmp)

			if payloadType == rtpmpegts.PayloadType || isMPEGTSRTPMap(md, f) {
				return &StreamInfo{
					Port:        md.MediaName.Port.Value,
					PayloadType: payloadType,
				}, nil
			}
		}
	}

	return nil, fmt.Errorf("no MPEG-TS media found")
}

func isMPEGTSRTPMap(md *sdp.MediaDescription, format string) bool {
	for _, attr := range md.Attributes {
		if attr.Key != "rtpmap" {
			continue
		}

		// <payload type> <encoding name>/<clock rate>
		parts := strings.SplitN(attr.Value, " ", 2)
		if len(parts) == 2 && parts[0] == format &&
			strings.HasPrefix(strings.ToUpper(parts[1]), "MP2T/") {
			return true
		}
	}
	return false
}
