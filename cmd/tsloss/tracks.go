package main

import (
	"fmt"
	"os"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts/codecs"
)

func codecName(c mpegts.Codec) string {
	switch c.(type) {
	case *mpegts.CodecH265:
		return "H265"

	case *mpegts.CodecH264:
		return "H264"

	case *mpegts.CodecMPEG4Video:
		return "MPEG-4 Video"

	case *mpegts.CodecMPEG1Video:
		return "MPEG-1/2 Video"

	case *mpegts.CodecOpus:
		return "Opus"

	case *mpegts.CodecMPEG4Audio:
		return "MPEG-4 Audio"

	case *mpegts.CodecMPEG4AudioLATM:
		return "MPEG-4 Audio LATM"

	case *mpegts.CodecMPEG1Audio:
		return "MPEG-1/2 Audio"

	case *mpegts.CodecAC3:
		return "AC-3"

	case *codecs.EAC3:
		return "E-AC-3"

	case *mpegts.CodecKLV:
		return "KLV"

	case *mpegts.CodecDVBSubtitle:
		return "DVB Subtitle"
	}

	return "unsupported"
}

// readTrackCodecs returns the codec of every elementary stream
// declared in the program map tables of a file.
func readTrackCodecs(path string) (map[uint16]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := &mpegts.Reader{R: f}
	err = r.Initialize()
	if err != nil {
		return nil, fmt.Errorf("unable to read program tables: %w", err)
	}

	ret := make(map[uint16]string)
	for _, track := range r.Tracks() {
		ret[track.PID] = codecName(track.Codec)
	}
	return ret, nil
}
