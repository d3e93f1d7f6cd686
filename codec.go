package main

import (
	"strings"

	"github.com/pion/webrtc/v3"
)

// CodecType names a video codec the transport can negotiate.
type CodecType string

const (
	CodecVP8  CodecType = "vp8"
	CodecVP9  CodecType = "vp9"
	CodecH264 CodecType = "h264"
)

// CodecInfo describes a codec option for the UI.
type CodecInfo struct {
	Type        CodecType
	Name        string
	Description string
}

var AvailableCodecs = []CodecInfo{
	{Type: CodecVP8, Name: "VP8", Description: "fast, compatible"},
	{Type: CodecVP9, Name: "VP9", Description: "better quality"},
	{Type: CodecH264, Name: "H.264", Description: "wide device support"},
}

var codecMimes = map[CodecType]string{
	CodecVP8:  webrtc.MimeTypeVP8,
	CodecVP9:  webrtc.MimeTypeVP9,
	CodecH264: webrtc.MimeTypeH264,
}

// ParseCodecFlag maps a --codec value to a codec type, defaulting to VP8.
func ParseCodecFlag(value string) CodecType {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "vp9":
		return CodecVP9
	case "h264", "h.264", "avc":
		return CodecH264
	default:
		return CodecVP8
	}
}

// CodecOrderFor builds the negotiation preference list with the chosen codec
// first and the remaining codecs as fallbacks.
func CodecOrderFor(preferred CodecType) []string {
	order := []string{codecMimes[preferred]}
	for _, info := range AvailableCodecs {
		if info.Type == preferred {
			continue
		}
		order = append(order, codecMimes[info.Type])
	}
	return order
}
