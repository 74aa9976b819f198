package jellyfin

import (
	"fmt"
	"math"
	"strings"

	"github.com/erikbos/stashfin/catalog"
	"github.com/erikbos/stashfin/idhash"
)

const (
	subtitleFormatSrt = "srt"
	subtitleFormatVtt = "vtt"
)

// subtitleLanguages maps caption language codes to display names.
var subtitleLanguages = map[string]string{
	"ar": "Arabic",
	"cs": "Czech",
	"da": "Danish",
	"de": "German",
	"el": "Greek",
	"en": "English",
	"es": "Spanish",
	"fi": "Finnish",
	"fr": "French",
	"he": "Hebrew",
	"hi": "Hindi",
	"hu": "Hungarian",
	"id": "Indonesian",
	"it": "Italian",
	"ja": "Japanese",
	"ko": "Korean",
	"nl": "Dutch",
	"no": "Norwegian",
	"pl": "Polish",
	"pt": "Portuguese",
	"ro": "Romanian",
	"ru": "Russian",
	"sv": "Swedish",
	"th": "Thai",
	"tr": "Turkish",
	"uk": "Ukrainian",
	"vi": "Vietnamese",
	"zh": "Chinese",
}

// makeMediaSource describes the single direct play source of a scene.
func makeMediaSource(m catalog.MediaItem) JFMediaSources {
	id := makeJFSceneID(m.ID)
	mediasource := JFMediaSources{
		ID:                    id,
		ETag:                  idhash.Hash(id + m.Path),
		Name:                  m.DisplayTitle(),
		Path:                  m.Path,
		Type:                  "Default",
		Container:             m.Container,
		Protocol:              "File",
		VideoType:             "VideoFile",
		Size:                  m.Size,
		Bitrate:               m.BitRate,
		RunTimeTicks:          durationTicks(m.Duration),
		IsRemote:              false,
		ReadAtNativeFramerate: false,
		IgnoreDts:             false,
		IgnoreIndex:           false,
		GenPtsInput:           false,
		// We do not support transcoding by server
		SupportsTranscoding:  false,
		SupportsDirectStream: true,
		SupportsDirectPlay:   true,
		SupportsProbing:      true,
		MediaAttachments:     []string{},
		Formats:              []string{},
	}

	videostream := JFMediaStreams{
		Index:            0,
		Type:             "Video",
		IsDefault:        true,
		AverageFrameRate: math.Round(m.FrameRate*100) / 100,
		RealFrameRate:    math.Round(m.FrameRate*100) / 100,
		Height:           m.Height,
		Width:            m.Width,
		BitRate:          m.BitRate,
		VideoRange:       "SDR",
		VideoRangeType:   "SDR",
	}
	videostream.Codec, videostream.CodecTag = videoCodec(m.VideoCodec)
	videostream.Title = strings.ToUpper(videostream.Codec)
	videostream.DisplayTitle = videostream.Title + " - " + videostream.VideoRange
	mediasource.MediaStreams = append(mediasource.MediaStreams, videostream)

	if m.AudioCodec != "" {
		audiostream := JFMediaStreams{
			Index:             len(mediasource.MediaStreams),
			Type:              "Audio",
			Language:          "und",
			IsDefault:         true,
			Channels:          2,
			ChannelLayout:     "stereo",
			LocalizedDefault:  "Default",
			LocalizedExternal: "External",
		}
		audiostream.Codec, audiostream.CodecTag = audioCodec(m.AudioCodec)
		audiostream.Title = "Stereo"
		audiostream.DisplayTitle = strings.ToUpper(audiostream.Codec) + " - Stereo - Default"
		mediasource.DefaultAudioStreamIndex = audiostream.Index
		mediasource.MediaStreams = append(mediasource.MediaStreams, audiostream)
	}

	for i, c := range m.Captions {
		index := len(mediasource.MediaStreams)
		format := subtitleFormat(c.Format)
		language := subtitleLanguage(c.Language)
		subtitle := JFMediaStreams{
			Index:                  index,
			Type:                   "Subtitle",
			Codec:                  format,
			Language:               c.Language,
			Title:                  language,
			DisplayTitle:           fmt.Sprintf("%s - %s - External", language, strings.ToUpper(format)),
			IsDefault:              i == 0,
			IsExternal:             true,
			IsTextSubtitleStream:   true,
			SupportsExternalStream: true,
			DeliveryMethod:         "External",
			DeliveryUrl:            fmt.Sprintf("/Videos/%s/%s/Subtitles/%d/Stream.%s", id, id, index, format),
			LocalizedDefault:       "Default",
			LocalizedExternal:      "External",
		}
		if i == 0 {
			mediasource.DefaultSubtitleStreamIndex = &subtitle.Index
		}
		mediasource.MediaStreams = append(mediasource.MediaStreams, subtitle)
	}
	return mediasource
}

// subtitleBase returns the media stream index of the first subtitle.
func subtitleBase(m catalog.MediaItem) int {
	if m.AudioCodec != "" {
		return 2
	}
	return 1
}

// subtitleFormat normalizes a caption type to srt or vtt, vtt when unknown.
func subtitleFormat(captionType string) string {
	switch strings.ToLower(strings.TrimSpace(captionType)) {
	case "srt", "subrip":
		return subtitleFormatSrt
	default:
		return subtitleFormatVtt
	}
}

// subtitleLanguage returns the display name of a language code.
func subtitleLanguage(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if name, ok := subtitleLanguages[code]; ok {
		return name
	}
	if code == "" || code == "00" {
		return "Unknown"
	}
	return strings.ToUpper(code)
}

func videoCodec(codec string) (name, tag string) {
	switch strings.ToLower(codec) {
	case "avc", "x264", "h264":
		return "h264", "avc1"
	case "x265", "h265", "hevc":
		return "hevc", "hvc1"
	case "vc1":
		return "vc1", "wvc1"
	case "av1":
		return "av1", "av01"
	}
	return strings.ToLower(codec), ""
}

func audioCodec(codec string) (name, tag string) {
	switch strings.ToLower(codec) {
	case "ac3":
		return "ac3", "ac-3"
	case "eac3":
		return "eac3", "ec-3"
	case "aac":
		return "aac", "mp4a"
	}
	return strings.ToLower(codec), ""
}
