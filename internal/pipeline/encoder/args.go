package encoder

import (
	"fmt"
	"strings"
)

// commonPrefix is shared by every encoder invocation regardless of mode.
var commonPrefix = []string{"-nostdin", "-loglevel", "warning", "-re", "-fflags", "+genpts+igndts"}

// PlaylistArgs builds the argument list for single-asset and plain-playlist
// sessions: a concat-demuxer input, stream-copied video/audio, RTMP FLV out.
// Reproduced bit-for-bit against the encoder contract: stream-copy imposes
// keyframe-interval preconditions on input files that only hold if the
// argument shape matches exactly.
func PlaylistArgs(manifestPath string, loop bool, rtmpURL string) []string {
	streamLoop := "0"
	if loop {
		streamLoop = "-1"
	}

	args := append([]string{}, commonPrefix...)
	args = append(args,
		"-f", "concat", "-safe", "0", "-stream_loop", streamLoop, "-i", manifestPath,
		"-map", "0:v:0", "-map", "0:a:0", "-map_metadata", "-1",
		"-c:v", "copy", "-c:a", "copy",
		"-f", "flv", "-flvflags", "no_duration_filesize", rtmpURL,
	)
	return args
}

// MusicPlaylistInputs names the inputs of a music-playlist session.
// AmbientPath == "" omits the optional third input and its mix.
type MusicPlaylistInputs struct {
	BackgroundPath    string
	MusicManifestPath string
	AmbientPath       string
	AmbientVolume     float64
}

// MusicPlaylistArgs builds the argument list for music-playlist sessions: a
// looping background video muted under a concat-demuxed music playlist,
// optionally mixed with a looping ambient/SFX track via amix.
func MusicPlaylistArgs(in MusicPlaylistInputs, rtmpURL string) []string {
	args := append([]string{}, commonPrefix...)

	args = append(args, "-thread_queue_size", "512", "-stream_loop", "-1", "-i", in.BackgroundPath)
	args = append(args, "-thread_queue_size", "512", "-stream_loop", "-1", "-i", in.MusicManifestPath)

	hasAmbient := in.AmbientPath != ""
	if hasAmbient {
		args = append(args, "-thread_queue_size", "512", "-stream_loop", "-1", "-i", in.AmbientPath)
	}

	args = append(args, "-map", "0:v:0")
	if hasAmbient {
		filter := fmt.Sprintf("[1:a]volume=1.0[music];[2:a]volume=%g[sfx];[music][sfx]amix=inputs=2:duration=longest[outa]", in.AmbientVolume)
		args = append(args, "-filter_complex", filter, "-map", "[outa]")
	} else {
		args = append(args, "-map", "1:a:0")
	}

	args = append(args,
		"-c:v", "copy",
		"-c:a", "aac", "-b:a", "128k", "-ar", "44100", "-ac", "2",
		"-f", "flv", "-flvflags", "no_duration_filesize", rtmpURL,
	)
	return args
}

// RTMPURL joins the configured ingest base URL with a stream key token.
func RTMPURL(ingestBaseURL, streamKeyToken string) string {
	return ingestBaseURL + "/" + streamKeyToken
}

// MaskedArgs returns args with the stream key token in the final (RTMP URL)
// element redacted, for safe logging of the echoed command line.
func MaskedArgs(args []string, streamKeyToken string) []string {
	if streamKeyToken == "" || len(args) == 0 {
		return args
	}
	masked := append([]string{}, args...)
	last := len(masked) - 1
	masked[last] = maskToken(masked[last], streamKeyToken)
	return masked
}

func maskToken(s, token string) string {
	return strings.ReplaceAll(s, token, "***")
}
