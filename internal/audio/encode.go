package audio

import (
	"fmt"
	"strconv"

	"github.com/vincent-petithory/dataurl"
)

const wavMediaType = "audio/wav"

// Encode turns a finalized wav into the text form sent with a submission.
// The duration rides along as a media type parameter.
func Encode(wav []byte, seconds int) string {
	return dataurl.New(wav, wavMediaType, "duration", strconv.Itoa(seconds)).String()
}

// Decoded is a transmittable payload read back into its parts.
type Decoded struct {
	WAV             []byte
	ContentType     string
	DurationSeconds int
}

// Decode parses a payload produced by Encode, or any audio data URL.
func Decode(encoded string) (Decoded, error) {
	du, err := dataurl.DecodeString(encoded)
	if err != nil {
		return Decoded{}, fmt.Errorf("decode audio payload: %w", err)
	}
	if du.MediaType.Type != "audio" {
		return Decoded{}, fmt.Errorf("decode audio payload: unexpected media type %q", du.MediaType.ContentType())
	}

	out := Decoded{WAV: du.Data, ContentType: du.MediaType.ContentType()}
	if raw, ok := du.MediaType.Params["duration"]; ok {
		if seconds, err := strconv.Atoi(raw); err == nil && seconds >= 0 {
			out.DurationSeconds = seconds
		}
	}
	return out, nil
}

// IsEncoded reports whether value looks like a payload Decode accepts.
func IsEncoded(value string) bool {
	_, err := Decode(value)
	return err == nil
}
