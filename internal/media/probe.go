package media

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
	"github.com/tcolgate/mp3"
)

// Info is the probed shape of an imported audio blob.
type Info struct {
	Title    string  // from embedded tags, empty when absent
	Duration float64 // in seconds, 0 when undeterminable
}

// Probe inspects an audio blob. The format is picked by the file extension
// of name; the blob itself is never validated beyond what duration parsing
// needs, decoding failures are the host engine's concern.
func Probe(name string, blob []byte) Info {
	var info Info

	if meta, err := tag.ReadFrom(bytes.NewReader(blob)); err == nil {
		info.Title = meta.Title()
	}

	dur, err := probeDuration(name, blob)
	if err == nil {
		info.Duration = dur
	}
	return info
}

func probeDuration(name string, blob []byte) (float64, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp3":
		return durationMP3(blob)
	case ".flac":
		return durationFLAC(blob)
	case ".wav":
		return durationWAV(blob)
	default:
		return 0, fmt.Errorf("unsupported format: %s", filepath.Ext(name))
	}
}

// MP3 duration by summing decoded frame durations.
func durationMP3(blob []byte) (float64, error) {
	dec := mp3.NewDecoder(bytes.NewReader(blob))
	var total time.Duration
	var skipped int
	frames := 0
	for {
		var fr mp3.Frame
		if err := dec.Decode(&fr, &skipped); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if frames == 0 {
				return 0, err
			}
			break // partial decode; use what we have
		}
		total += fr.Duration()
		frames++
	}
	return total.Seconds(), nil
}

// FLAC duration via the STREAMINFO metadata block.
func durationFLAC(blob []byte) (float64, error) {
	stream, err := flac.Parse(bytes.NewReader(blob))
	if err != nil {
		return 0, err
	}
	si := stream.Info
	if si.NSamples > 0 && si.SampleRate > 0 {
		return float64(si.NSamples) / float64(si.SampleRate), nil
	}
	return 0, fmt.Errorf("flac stream missing sample info")
}

// WAV duration from the header plus payload size.
func durationWAV(blob []byte) (float64, error) {
	dec := wav.NewDecoder(bytes.NewReader(blob))
	if !dec.IsValidFile() {
		return 0, fmt.Errorf("invalid wav file")
	}
	if dec.SampleRate == 0 || dec.BitDepth == 0 || dec.NumChans == 0 {
		return 0, fmt.Errorf("invalid wav header")
	}

	headerSize := 44
	pcmBytes := len(blob) - headerSize
	if pcmBytes < 0 {
		pcmBytes = 0
	}
	bytesPerFrame := int(dec.BitDepth/8) * int(dec.NumChans)
	if bytesPerFrame <= 0 {
		return 0, fmt.Errorf("invalid sample frame size")
	}
	frames := pcmBytes / bytesPerFrame
	return float64(frames) / float64(dec.SampleRate), nil
}
