package audio

import (
	"bytes"
	"encoding/base64"
	"os"
	"time"

	"github.com/go-audio/wav"
	"github.com/m-mizutani/goerr/v2"
)

var riffMagic = []byte("RIFF")

// Normalize returns raw WAV bytes from an upload that may be either a plain
// RIFF/WAV file or base64-encoded WAV data.
func Normalize(content []byte) ([]byte, error) {
	if bytes.HasPrefix(content, riffMagic) {
		return content, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(content)))
	if err != nil {
		return nil, goerr.Wrap(err, "invalid audio content format")
	}
	if !bytes.HasPrefix(decoded, riffMagic) {
		return nil, goerr.New("decoded audio content is not a WAV file")
	}
	return decoded, nil
}

// Duration reads the WAV file at path and returns its play time.
func Duration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to open audio file")
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, goerr.New("not a valid WAV file")
	}

	d, err := dec.Duration()
	if err != nil {
		return 0, goerr.Wrap(err, "failed to read WAV duration")
	}
	return d, nil
}
