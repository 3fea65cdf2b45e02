package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

// Player plays sounds in-process through the system speaker.
type Player struct {
	mu     sync.Mutex
	logger *slog.Logger

	// Whether speaker has been initialized
	initialized bool

	// Sample rate for the speaker
	sampleRate beep.SampleRate

	// Sound cache
	cache      map[string]*beep.Buffer
	cacheMutex sync.RWMutex
}

// NewPlayer creates a new audio player.
func NewPlayer(logger *slog.Logger) *Player {
	if logger == nil {
		logger = slog.Default()
	}

	return &Player{
		logger:     logger,
		sampleRate: beep.SampleRate(44100),
		cache:      make(map[string]*beep.Buffer),
	}
}

// Play starts playback of the sound at path with volume in [0, 1].
// It returns once playback has been queued.
func (p *Player) Play(_ context.Context, path string, volume float64) error {
	if path == "" {
		return fmt.Errorf("no sound file configured")
	}
	path = filepath.Clean(ExpandPath(path))

	p.cacheMutex.RLock()
	buffer, ok := p.cache[path]
	p.cacheMutex.RUnlock()

	if !ok {
		var err error
		buffer, err = p.loadSound(path)
		if err != nil {
			return err
		}

		p.cacheMutex.Lock()
		p.cache[path] = buffer
		p.cacheMutex.Unlock()
	}

	return p.playBuffer(buffer, clampVolume(volume))
}

// Preload decodes path into the cache ahead of the first ping.
func (p *Player) Preload(path string) error {
	if path == "" {
		return nil
	}
	path = filepath.Clean(ExpandPath(path))

	buffer, err := p.loadSound(path)
	if err != nil {
		return err
	}

	p.cacheMutex.Lock()
	p.cache[path] = buffer
	p.cacheMutex.Unlock()

	p.logger.Debug("preloaded sound", "path", path)
	return nil
}

// loadSound loads and decodes a sound file into a buffer.
func (p *Player) loadSound(path string) (*beep.Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sound file: %w", err)
	}
	defer func() { _ = f.Close() }()

	format, err := detectFormat(f, path)
	if err != nil {
		return nil, err
	}

	var streamer beep.StreamSeekCloser
	var fmtInfo beep.Format

	switch format {
	case formatWAV:
		streamer, fmtInfo, err = wav.Decode(f)
	case formatOGG:
		streamer, fmtInfo, err = vorbis.Decode(f)
	case formatMP3:
		streamer, fmtInfo, err = mp3.Decode(f)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode sound: %w", err)
	}
	defer func() { _ = streamer.Close() }()

	if err := p.ensureInitialized(fmtInfo.SampleRate); err != nil {
		return nil, err
	}

	buffer := beep.NewBuffer(fmtInfo)
	buffer.Append(streamer)

	return buffer, nil
}

// ensureInitialized initializes the speaker if not already done.
func (p *Player) ensureInitialized(sampleRate beep.SampleRate) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return nil
	}

	// Use a reasonable buffer size for low latency
	bufferSize := sampleRate.N(time.Millisecond * 100)

	if err := speaker.Init(sampleRate, bufferSize); err != nil {
		return fmt.Errorf("failed to initialize speaker: %w", err)
	}

	p.sampleRate = sampleRate
	p.initialized = true
	p.logger.Debug("speaker initialized", "sample_rate", sampleRate)
	return nil
}

// playBuffer plays a buffered sound.
func (p *Player) playBuffer(buffer *beep.Buffer, volume float64) error {
	p.mu.Lock()
	sampleRate := p.sampleRate
	p.mu.Unlock()

	var streamer beep.Streamer = buffer.Streamer(0, buffer.Len())

	if buffer.Format().SampleRate != sampleRate {
		streamer = beep.Resample(4, buffer.Format().SampleRate, sampleRate, streamer)
	}

	if volume < 1.0 {
		streamer = &effects.Volume{
			Streamer: streamer,
			Base:     2,
			Volume:   volumeToExponent(volume),
			Silent:   volume == 0,
		}
	}

	speaker.Play(streamer)
	return nil
}

// InvalidateCache drops the decoded sound for path.
func (p *Player) InvalidateCache(path string) {
	p.cacheMutex.Lock()
	defer p.cacheMutex.Unlock()
	delete(p.cache, path)
}

// Close stops all playback and releases resources.
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		speaker.Close()
		p.initialized = false
	}

	p.cacheMutex.Lock()
	p.cache = make(map[string]*beep.Buffer)
	p.cacheMutex.Unlock()
	p.logger.Debug("audio player closed")
}

type soundFormat int

const (
	formatWAV soundFormat = iota
	formatOGG
	formatMP3
)

// detectFormat picks a decoder from the file extension, or from the
// file's magic bytes when it has none. r is rewound afterwards.
func detectFormat(r io.ReadSeeker, path string) (soundFormat, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav":
		return formatWAV, nil
	case ".ogg", ".oga":
		return formatOGG, nil
	case ".mp3":
		return formatMP3, nil
	case "":
	default:
		return 0, fmt.Errorf("unsupported audio format: %s", ext)
	}

	header := make([]byte, 12)
	n, err := io.ReadFull(r, header)
	if err != nil && err != io.ErrUnexpectedEOF {
		return 0, fmt.Errorf("failed to read sound header: %w", err)
	}
	header = header[:n]
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}

	switch {
	case len(header) >= 12 && bytes.Equal(header[:4], []byte("RIFF")) && bytes.Equal(header[8:12], []byte("WAVE")):
		return formatWAV, nil
	case bytes.HasPrefix(header, []byte("OggS")):
		return formatOGG, nil
	case bytes.HasPrefix(header, []byte("ID3")),
		len(header) >= 2 && header[0] == 0xFF && header[1]&0xE0 == 0xE0:
		return formatMP3, nil
	default:
		return 0, fmt.Errorf("unrecognized audio data in %s", path)
	}
}

func clampVolume(volume float64) float64 {
	return math.Max(0, math.Min(1, volume))
}

// volumeToExponent converts a linear volume (0-1) to the exponent used by
// effects.Volume with base 2.
func volumeToExponent(volume float64) float64 {
	if volume <= 0 {
		return -100 // Effectively silent
	}
	return math.Log2(volume)
}

// ExpandPath expands a leading ~ to the home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
