package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/meltforce/tempo/internal/models"
)

// Pump renders c in real time and streams interleaved little-endian float32
// stereo PCM to w, one chunk per tick, until ctx is done or c is closed.
func Pump(ctx context.Context, c *SoftContext, w io.Writer, chunk time.Duration) error {
	if chunk <= 0 {
		chunk = 50 * time.Millisecond
	}
	frames := int(chunk.Seconds() * float64(c.SampleRate()))
	buf := make([]float32, 2*frames)

	t := time.NewTicker(chunk)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		n, err := c.Render(buf)
		if err == ErrClosed {
			return nil
		}
		if err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, buf[:2*n]); err != nil {
			return fmt.Errorf("writing pcm: %w", err)
		}
	}
}

// RenderWAV plays schedule offline through an Engine on a SoftContext and
// encodes the result as 16-bit stereo WAV.
func RenderWAV(ctx context.Context, w io.WriteSeeker, schedule models.AudioSchedule, total float64, sampleRate int, volume float64) error {
	sc := NewSoftContext(sampleRate)
	eng := NewEngine(func() (Context, error) { return sc, nil }, Options{PollInterval: -1})
	eng.SetVolume(volume)
	if err := eng.Start(ctx, schedule, total); err != nil {
		return err
	}
	defer eng.Stop()

	sr := sc.SampleRate()
	enc := wav.NewEncoder(w, sr, 16, 2, 1)
	fbuf := make([]float32, 2*sr)
	ibuf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: sr},
		SourceBitDepth: 16,
	}

	for eng.Playing() {
		if err := ctx.Err(); err != nil {
			return err
		}
		left := eng.Total() - eng.Elapsed()
		frames := min(sr, int(math.Ceil(left*float64(sr))))
		if frames <= 0 {
			eng.Tick()
			break
		}
		n, err := sc.Render(fbuf[:2*frames])
		if err != nil {
			return fmt.Errorf("rendering: %w", err)
		}
		ibuf.Data = ibuf.Data[:0]
		for _, s := range fbuf[:2*n] {
			ibuf.Data = append(ibuf.Data, int(math.Round(float64(clamp(s))*math.MaxInt16)))
		}
		if err := enc.Write(ibuf); err != nil {
			return fmt.Errorf("encoding wav: %w", err)
		}
		eng.Tick()
	}
	return enc.Close()
}

func clamp(s float32) float32 {
	return min(max(s, -1), 1)
}
