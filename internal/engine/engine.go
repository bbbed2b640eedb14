// Package engine plays audio streams through beep. It implements the
// player.Handle contract: fetch the stream, decode it, report status
// ticks, and survive being torn down at any moment.
package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"

	"github.com/gulldan/subsonic-player-sub000/internal/errmsg"
	"github.com/gulldan/subsonic-player-sub000/internal/player"
)

const (
	sampleRate   beep.SampleRate = 44100
	statusPeriod                 = 200 * time.Millisecond
	fetchTimeout                 = 2 * time.Minute
)

var (
	speakerOnce sync.Once
	speakerErr  error
)

func initSpeaker() error {
	speakerOnce.Do(func() {
		speakerErr = speaker.Init(sampleRate, sampleRate.N(time.Second/10))
	})
	return speakerErr
}

// Factory returns a player.Factory backed by beep and the shared
// speaker. Construction blocks on the HTTP fetch and decoder setup.
func Factory() player.Factory {
	return newHandle
}

type handle struct {
	onStatus func(player.Status)

	mu        sync.Mutex
	ctrl      *beep.Ctrl
	streamer  beep.StreamSeekCloser
	format    beep.Format
	file      *os.File
	path      string
	finished  bool
	destroyed bool
	done      chan struct{}
}

var _ player.Handle = (*handle)(nil)

func newHandle(ctx context.Context, url string, opts player.HandleOptions) (player.Handle, error) {
	f, contentType, err := fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	streamer, format, err := decode(f, contentType)
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("%s: %w", errmsg.OpDecodeStream, err)
	}

	if err := initSpeaker(); err != nil {
		streamer.Close()
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("init speaker: %w", err)
	}

	paused := opts.ShouldPlay != nil && !opts.ShouldPlay()
	h := &handle{
		onStatus: opts.OnStatus,
		streamer: streamer,
		format:   format,
		file:     f,
		path:     f.Name(),
		done:     make(chan struct{}),
	}
	h.ctrl = &beep.Ctrl{Streamer: streamer, Paused: paused}

	h.arm()
	go h.run()
	return h, nil
}

// fetch downloads the stream to a temp file so the decoder can seek.
// Server rejections are classified for the error taxonomy.
func fetch(ctx context.Context, url string) (*os.File, string, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", errmsg.OpFetchStream, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", errmsg.OpFetchStream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("%s: http %d", errmsg.OpFetchStream, resp.StatusCode)
		switch resp.StatusCode {
		case http.StatusTooManyRequests:
			return nil, "", errmsg.WithKind(errmsg.KindRateLimit, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return nil, "", errmsg.WithKind(errmsg.KindAuth, err)
		default:
			return nil, "", err
		}
	}

	f, err := os.CreateTemp("", "sub000-stream-*")
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", errmsg.OpFetchStream, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, "", fmt.Errorf("%s: %w", errmsg.OpFetchStream, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, "", fmt.Errorf("%s: %w", errmsg.OpFetchStream, err)
	}
	return f, resp.Header.Get("Content-Type"), nil
}

var flacMagic = []byte("fLaC")

// isFLAC sniffs the container from the Content-Type header and the
// stream magic. Anything that is not recognizably FLAC goes to the mp3
// decoder, which matches what Subsonic servers transcode to by default.
func isFLAC(contentType string, magic []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "flac") {
		return true
	}
	return bytes.HasPrefix(magic, flacMagic)
}

func decode(f *os.File, contentType string) (beep.StreamSeekCloser, beep.Format, error) {
	magic := make([]byte, 4)
	n, _ := io.ReadFull(f, magic)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, beep.Format{}, err
	}

	if isFLAC(contentType, magic[:n]) {
		return flac.Decode(f)
	}
	return mp3.Decode(f)
}

// arm enqueues the stream on the speaker, resampling if the track's
// rate differs from the speaker's.
func (h *handle) arm() {
	var src beep.Streamer = h.ctrl
	if h.format.SampleRate != sampleRate {
		src = beep.Resample(4, h.format.SampleRate, sampleRate, h.ctrl)
	}
	speaker.Play(beep.Seq(src, beep.Callback(func() {
		// Runs inside the speaker loop; hand off before touching locks.
		go h.finish()
	})))
}

func (h *handle) finish() {
	h.mu.Lock()
	if h.destroyed || h.finished {
		h.mu.Unlock()
		return
	}
	h.finished = true
	st := h.statusLocked()
	st.Finished = true
	cb := h.onStatus
	h.mu.Unlock()

	if cb != nil {
		cb(st)
	}
}

// run emits periodic status ticks until the handle is destroyed.
func (h *handle) run() {
	ticker := time.NewTicker(statusPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.mu.Lock()
			if h.destroyed {
				h.mu.Unlock()
				return
			}
			st := h.statusLocked()
			cb := h.onStatus
			h.mu.Unlock()
			if cb != nil {
				cb(st)
			}
		}
	}
}

func (h *handle) statusLocked() player.Status {
	speaker.Lock()
	pos := h.format.SampleRate.D(h.streamer.Position())
	dur := h.format.SampleRate.D(h.streamer.Len())
	playing := !h.ctrl.Paused && !h.finished
	speaker.Unlock()
	return player.Status{Position: pos, Duration: dur, Playing: playing}
}

func (h *handle) Play() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyed {
		return
	}
	if h.finished {
		// The sequence already drained; rewind and re-enqueue it.
		speaker.Lock()
		_ = h.streamer.Seek(0)
		speaker.Unlock()
		h.finished = false
		h.arm()
	}
	speaker.Lock()
	h.ctrl.Paused = false
	speaker.Unlock()
}

func (h *handle) Pause() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyed {
		return
	}
	speaker.Lock()
	h.ctrl.Paused = true
	speaker.Unlock()
}

func (h *handle) SeekTo(pos time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyed {
		return
	}

	speaker.Lock()
	sample := h.format.SampleRate.N(pos)
	if sample < 0 {
		sample = 0
	}
	if last := h.streamer.Len() - 1; sample > last {
		sample = last
	}
	_ = h.streamer.Seek(sample)
	speaker.Unlock()

	if h.finished {
		h.finished = false
		h.arm()
	}
}

func (h *handle) Destroy() {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return
	}
	h.destroyed = true
	close(h.done)

	// Detach only this handle's stream. The Ctrl reports drained once
	// its streamer is nil, so the mixer drops the sequence on the next
	// pull; audio queued by any other handle is untouched.
	speaker.Lock()
	h.ctrl.Streamer = nil
	speaker.Unlock()

	h.streamer.Close()
	h.file.Close()
	path := h.path
	h.mu.Unlock()

	os.Remove(path)
}

func (h *handle) Position() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyed {
		return 0
	}
	speaker.Lock()
	defer speaker.Unlock()
	return h.format.SampleRate.D(h.streamer.Position())
}

func (h *handle) Duration() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyed {
		return 0
	}
	speaker.Lock()
	defer speaker.Unlock()
	return h.format.SampleRate.D(h.streamer.Len())
}

func (h *handle) IsPlaying() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyed {
		return false
	}
	speaker.Lock()
	defer speaker.Unlock()
	return !h.ctrl.Paused && !h.finished
}
