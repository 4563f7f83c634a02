package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/rs/zerolog"

	"github.com/loopscribe/loopscribe/internal/capture"
	"github.com/loopscribe/loopscribe/internal/config"
	"github.com/loopscribe/loopscribe/internal/device"
)

// fakeStream yields a scripted number of good reads and then fails
// every read, pacing each call so the capture loop runs at a test
// friendly speed.
type fakeStream struct {
	mu       sync.Mutex
	reads    int
	script   int
	chunk    int
	channels int
	rate     int
	pace     time.Duration
	errPace  time.Duration
}

func (s *fakeStream) Read() ([]int16, error) {
	s.mu.Lock()
	s.reads++
	n := s.reads
	s.mu.Unlock()

	if n > s.script {
		time.Sleep(s.errPace)
		return nil, errors.New("device unavailable")
	}
	time.Sleep(s.pace)
	buf := make([]int16, s.chunk*s.channels)
	for i := range buf {
		buf[i] = int16(n%100 + 1)
	}
	return buf, nil
}

func (s *fakeStream) Channels() int   { return s.channels }
func (s *fakeStream) SampleRate() int { return s.rate }
func (s *fakeStream) Close() error    { return nil }

func (s *fakeStream) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

type fakeOpener struct {
	mu      sync.Mutex
	streams map[string]*fakeStream
	opened  []string
}

func (o *fakeOpener) Open(desc device.Descriptor, framesPerBuffer int) (capture.Stream, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened = append(o.opened, desc.ID)
	s, ok := o.streams[desc.ID]
	if !ok {
		return nil, errors.New("no such device")
	}
	return s, nil
}

type stubEngine struct {
	text  string
	delay time.Duration
}

func (s *stubEngine) Transcribe(ctx context.Context, samples []int16, sampleRate, channels int) (string, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.text, nil
}

func (s *stubEngine) Close() error { return nil }

type eventRecorder struct {
	mu      sync.Mutex
	results []string
	status  []string
	fatal   []string
}

func (r *eventRecorder) OnResult(src capture.Source, text string, _ time.Time) {
	r.mu.Lock()
	r.results = append(r.results, fmt.Sprintf("%s:%s", src, text))
	r.mu.Unlock()
}

func (r *eventRecorder) OnStatus(src capture.Source, status string) {
	r.mu.Lock()
	r.status = append(r.status, fmt.Sprintf("%s:%s", src, status))
	r.mu.Unlock()
}

func (r *eventRecorder) OnFatalError(msg string) {
	r.mu.Lock()
	r.fatal = append(r.fatal, msg)
	r.mu.Unlock()
}

func (r *eventRecorder) resultCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

func micDescriptor(id string) device.Descriptor {
	return device.Descriptor{ID: id, DisplayName: id, MaxInputChannels: 1, DefaultSampleRate: 16000, Available: true}
}

func loopbackDescriptor(id string) device.Descriptor {
	return device.Descriptor{ID: id, DisplayName: id, MaxInputChannels: 2, DefaultSampleRate: 16000, Loopback: true, Available: true}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	for i := 0; i < 1000; i++ {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

// Two full five-second windows plus a shorter tail at stop yield
// exactly three enqueued segments for the microphone and none for the
// disabled system-audio source.
func TestSessionSegmentCounts(t *testing.T) {
	mic := &fakeStream{script: 188, chunk: 1024, channels: 1, rate: 16000, pace: time.Millisecond, errPace: 30 * time.Millisecond}
	opener := &fakeOpener{streams: map[string]*fakeStream{"usb-mic": mic}}
	rec := &eventRecorder{}

	c := NewController(Config{
		Scan:           func() []device.Descriptor { return []device.Descriptor{micDescriptor("usb-mic")} },
		Opener:         opener,
		Transcriber:    &stubEngine{text: "ok"},
		Sink:           rec,
		Logger:         zerolog.Nop(),
		ChunkSize:      1024,
		OutputDir:      t.TempDir(),
		Microphone:     config.SourceConfig{Enabled: true},
		SystemAudio:    config.SourceConfig{Enabled: false},
		JoinTimeout:    time.Second,
		DequeueTimeout: 20 * time.Millisecond,
	})

	if err := c.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if c.ID() == "" {
		t.Error("session has no id")
	}

	waitFor(t, func() bool { return c.QueueStats()[capture.Microphone][0] == 2 })
	// Let a few more frames accumulate so the stop flush has a tail.
	time.Sleep(30 * time.Millisecond)
	if err := c.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	stats := c.QueueStats()
	if got := stats[capture.Microphone][0]; got != 3 {
		t.Errorf("microphone enqueued = %d, want 3 (two windows plus the flushed tail)", got)
	}
	if got := stats[capture.Microphone][1]; got != 0 {
		t.Errorf("microphone dropped = %d, want 0", got)
	}
	if _, ok := stats[capture.SystemAudio]; ok {
		t.Error("disabled system-audio source should have no queue")
	}
}

// A stream whose reads start failing mid-session still produces a
// recording: every failed read is padded with a same-length silent
// frame, so the saved file covers the whole session.
func TestSessionSilencePaddingReachesRecording(t *testing.T) {
	mic := &fakeStream{script: 10, chunk: 1024, channels: 1, rate: 16000, pace: time.Millisecond, errPace: 5 * time.Millisecond}
	opener := &fakeOpener{streams: map[string]*fakeStream{"usb-mic": mic}}
	rec := &eventRecorder{}

	c := NewController(Config{
		Scan:           func() []device.Descriptor { return []device.Descriptor{micDescriptor("usb-mic")} },
		Opener:         opener,
		Transcriber:    &stubEngine{text: ""},
		Sink:           rec,
		Logger:         zerolog.Nop(),
		ChunkSize:      1024,
		OutputDir:      t.TempDir(),
		Microphone:     config.SourceConfig{Enabled: true},
		JoinTimeout:    time.Second,
		DequeueTimeout: 20 * time.Millisecond,
	})

	if err := c.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	waitFor(t, func() bool { return mic.readCount() >= 15 })
	if err := c.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	if rec.resultCount() != 0 {
		t.Errorf("blank transcriptions produced %d results", rec.resultCount())
	}

	saved := c.SavedFiles()
	if len(saved) != 1 || !strings.Contains(filepath.Base(saved[0]), "microphone_") {
		t.Fatalf("saved files = %v, want one microphone recording", saved)
	}

	f, err := os.Open(saved[0])
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("failed to decode recording: %v", err)
	}
	wantSamples := mic.readCount() * 1024
	if len(buf.Data) != wantSamples {
		t.Errorf("recording holds %d samples, want %d (padded reads included)", len(buf.Data), wantSamples)
	}
	if int(dec.SampleRate) != 16000 || int(dec.NumChans) != 1 {
		t.Errorf("recording format %d Hz / %d ch, want 16000 / 1", dec.SampleRate, dec.NumChans)
	}
}

// With both sources open the stop path writes a file per source plus
// the merged mix.
func TestSessionWritesPerSourceAndMergedRecordings(t *testing.T) {
	mic := &fakeStream{script: 10, chunk: 1024, channels: 1, rate: 16000, pace: time.Millisecond, errPace: 5 * time.Millisecond}
	sys := &fakeStream{script: 10, chunk: 1024, channels: 2, rate: 16000, pace: time.Millisecond, errPace: 5 * time.Millisecond}
	opener := &fakeOpener{streams: map[string]*fakeStream{"usb-mic": mic, "monitor": sys}}

	c := NewController(Config{
		Scan: func() []device.Descriptor {
			return []device.Descriptor{micDescriptor("usb-mic"), loopbackDescriptor("monitor")}
		},
		Opener:         opener,
		Transcriber:    &stubEngine{text: ""},
		Sink:           NopSink{},
		Logger:         zerolog.Nop(),
		ChunkSize:      1024,
		OutputDir:      t.TempDir(),
		Microphone:     config.SourceConfig{Enabled: true},
		SystemAudio:    config.SourceConfig{Enabled: true},
		JoinTimeout:    time.Second,
		DequeueTimeout: 20 * time.Millisecond,
	})

	if err := c.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	waitFor(t, func() bool { return mic.readCount() >= 12 && sys.readCount() >= 12 })
	if err := c.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	saved := c.SavedFiles()
	if len(saved) != 3 {
		t.Fatalf("saved %d files, want 3: %v", len(saved), saved)
	}
	for _, want := range []string{"microphone_", "system_audio_", "merged_"} {
		found := false
		for _, p := range saved {
			if strings.HasPrefix(filepath.Base(p), want) {
				found = true
			}
		}
		if !found {
			t.Errorf("no %s* recording in %v", want, saved)
		}
	}
}

// A transcriber slower than the segment rate fills the bounded queue;
// further segments are dropped while capture keeps running.
func TestSessionDropsSegmentsWhenQueueFull(t *testing.T) {
	mic := &fakeStream{script: 4000, chunk: 1024, channels: 1, rate: 16000, pace: time.Millisecond, errPace: 30 * time.Millisecond}
	opener := &fakeOpener{streams: map[string]*fakeStream{"usb-mic": mic}}

	c := NewController(Config{
		Scan:           func() []device.Descriptor { return []device.Descriptor{micDescriptor("usb-mic")} },
		Opener:         opener,
		Transcriber:    &stubEngine{text: "slow", delay: 200 * time.Millisecond},
		Sink:           NopSink{},
		Logger:         zerolog.Nop(),
		Window:         200 * time.Millisecond,
		ChunkSize:      1024,
		QueueDepth:     5,
		OutputDir:      t.TempDir(),
		Microphone:     config.SourceConfig{Enabled: true},
		JoinTimeout:    50 * time.Millisecond,
		DequeueTimeout: 20 * time.Millisecond,
	})

	if err := c.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	waitFor(t, func() bool { return c.QueueStats()[capture.Microphone][1] >= 1 })

	if !c.Running() {
		t.Error("capture should keep running while segments drop")
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	stats := c.QueueStats()
	if stats[capture.Microphone][1] < 1 {
		t.Errorf("dropped = %d, want at least 1", stats[capture.Microphone][1])
	}
}

func TestSessionFatalWhenNoDeviceUsable(t *testing.T) {
	rec := &eventRecorder{}
	c := NewController(Config{
		Scan:        func() []device.Descriptor { return nil },
		Opener:      &fakeOpener{},
		Transcriber: &stubEngine{},
		Sink:        rec,
		Logger:      zerolog.Nop(),
		OutputDir:   t.TempDir(),
		Microphone:  config.SourceConfig{Enabled: true},
		SystemAudio: config.SourceConfig{Enabled: true},
	})

	if err := c.Start(); !errors.Is(err, capture.ErrNoUsableSource) {
		t.Fatalf("err = %v, want ErrNoUsableSource", err)
	}
	if len(rec.fatal) != 1 {
		t.Fatalf("fatal events = %v, want one", rec.fatal)
	}
	if c.Running() {
		t.Error("controller should stay stopped")
	}
}

func TestSessionDeviceOverride(t *testing.T) {
	first := &fakeStream{script: 5, chunk: 1024, channels: 1, rate: 16000, pace: time.Millisecond, errPace: 5 * time.Millisecond}
	second := &fakeStream{script: 5, chunk: 1024, channels: 1, rate: 16000, pace: time.Millisecond, errPace: 5 * time.Millisecond}
	opener := &fakeOpener{streams: map[string]*fakeStream{"mic-a": first, "mic-b": second}}

	c := NewController(Config{
		Scan: func() []device.Descriptor {
			return []device.Descriptor{micDescriptor("mic-a"), micDescriptor("mic-b")}
		},
		Opener:         opener,
		Transcriber:    &stubEngine{},
		Sink:           NopSink{},
		Logger:         zerolog.Nop(),
		ChunkSize:      1024,
		OutputDir:      t.TempDir(),
		Microphone:     config.SourceConfig{Enabled: true, DeviceID: "mic-b"},
		JoinTimeout:    time.Second,
		DequeueTimeout: 20 * time.Millisecond,
	})

	if err := c.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer c.Stop()

	opener.mu.Lock()
	opened := append([]string(nil), opener.opened...)
	opener.mu.Unlock()
	if len(opened) != 1 || opened[0] != "mic-b" {
		t.Fatalf("opened %v, want only the overridden mic-b", opened)
	}
}

func TestSessionStopIsIdempotent(t *testing.T) {
	c := NewController(Config{
		Scan:        func() []device.Descriptor { return nil },
		Opener:      &fakeOpener{},
		Transcriber: &stubEngine{},
		Logger:      zerolog.Nop(),
		OutputDir:   t.TempDir(),
	})
	if err := c.Stop(); err != nil {
		t.Fatalf("stop of a never-started controller: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestSessionStartWhileRunning(t *testing.T) {
	mic := &fakeStream{script: 1000, chunk: 1024, channels: 1, rate: 16000, pace: time.Millisecond, errPace: 5 * time.Millisecond}
	opener := &fakeOpener{streams: map[string]*fakeStream{"usb-mic": mic}}

	c := NewController(Config{
		Scan:           func() []device.Descriptor { return []device.Descriptor{micDescriptor("usb-mic")} },
		Opener:         opener,
		Transcriber:    &stubEngine{},
		Sink:           NopSink{},
		Logger:         zerolog.Nop(),
		ChunkSize:      1024,
		OutputDir:      t.TempDir(),
		Microphone:     config.SourceConfig{Enabled: true},
		JoinTimeout:    time.Second,
		DequeueTimeout: 20 * time.Millisecond,
	})

	if err := c.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer c.Stop()

	if err := c.Start(); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("second start err = %v, want ErrSessionActive", err)
	}
}
