package playback

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/samber/mo"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/viper"

	"github.com/shelfplay-cli/shelfplay/book"
	"github.com/shelfplay-cli/shelfplay/engine"
	"github.com/shelfplay-cli/shelfplay/filesystem"
	"github.com/shelfplay-cli/shelfplay/key"
	"github.com/shelfplay-cli/shelfplay/progress"
	"github.com/shelfplay-cli/shelfplay/shelf"
)

func init() {
	filesystem.SetMemMapFs()

	viper.Set(key.SyncRequireOnline, false)
	viper.Set(key.SyncHeartbeatSeconds, 1)
	viper.Set(key.SyncJumpSeconds, 30)
	viper.Set(key.SyncCompletionFraction, 0.999)
	viper.Set(key.SyncResumeDriftSeconds, 5)
	viper.Set(key.SyncResetMinimumSeconds, 10)
	viper.Set(key.PlayerSpeed, 0)
}

type loadCall struct {
	target  string
	startAt float64
}

// fakeEngine satisfies engine.Engine without spawning anything.
type fakeEngine struct {
	mu      sync.Mutex
	events  chan engine.Event
	loads   []loadCall
	playing bool
	seeks   []float64
	closed  bool
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{events: make(chan engine.Event, 64)}
}

func (f *fakeEngine) Load(target string, _ map[string]string, startAt float64) (book.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		// Fresh stream on respawn, matching the Engine contract.
		f.events = make(chan engine.Event, 64)
		f.closed = false
	}
	f.loads = append(f.loads, loadCall{target: target, startAt: startAt})
	return book.UnknownDuration(), nil
}

func (f *fakeEngine) Play() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = true
	return nil
}

func (f *fakeEngine) Pause() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = false
	return nil
}

func (f *fakeEngine) Seek(seconds float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeks = append(f.seeks, seconds)
	return nil
}

func (f *fakeEngine) SetSpeed(float64) error { return nil }

func (f *fakeEngine) Position() (float64, error) { return 0, nil }

func (f *fakeEngine) Events() <-chan engine.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events
}

func (f *fakeEngine) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	return nil
}

func (f *fakeEngine) emit(event engine.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events <- event
}

func (f *fakeEngine) lastLoad() (loadCall, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.loads) == 0 {
		return loadCall{}, false
	}
	return f.loads[len(f.loads)-1], true
}

// fakeShelf scripts the media server side of a playback run.
type fakeShelf struct {
	*httptest.Server

	mu         sync.Mutex
	opens      int
	closes     int
	syncs      int
	legacy     int
	serverTime *float64 // nil means no progress record
	durations  []float64
	lastSync   map[string]any
}

func newFakeShelf(durations []float64, serverTime *float64) *fakeShelf {
	s := &fakeShelf{durations: durations, serverTime: serverTime}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

func (s *fakeShelf) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := r.URL.Path
	switch {
	case path == "/ping":
		w.WriteHeader(http.StatusOK)

	case strings.HasSuffix(path, "/play"):
		s.opens++
		tracks := make([]map[string]any, len(s.durations))
		for i, d := range s.durations {
			tracks[i] = map[string]any{
				"index":      i,
				"duration":   d,
				"mimeType":   "audio/mpeg",
				"contentUrl": fmt.Sprintf("/hls/t%d.mp3", i),
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"sessionId": "sess-1", "audioTracks": tracks})

	case strings.HasPrefix(path, "/api/items/"):
		files := make([]map[string]any, len(s.durations))
		for i, d := range s.durations {
			files[i] = map[string]any{"index": i, "duration": d, "mimeType": "audio/mpeg"}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":        strings.TrimPrefix(path, "/api/items/"),
			"mediaType": "book",
			"media": map[string]any{
				"metadata":   map[string]any{"title": "Dune", "authorName": "Frank Herbert"},
				"audioFiles": files,
			},
		})

	case strings.HasPrefix(path, "/api/me/progress/") && r.Method == http.MethodGet:
		if s.serverTime == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"currentTime": *s.serverTime})

	case strings.HasPrefix(path, "/api/me/progress/"):
		s.legacy++
		w.WriteHeader(http.StatusOK)

	case strings.HasSuffix(path, "/sync"):
		s.syncs++
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		s.lastSync = payload
		w.WriteHeader(http.StatusOK)

	case strings.HasSuffix(path, "/close"):
		s.closes++
		w.WriteHeader(http.StatusOK)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *fakeShelf) counts() (opens, closes, syncs, legacy int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens, s.closes, s.syncs, s.legacy
}

func eventually(condition func() bool) bool {
	for i := 0; i < 100; i++ {
		if condition() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return false
}

func floatPtr(v float64) *float64 { return &v }

// recordingResolver always answers with a fixed choice.
type recordingResolver struct {
	choice progress.Choice
	called bool
}

func (r *recordingResolver) Resolve(*book.Book, float64, float64) (progress.Choice, error) {
	r.called = true
	return r.choice, nil
}

func TestLocalFirstResolution(t *testing.T) {
	Convey("Given a book with downloaded tracks", t, func() {
		srv := newFakeShelf([]float64{300, 400}, nil)
		defer srv.Close()

		viper.Set(key.LibraryPath, "/books")
		dir := filepath.Join("/books", "local-1")
		fs := filesystem.API()
		So(fs.MkdirAll(dir, 0o755), ShouldBeNil)
		So(fs.WriteFile(filepath.Join(dir, "01.mp3"), []byte("x"), 0o644), ShouldBeNil)
		So(fs.WriteFile(filepath.Join(dir, "02.mp3"), []byte("x"), 0o644), ShouldBeNil)

		e := newFakeEngine()
		o := New(e, shelf.New(srv.URL, "tok"), progress.NewStore(), nil)
		Reset(func() { _ = o.Stop(context.Background()) })

		Convey("Playing it never opens a streaming session", func() {
			So(o.PlayItem(context.Background(), "local-1", ""), ShouldBeNil)

			opens, _, _, _ := srv.counts()
			So(opens, ShouldEqual, 0)

			load, ok := e.lastLoad()
			So(ok, ShouldBeTrue)
			So(load.target, ShouldEqual, filepath.Join(dir, "01.mp3"))

			Convey("And remote metadata refined the local durations", func() {
				snapshot := o.Feed().Last()
				So(snapshot, ShouldNotBeNil)
				So(snapshot.Local, ShouldBeTrue)
				So(snapshot.Tracks[0].Duration.OrZero(), ShouldEqual, 300)
				So(snapshot.Tracks[1].Duration.OrZero(), ShouldEqual, 400)
			})
		})
	})
}

func TestSessionInvariants(t *testing.T) {
	Convey("Given a remote-only book", t, func() {
		srv := newFakeShelf([]float64{300, 400}, nil)
		defer srv.Close()

		viper.Set(key.LibraryPath, "/empty")

		e := newFakeEngine()
		o := New(e, shelf.New(srv.URL, "tok"), progress.NewStore(), nil)
		ctx := context.Background()
		Reset(func() { _ = o.Stop(ctx) })

		Convey("Play opens exactly one session", func() {
			So(o.PlayItem(ctx, "remote-1", ""), ShouldBeNil)

			opens, closes, _, _ := srv.counts()
			So(opens, ShouldEqual, 1)
			So(closes, ShouldEqual, 0)

			Convey("Pausing twice closes it exactly once", func() {
				So(o.Pause(ctx), ShouldBeNil)
				So(o.Pause(ctx), ShouldBeNil)

				_, closes, _, _ := srv.counts()
				So(closes, ShouldEqual, 1)

				Convey("Resume reopens, stop closes again", func() {
					So(o.Resume(ctx), ShouldBeNil)

					opens, closes, _, _ := srv.counts()
					So(opens, ShouldEqual, 2)
					So(closes, ShouldEqual, 1)

					So(o.Stop(ctx), ShouldBeNil)

					_, closes, _, _ = srv.counts()
					So(closes, ShouldEqual, 2)
					So(o.State(), ShouldEqual, Stopped)
					So(o.Feed().Last(), ShouldBeNil)
				})
			})
		})
	})
}

func TestHeartbeatSuppressedWhilePaused(t *testing.T) {
	Convey("Given a playing book that gets paused at once", t, func() {
		srv := newFakeShelf([]float64{300, 400}, nil)
		defer srv.Close()

		viper.Set(key.LibraryPath, "/empty")

		e := newFakeEngine()
		o := New(e, shelf.New(srv.URL, "tok"), progress.NewStore(), nil)
		ctx := context.Background()
		Reset(func() { _ = o.Stop(ctx) })

		So(o.PlayItem(ctx, "remote-2", ""), ShouldBeNil)
		So(o.Pause(ctx), ShouldBeNil)

		_, _, syncsAfterPause, legacyAfterPause := srv.counts()

		Convey("No heartbeat report fires while paused", func() {
			time.Sleep(1300 * time.Millisecond)

			_, _, syncs, legacy := srv.counts()
			So(syncs, ShouldEqual, syncsAfterPause)
			So(legacy, ShouldEqual, legacyAfterPause)

			Convey("Heartbeats come back after resume", func() {
				So(o.Resume(ctx), ShouldBeNil)

				So(eventually(func() bool {
					_, _, syncs, legacy := srv.counts()
					return syncs+legacy > syncsAfterPause+legacyAfterPause
				}), ShouldBeTrue)
			})
		})
	})
}

func TestResumeAtGlobalPositionAndCompletion(t *testing.T) {
	Convey("Given a 2-track book with server progress at 350s", t, func() {
		srv := newFakeShelf([]float64{300, 400}, floatPtr(350))
		defer srv.Close()

		viper.Set(key.LibraryPath, "/empty")

		e := newFakeEngine()
		o := New(e, shelf.New(srv.URL, "tok"), progress.NewStore(), nil)
		ctx := context.Background()
		Reset(func() { _ = o.Stop(ctx) })

		Convey("Playback starts on the second track at 50s", func() {
			So(o.PlayItem(ctx, "scenario-1", ""), ShouldBeNil)

			load, ok := e.lastLoad()
			So(ok, ShouldBeTrue)
			So(load.target, ShouldEndWith, "/hls/t1.mp3")
			So(load.startAt, ShouldEqual, 50)

			Convey("Completing the last track finishes the book", func() {
				e.emit(engine.Event{Kind: engine.EventCompleted})

				So(eventually(func() bool {
					_, closes, _, _ := srv.counts()
					return closes == 1 && o.State() == Finished
				}), ShouldBeTrue)

				srv.mu.Lock()
				finished := srv.lastSync["isFinished"]
				srv.mu.Unlock()
				So(finished, ShouldEqual, true)
			})
		})
	})
}

func TestProgressResetConflict(t *testing.T) {
	Convey("Given a server record at zero and a local record at 125s", t, func() {
		viper.Set(key.LibraryPath, "/empty")

		store := progress.NewStore()
		seed := progress.NewRecord(&book.Book{ID: "conflict-1", Title: "Dune"})
		seed.GlobalSeconds = 125
		So(store.SavePosition(seed), ShouldBeNil)

		newServer := func() *fakeShelf { return newFakeShelf([]float64{300, 400}, floatPtr(0)) }
		ctx := context.Background()

		Convey("The headless default keeps the server position", func() {
			srv := newServer()
			defer srv.Close()

			e := newFakeEngine()
			o := New(e, shelf.New(srv.URL, "tok"), store, nil)
			defer func() { _ = o.Stop(ctx) }()

			So(o.PlayItem(ctx, "conflict-1", ""), ShouldBeNil)

			load, _ := e.lastLoad()
			So(load.startAt, ShouldEqual, 0)
			So(load.target, ShouldEndWith, "/hls/t0.mp3")
		})

		Convey("An explicit local choice resumes at 125s", func() {
			srv := newServer()
			defer srv.Close()

			resolver := &recordingResolver{choice: progress.UseLocal}
			e := newFakeEngine()
			o := New(e, shelf.New(srv.URL, "tok"), store, resolver)
			defer func() { _ = o.Stop(ctx) }()

			So(o.PlayItem(ctx, "conflict-1", ""), ShouldBeNil)
			So(resolver.called, ShouldBeTrue)

			load, _ := e.lastLoad()
			So(load.startAt, ShouldEqual, 125)
			So(load.target, ShouldEndWith, "/hls/t0.mp3")
		})

		Convey("Cancelling aborts playback and releases the session", func() {
			srv := newServer()
			defer srv.Close()

			e := newFakeEngine()
			o := New(e, shelf.New(srv.URL, "tok"), store, &recordingResolver{choice: progress.Cancel})

			err := o.PlayItem(ctx, "conflict-1", "")
			So(err, ShouldEqual, ErrCancelled)

			_, closes, _, _ := srv.counts()
			So(closes, ShouldEqual, 1)
			So(o.State(), ShouldEqual, Idle)
		})
	})
}

func TestPlayAgainAfterStop(t *testing.T) {
	Convey("Given a single-track book played and then stopped", t, func() {
		srv := newFakeShelf([]float64{300}, nil)
		defer srv.Close()

		viper.Set(key.LibraryPath, "/empty")

		e := newFakeEngine()
		o := New(e, shelf.New(srv.URL, "tok"), progress.NewStore(), nil)
		ctx := context.Background()
		Reset(func() { _ = o.Stop(ctx) })

		So(o.PlayItem(ctx, "replay-1", ""), ShouldBeNil)
		So(o.Stop(ctx), ShouldBeNil)

		Convey("A second play consumes engine events again", func() {
			So(o.PlayItem(ctx, "replay-1", ""), ShouldBeNil)

			e.emit(engine.Event{Kind: engine.EventCompleted})
			So(eventually(func() bool { return o.State() == Finished }), ShouldBeTrue)
		})
	})
}

func TestCompletionReportFiresOnce(t *testing.T) {
	Convey("Given a 1000s book near its completion threshold", t, func() {
		s := newSynchronizer(nil, nil, nil)
		total := mo.Some(1000.0)

		Convey("The first crossing is due with the finished flag", func() {
			s.markReported(500)

			due, finished := s.due(999.2, total)
			So(due, ShouldBeTrue)
			So(finished, ShouldBeTrue)
		})

		Convey("Ticks after a delivered finished report stay quiet", func() {
			s.markReported(999.2)

			due, _ := s.due(999.3, total)
			So(due, ShouldBeFalse)
			due, _ = s.due(999.4, total)
			So(due, ShouldBeFalse)
		})

		Convey("An undelivered crossing keeps retrying", func() {
			s.markReported(500)

			due, _ := s.due(999.2, total)
			So(due, ShouldBeTrue)
			// Delivery failed, lastReported unchanged.
			due, _ = s.due(999.3, total)
			So(due, ShouldBeTrue)
		})
	})
}

func TestResumeReportSurvivesCallerContext(t *testing.T) {
	Convey("Given a paused local book", t, func() {
		srv := newFakeShelf([]float64{300}, nil)
		defer srv.Close()

		viper.Set(key.LibraryPath, "/books")
		viper.Set(key.SyncHeartbeatSeconds, 3600)
		dir := filepath.Join("/books", "local-2")
		fs := filesystem.API()
		So(fs.MkdirAll(dir, 0o755), ShouldBeNil)
		So(fs.WriteFile(filepath.Join(dir, "01.mp3"), []byte("x"), 0o644), ShouldBeNil)

		e := newFakeEngine()
		o := New(e, shelf.New(srv.URL, "tok"), progress.NewStore(), nil)
		ctx := context.Background()
		Reset(func() {
			viper.Set(key.SyncHeartbeatSeconds, 1)
			_ = o.Stop(ctx)
		})

		So(o.PlayItem(ctx, "local-2", ""), ShouldBeNil)
		So(o.Pause(ctx), ShouldBeNil)
		_, _, _, legacyBefore := srv.counts()

		Convey("Resume with an expired context still delivers its report", func() {
			expired, cancel := context.WithCancel(context.Background())
			cancel()

			So(o.Resume(expired), ShouldBeNil)
			So(eventually(func() bool {
				_, _, _, legacy := srv.counts()
				return legacy > legacyBefore
			}), ShouldBeTrue)
		})
	})
}

func TestCurrentChapter(t *testing.T) {
	Convey("Given a snapshot with three chapters", t, func() {
		now := &NowPlaying{
			Chapters: []book.Chapter{
				{Title: "Opening", StartMs: 0},
				{Title: "Middle", StartMs: 600_000},
				{Title: "End", StartMs: 1_200_000},
			},
		}

		Convey("The chapter containing the position is returned", func() {
			So(now.CurrentChapter(0).Title, ShouldEqual, "Opening")
			So(now.CurrentChapter(650).Title, ShouldEqual, "Middle")
			So(now.CurrentChapter(5000).Title, ShouldEqual, "End")
		})

		Convey("No chapters means no answer", func() {
			empty := &NowPlaying{}
			So(empty.CurrentChapter(650), ShouldBeNil)
		})
	})
}

func TestFeedReplay(t *testing.T) {
	Convey("Given a feed with a published snapshot", t, func() {
		feed := NewFeed()
		feed.Publish(&NowPlaying{Book: book.Book{ID: "book-1"}})

		Convey("A late subscriber receives it immediately", func() {
			ch := feed.Subscribe()

			select {
			case snapshot := <-ch:
				So(snapshot, ShouldNotBeNil)
				So(snapshot.Book.ID, ShouldEqual, "book-1")
			default:
				So("no replay", ShouldBeEmpty)
			}
		})

		Convey("A nil publish reaches subscribers as a stop signal", func() {
			ch := feed.Subscribe()
			<-ch
			feed.Publish(nil)
			So(<-ch, ShouldBeNil)
		})
	})
}

func TestMergeDurations(t *testing.T) {
	Convey("mergeDurations", t, func() {
		local := []book.Track{
			{Index: 0, Path: "/a.mp3", Local: true, Duration: book.UnknownDuration()},
			{Index: 1, Path: "/b.mp3", Local: true, Duration: book.KnownDuration(99)},
		}
		remote := []book.Track{
			{Index: 0, Duration: book.KnownDuration(300)},
			{Index: 1, Duration: book.KnownDuration(400)},
		}

		merged := mergeDurations(local, remote)

		Convey("Unknown durations are filled from remote", func() {
			So(merged[0].Duration.OrZero(), ShouldEqual, 300)
		})

		Convey("Known local durations are never overwritten", func() {
			So(merged[1].Duration.OrZero(), ShouldEqual, 99)
		})

		Convey("The input slice is untouched", func() {
			So(local[0].Duration.IsKnown(), ShouldBeFalse)
		})
	})
}
