package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/spf13/viper"

	"github.com/shelfplay-cli/shelfplay/book"
	"github.com/shelfplay-cli/shelfplay/engine"
	"github.com/shelfplay-cli/shelfplay/key"
	"github.com/shelfplay-cli/shelfplay/log"
	"github.com/shelfplay-cli/shelfplay/progress"
	"github.com/shelfplay-cli/shelfplay/shelf"
	"github.com/shelfplay-cli/shelfplay/timeline"
	"github.com/shelfplay-cli/shelfplay/util"
)

// ErrCancelled is returned by PlayItem when the user backs out of a resume
// conflict instead of picking a position.
var ErrCancelled = errors.New("playback cancelled")

// Orchestrator sequences track resolution, session lifecycle, the audio
// engine and progress reporting. It is the only writer of the active snapshot
// and the session id; engine events, timer ticks and facade calls all
// serialize through its mutex.
type Orchestrator struct {
	engine    engine.Engine
	client    *shelf.Client
	store     *progress.Store
	conflicts progress.Resolver

	feed    *Feed
	session *sessionHandle
	sync    *synchronizer

	mu     sync.Mutex
	now    *NowPlaying
	state  State
	offset float64
	loopCh <-chan engine.Event
}

// New wires an orchestrator from its collaborators. A nil conflict resolver
// falls back to the headless server-wins policy.
func New(e engine.Engine, client *shelf.Client, store *progress.Store, conflicts progress.Resolver) *Orchestrator {
	if conflicts == nil {
		conflicts = progress.ServerWins{}
	}

	session := newSessionHandle(client)

	return &Orchestrator{
		engine:    e,
		client:    client,
		store:     store,
		conflicts: conflicts,
		feed:      NewFeed(),
		session:   session,
		sync:      newSynchronizer(store, client, session),
		state:     Idle,
	}
}

// Feed returns the NowPlaying stream. Subscribers get the latest snapshot on
// arrival; nil means playback stopped.
func (o *Orchestrator) Feed() *Feed {
	return o.feed
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// PlayItem starts playback of a book, resuming at the reconciled position.
func (o *Orchestrator) PlayItem(ctx context.Context, bookID, episodeID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.now != nil {
		o.mu.Unlock()
		_ = o.Stop(ctx)
		o.mu.Lock()
	}

	o.state = Loading

	if viper.GetBool(key.SyncRequireOnline) && !o.client.Online(ctx) {
		o.state = Idle
		return fmt.Errorf("server unreachable and sync before play is required")
	}

	b, chapters, err := o.fetchMetadata(ctx, bookID)
	if err != nil {
		o.state = Idle
		return err
	}
	b.EpisodeID = episodeID

	res, err := o.resolveTracks(ctx, bookID, episodeID)
	if err != nil {
		o.state = Idle
		return err
	}
	tracks := res.tracks
	if len(tracks) == 0 {
		o.state = Idle
		return fmt.Errorf("no playable source for %s", bookID)
	}

	chapters = o.resolveChapters(bookID, chapters, tracks)

	global, err := o.resumePosition(ctx, b)
	if err != nil {
		o.session.close(ctx)
		o.state = Idle
		return err
	}

	position := timeline.Locate(tracks, global)
	track := tracks[position.TrackIndex]

	known, err := o.engine.Load(track.Locator(), o.streamHeaders(res.local), position.Offset)
	if err != nil {
		o.session.close(ctx)
		o.state = Idle
		return fmt.Errorf("load %s: %w", track.Locator(), err)
	}
	tracks = book.WithDuration(tracks, position.TrackIndex, known)

	o.now = &NowPlaying{
		Book:         *b,
		Tracks:       tracks,
		Chapters:     chapters,
		CurrentTrack: position.TrackIndex,
		Local:        res.local,
	}
	o.offset = position.Offset
	o.state = Playing
	o.publishLocked()

	if speed := viper.GetFloat64(key.PlayerSpeed); speed > 0 && speed != 1 {
		if err = o.engine.SetSpeed(speed); err != nil {
			log.Warnf("set speed: %v", err)
		}
	}

	// The engine hands out a fresh event stream after a respawn. Each stream
	// gets exactly one consumer; a loop draining a closed stream exits on
	// its own.
	if events := o.engine.Events(); events != o.loopCh {
		o.loopCh = events
		go o.loop(events)
	}

	o.sync.reset()
	o.sync.startHeartbeat(o.heartbeatReport)

	return o.engine.Play()
}

// Continue resumes the most recently played book, the warm start path.
func (o *Orchestrator) Continue(ctx context.Context) error {
	last, err := o.store.LastPlayed()
	if err != nil || last == "" {
		return fmt.Errorf("nothing to continue")
	}
	return o.PlayItem(ctx, last, "")
}

// Pause suspends playback, reports the paused position and eagerly closes
// the streaming session. Streaming sessions are expensive server-side.
func (o *Orchestrator) Pause(ctx context.Context) error {
	o.mu.Lock()
	if o.now == nil {
		o.mu.Unlock()
		return fmt.Errorf("nothing is playing")
	}

	o.sync.stopHeartbeat()
	err := o.engine.Pause()
	o.state = Paused
	snap, ok := o.snapshotLocked(false, true)
	o.publishLocked()
	o.mu.Unlock()

	if ok {
		o.sync.report(ctx, snap)
	}
	o.session.close(ctx)
	return err
}

// Resume continues after a pause, reconciling against the server position
// and reopening a streaming session when the tracks are remote.
func (o *Orchestrator) Resume(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.now == nil {
		return fmt.Errorf("nothing to resume")
	}

	if viper.GetBool(key.SyncRequireOnline) && !o.client.Online(ctx) {
		return fmt.Errorf("server unreachable and sync before play is required")
	}

	global := timeline.Global(o.now.Tracks, o.now.CurrentTrack, o.offset).OrElse(0)

	// Another device may have moved the book along while we were paused.
	if server, err := o.client.Progress(ctx, o.now.Book.ID); err == nil {
		if serverSeconds, ok := server.CurrentTime.Get(); ok {
			drift := serverSeconds - global
			if drift < 0 {
				drift = -drift
			}
			if drift > viper.GetFloat64(key.SyncResumeDriftSeconds) {
				global = serverSeconds
			}
		}
	}

	reopened := false
	if !o.now.Local && !o.session.active() {
		tracks, err := o.session.open(ctx, o.now.Book.ID, o.now.Book.EpisodeID)
		if err != nil {
			return fmt.Errorf("reopen session: %w", err)
		}
		// Durations may differ on the fresh track list. The preserved
		// global position is re-mapped rather than carried by index.
		o.now.Tracks = tracks
		reopened = true
	}

	position := timeline.Locate(o.now.Tracks, global)
	if reopened || position.TrackIndex != o.now.CurrentTrack {
		if err := o.loadTrackLocked(position.TrackIndex, position.Offset); err != nil {
			return err
		}
	} else if position.Offset != o.offset {
		if err := o.engine.Seek(position.Offset); err != nil {
			return err
		}
		o.offset = position.Offset
	}

	o.state = Playing
	o.publishLocked()
	o.sync.startHeartbeat(o.heartbeatReport)

	if err := o.engine.Play(); err != nil {
		return err
	}

	// The caller's context may end right after Resume returns; the report
	// runs detached like the other asynchronous report sites.
	if snap, ok := o.snapshotLocked(false, false); ok {
		go o.sync.report(context.Background(), snap)
	}
	return nil
}

// Seek moves within the current track. A scrub in progress suppresses the
// immediate report; the caller reports once at gesture end.
func (o *Orchestrator) Seek(ctx context.Context, seconds float64, scrub bool) error {
	o.mu.Lock()
	if o.now == nil {
		o.mu.Unlock()
		return fmt.Errorf("nothing is playing")
	}

	if known, ok := o.now.Tracks[o.now.CurrentTrack].Duration.Seconds(); ok {
		seconds = util.Clamp(seconds, 0, known)
	} else {
		seconds = util.Max(seconds, 0)
	}

	if err := o.engine.Seek(seconds); err != nil {
		o.mu.Unlock()
		return err
	}
	o.offset = seconds

	snap, ok := o.snapshotLocked(false, o.state == Paused)
	o.mu.Unlock()

	if ok && !scrub {
		o.sync.report(ctx, snap)
	}
	return nil
}

// SeekGlobal moves to a position on the book timeline, switching tracks when
// the target falls outside the current one.
func (o *Orchestrator) SeekGlobal(ctx context.Context, global float64, scrub bool) error {
	o.mu.Lock()
	if o.now == nil {
		o.mu.Unlock()
		return fmt.Errorf("nothing is playing")
	}

	if total, ok := timeline.Total(o.now.Tracks).Get(); ok {
		global = util.Clamp(global, 0, total)
	} else {
		global = util.Max(global, 0)
	}

	position := timeline.Locate(o.now.Tracks, global)

	var err error
	if position.TrackIndex != o.now.CurrentTrack {
		err = o.loadTrackLocked(position.TrackIndex, position.Offset)
	} else {
		if err = o.engine.Seek(position.Offset); err == nil {
			o.offset = position.Offset
		}
	}
	if err != nil {
		o.mu.Unlock()
		return err
	}

	o.publishLocked()
	snap, ok := o.snapshotLocked(false, o.state == Paused)
	o.mu.Unlock()

	if ok && !scrub {
		o.sync.report(ctx, snap)
	}
	return nil
}

// NextTrack jumps to the start of the following track.
func (o *Orchestrator) NextTrack(ctx context.Context) error {
	return o.skipTrack(ctx, 1)
}

// PrevTrack jumps to the start of the preceding track.
func (o *Orchestrator) PrevTrack(ctx context.Context) error {
	return o.skipTrack(ctx, -1)
}

func (o *Orchestrator) skipTrack(ctx context.Context, delta int) error {
	o.mu.Lock()
	if o.now == nil {
		o.mu.Unlock()
		return fmt.Errorf("nothing is playing")
	}

	target := o.now.CurrentTrack + delta
	if target < 0 || target >= len(o.now.Tracks) {
		o.mu.Unlock()
		return fmt.Errorf("no track %d", target+1)
	}

	if err := o.loadTrackLocked(target, 0); err != nil {
		o.mu.Unlock()
		return err
	}

	o.publishLocked()
	snap, ok := o.snapshotLocked(false, o.state == Paused)
	o.mu.Unlock()

	if ok {
		o.sync.report(ctx, snap)
	}
	return nil
}

// SetSpeed adjusts the playback rate.
func (o *Orchestrator) SetSpeed(speed float64) error {
	return o.engine.SetSpeed(speed)
}

// Stop ends playback for good: final report with finished set, snapshot
// cleared, session and engine released.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if o.now == nil {
		o.mu.Unlock()
		return nil
	}

	o.sync.stopHeartbeat()
	snap, ok := o.snapshotLocked(true, false)
	o.now = nil
	o.state = Stopped
	o.feed.Publish(nil)
	o.mu.Unlock()

	if ok {
		o.sync.report(ctx, snap)
	}
	o.session.close(ctx)
	return o.engine.Close()
}

// loop is the single consumer of one engine event stream. Every reaction
// takes the orchestrator mutex, so engine callbacks never race the facade
// methods. When the stream ends the loop unregisters itself; the next
// PlayItem starts a consumer for the engine's fresh stream.
func (o *Orchestrator) loop(events <-chan engine.Event) {
	for event := range events {
		switch event.Kind {
		case engine.EventPosition:
			o.onPosition(event.Position)
		case engine.EventPlaying:
			o.onPlaying(event.Playing)
		case engine.EventDuration:
			o.onDuration(event.Duration)
		case engine.EventCompleted:
			o.onTrackCompleted()
		case engine.EventExited:
			o.onExited()
		}
	}

	o.mu.Lock()
	if o.loopCh == events {
		o.loopCh = nil
	}
	o.mu.Unlock()
}

// onPosition records a tick and fires an immediate report when the position
// jumped or the completion threshold was crossed.
func (o *Orchestrator) onPosition(seconds float64) {
	o.mu.Lock()
	if o.now == nil || o.state != Playing {
		o.mu.Unlock()
		return
	}
	o.offset = seconds

	global, ok := timeline.Global(o.now.Tracks, o.now.CurrentTrack, o.offset).Get()
	if !ok {
		o.mu.Unlock()
		return
	}

	total := timeline.Total(o.now.Tracks)
	due, finished := o.sync.due(global, total)
	if !due {
		o.mu.Unlock()
		return
	}

	snap, ok := o.snapshotLocked(finished, false)
	o.mu.Unlock()

	if ok {
		o.sync.report(context.Background(), snap)
	}
}

func (o *Orchestrator) onPlaying(playing bool) {
	o.mu.Lock()
	if o.now == nil {
		o.mu.Unlock()
		return
	}

	switch {
	case playing && o.state == Paused:
		o.state = Playing
		o.sync.startHeartbeat(o.heartbeatReport)
	case !playing && o.state == Playing:
		o.state = Paused
		o.sync.stopHeartbeat()
	default:
		o.mu.Unlock()
		return
	}

	o.publishLocked()
	o.mu.Unlock()
}

// onDuration refines the current track's length once the engine decoded it.
func (o *Orchestrator) onDuration(d book.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.now == nil || !d.IsKnown() {
		return
	}
	if o.now.Tracks[o.now.CurrentTrack].Duration.IsKnown() {
		return
	}

	o.now.Tracks = book.WithDuration(o.now.Tracks, o.now.CurrentTrack, d)
	o.publishLocked()
}

// onTrackCompleted advances to the next track, or derives book completion
// when the finished track was the last one.
func (o *Orchestrator) onTrackCompleted() {
	o.mu.Lock()
	if o.now == nil {
		o.mu.Unlock()
		return
	}

	next := o.now.CurrentTrack + 1
	if next < len(o.now.Tracks) {
		o.state = TrackTransition
		o.publishLocked()

		if err := o.loadTrackLocked(next, 0); err != nil {
			log.Errorf("advance to track %d: %v", next+1, err)
			o.mu.Unlock()
			return
		}

		o.state = Playing
		o.publishLocked()
		snap, ok := o.snapshotLocked(false, false)
		o.mu.Unlock()

		if ok {
			o.sync.report(context.Background(), snap)
		}
		_ = o.engine.Play()
		return
	}

	o.sync.stopHeartbeat()
	o.state = Finished
	snap, ok := o.snapshotLocked(true, false)
	o.publishLocked()
	o.mu.Unlock()

	if ok {
		o.sync.report(context.Background(), snap)
	}
	o.session.close(context.Background())
}

// onExited handles the engine process dying underneath us, user-initiated or
// not. The position survives through the paused report.
func (o *Orchestrator) onExited() {
	o.mu.Lock()
	if o.now == nil {
		o.mu.Unlock()
		return
	}

	o.sync.stopHeartbeat()
	snap, ok := o.snapshotLocked(false, true)
	o.now = nil
	o.state = Stopped
	o.feed.Publish(nil)
	o.mu.Unlock()

	if ok {
		o.sync.report(context.Background(), snap)
	}
	o.session.close(context.Background())
}

// loadTrackLocked points the engine at another track of the active book and
// refines its duration from the engine's first report.
func (o *Orchestrator) loadTrackLocked(index int, offset float64) error {
	track := o.now.Tracks[index]

	known, err := o.engine.Load(track.Locator(), o.streamHeaders(o.now.Local), offset)
	if err != nil {
		return fmt.Errorf("load %s: %w", track.Locator(), err)
	}

	o.now.Tracks = book.WithDuration(o.now.Tracks, index, known)
	o.now.CurrentTrack = index
	o.offset = offset
	return nil
}

// fetchMetadata loads the book description, degrading to the local progress
// cache when the server is unreachable. Only track resolution decides whether
// playback is possible at all.
func (o *Orchestrator) fetchMetadata(ctx context.Context, bookID string) (*book.Book, []book.Chapter, error) {
	item, err := o.client.Item(ctx, bookID)
	if err == nil {
		if !item.IsAudio() {
			return nil, nil, fmt.Errorf("%s is not an audiobook (media type %q)", bookID, item.MediaType)
		}
		return &item.Book, item.Chapters, nil
	}

	log.Warnf("metadata fetch for %s failed, using cached details: %v", bookID, err)

	b := &book.Book{ID: bookID}
	if record, cacheErr := o.store.Position(bookID); cacheErr == nil && record != nil {
		b.Title = record.Title
		b.Author = record.Author
	}
	return b, nil, nil
}

// resolveChapters prefers fresh server chapters, then the offline cache, then
// synthesized track boundaries.
func (o *Orchestrator) resolveChapters(bookID string, fromServer []book.Chapter, tracks []book.Track) []book.Chapter {
	if len(fromServer) > 0 {
		book.SortChapters(fromServer)
		if err := o.store.SaveChapters(bookID, fromServer); err != nil {
			log.Warnf("chapter cache write failed: %v", err)
		}
		return fromServer
	}

	if cached, err := o.store.Chapters(bookID); err == nil && len(cached) > 0 {
		return cached
	}

	return book.SynthesizeChapters(tracks)
}

// resumePosition reconciles the server position against the local cache,
// escalating an apparent progress reset to the conflict resolver.
func (o *Orchestrator) resumePosition(ctx context.Context, b *book.Book) (float64, error) {
	var local float64
	if record, err := o.store.Position(b.ID); err == nil && record != nil {
		local = record.GlobalSeconds
	}

	server, err := o.client.Progress(ctx, b.ID)
	if err != nil {
		log.Debugf("server progress for %s unavailable: %v", b.ID, err)
		return local, nil
	}

	if progress.ResetDetected(server.CurrentTime, local) {
		choice, resolveErr := o.conflicts.Resolve(b, server.CurrentTime.OrElse(0), local)
		if resolveErr != nil {
			log.Warnf("conflict resolution failed, keeping server position: %v", resolveErr)
			choice = progress.UseServer
		}

		switch choice {
		case progress.UseLocal:
			return local, nil
		case progress.Cancel:
			return 0, ErrCancelled
		default:
			return server.CurrentTime.OrElse(0), nil
		}
	}

	if serverSeconds, ok := server.CurrentTime.Get(); ok {
		return serverSeconds, nil
	}
	return local, nil
}

func (o *Orchestrator) heartbeatReport() {
	o.mu.Lock()
	if o.now == nil || o.state != Playing {
		o.mu.Unlock()
		return
	}
	snap, ok := o.snapshotLocked(false, false)
	o.mu.Unlock()

	if ok {
		o.sync.report(context.Background(), snap)
	}
}

// snapshotLocked produces the progress report for the current position,
// absent when the global position cannot be computed reliably.
func (o *Orchestrator) snapshotLocked(finished, paused bool) (snapshot, bool) {
	if o.now == nil {
		return snapshot{}, false
	}

	global, ok := timeline.Global(o.now.Tracks, o.now.CurrentTrack, o.offset).Get()
	if !ok {
		return snapshot{}, false
	}

	return snapshot{
		book:       o.now.Book,
		trackIndex: o.now.CurrentTrack,
		offset:     o.offset,
		global:     global,
		total:      timeline.Total(o.now.Tracks),
		finished:   finished,
		paused:     paused,
	}, true
}

// publishLocked hands subscribers a fresh copy so the live snapshot is never
// shared.
func (o *Orchestrator) publishLocked() {
	if o.now == nil {
		o.feed.Publish(nil)
		return
	}

	snap := *o.now
	snap.State = o.state
	snap.Tracks = append([]book.Track(nil), o.now.Tracks...)
	snap.Chapters = append([]book.Chapter(nil), o.now.Chapters...)
	o.feed.Publish(&snap)
}

func (o *Orchestrator) streamHeaders(local bool) map[string]string {
	if local {
		return nil
	}
	return o.client.AuthHeaders()
}
