package engine

import (
	"crypto/rand"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shelfplay-cli/shelfplay/book"
	"github.com/shelfplay-cli/shelfplay/constant"
	"github.com/shelfplay-cli/shelfplay/log"
)

const (
	socketWaitRetries = 10
	socketWaitDelay   = 300 * time.Millisecond
	eventBufferSize   = 64
)

// MPV implements Engine on top of mpv's JSON-IPC protocol, running mpv as a
// headless audio process.
type MPV struct {
	title string

	socketPath string
	cmd        *exec.Cmd
	exited     chan struct{}
	listener   *listener
	mu         sync.Mutex // protects socket writes

	stateMu    sync.Mutex // guards events, eventsDone, closed
	events     chan Event
	eventsDone bool
	closed     bool
}

// NewMPV creates an idle engine. Nothing starts until the first Load.
func NewMPV(title string) *MPV {
	return &MPV{
		title:  sanitizeTitle(title),
		events: make(chan Event, eventBufferSize),
	}
}

// Events returns the stream of the current mpv process. The stream closes
// when that process exits; a Load that respawns mpv starts a fresh stream.
func (m *MPV) Events() <-chan Event {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.events
}

// Load points mpv at the given target. The first call spawns the process;
// later calls replace the playing file over IPC.
func (m *MPV) Load(target string, headers map[string]string, startAt float64) (book.Duration, error) {
	safeTarget, err := sanitizeMediaTarget(target)
	if err != nil {
		return book.UnknownDuration(), fmt.Errorf("invalid media target: %w", err)
	}
	if startAt < 0 {
		startAt = 0
	}

	if !m.running() {
		if err = m.spawn(safeTarget, headers, startAt); err != nil {
			return book.UnknownDuration(), err
		}
	} else {
		options := fmt.Sprintf("start=%f", startAt)
		if _, err = m.sendCommand([]interface{}{"loadfile", safeTarget, "replace", options}); err != nil {
			return book.UnknownDuration(), fmt.Errorf("load: %w", err)
		}
	}

	// The length is often not decoded yet. A later property change event
	// carries the refinement.
	if seconds, err := m.getFloatProperty("duration"); err == nil {
		return book.DurationFromSeconds(seconds), nil
	}
	return book.UnknownDuration(), nil
}

// resetStream rearms the engine for a new process: a fresh event stream when
// the previous one ended, and a rearmed close guard.
func (m *MPV) resetStream() chan Event {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	if m.eventsDone {
		m.events = make(chan Event, eventBufferSize)
		m.eventsDone = false
	}
	m.closed = false
	return m.events
}

// spawn starts the mpv process and waits for its IPC socket.
func (m *MPV) spawn(target string, headers map[string]string, startAt float64) error {
	events := m.resetStream()

	if m.socketPath == "" {
		randomBytes := make([]byte, 4)
		if _, err := rand.Read(randomBytes); err != nil {
			return fmt.Errorf("generate socket name: %w", err)
		}
		m.socketPath = filepath.Join(os.TempDir(), fmt.Sprintf("%s-%x.sock", constant.Shelfplay, randomBytes))
	}

	// Audio only. Everything else respects the user's mpv.conf.
	args := []string{
		"--no-terminal",
		"--really-quiet",
		"--no-video",
		"--force-window=no",
		"--idle=yes",
		fmt.Sprintf("--input-ipc-server=%s", m.socketPath),
		fmt.Sprintf("--force-media-title=%s", m.title),
		fmt.Sprintf("--start=%f", startAt),
	}

	if headerString := buildHeaderString(headers); headerString != "" {
		args = append(args, fmt.Sprintf("--http-header-fields=%s", headerString))
	}

	args = append(args, target)

	m.cmd = exec.Command("mpv", args...)
	m.cmd.SysProcAttr = sysProcAttr()
	m.cmd.Stdout = nil
	m.cmd.Stderr = nil
	m.cmd.Stdin = nil

	if err := m.cmd.Start(); err != nil {
		return fmt.Errorf("start mpv: %w", err)
	}

	// Reap the process so it never lingers as a zombie.
	m.exited = make(chan struct{})
	go func() {
		_ = m.cmd.Wait()
		close(m.exited)
	}()

	if err := m.waitForSocket(); err != nil {
		select {
		case <-m.exited:
		default:
			log.Warnf("killing mpv: socket never became ready")
			_ = m.cmd.Process.Kill()
		}
		return fmt.Errorf("mpv socket not ready: %w", err)
	}

	m.listener = newListener(m.socketPath, m.dispatch)
	if err := m.listener.start(); err != nil {
		return fmt.Errorf("event listener: %w", err)
	}

	go m.watchExit(events, m.exited)
	return nil
}

// watchExit forwards process death into the event stream and ends it. Each
// spawn watches its own stream, so a respawn never closes the new one.
func (m *MPV) watchExit(events chan Event, exited chan struct{}) {
	<-exited
	if m.listener != nil {
		m.listener.stop()
	}
	m.emit(Event{Kind: EventExited})

	m.stateMu.Lock()
	if m.events == events {
		m.eventsDone = true
	}
	m.stateMu.Unlock()
	close(events)
}

// dispatch translates raw mpv property changes into engine events.
func (m *MPV) dispatch(property string, data interface{}) {
	switch property {
	case "time-pos":
		if seconds, ok := data.(float64); ok {
			m.emit(Event{Kind: EventPosition, Position: seconds})
		}
	case "pause":
		if paused, ok := data.(bool); ok {
			m.emit(Event{Kind: EventPlaying, Playing: !paused})
		}
	case "duration":
		if seconds, ok := data.(float64); ok && seconds > 0 {
			m.emit(Event{Kind: EventDuration, Duration: book.KnownDuration(seconds)})
		}
	case "eof-reached":
		if reached, ok := data.(bool); ok && reached {
			m.emit(Event{Kind: EventCompleted})
		}
	}
}

// emit never blocks. A consumer that stalls loses ticks, not control.
func (m *MPV) emit(event Event) {
	m.stateMu.Lock()
	events := m.events
	m.stateMu.Unlock()

	defer func() {
		// Late property changes can race the channel close on shutdown.
		_ = recover()
	}()

	select {
	case events <- event:
	default:
	}
}

// waitForSocket polls until the mpv IPC socket accepts connections.
func (m *MPV) waitForSocket() error {
	for i := 0; i < socketWaitRetries; i++ {
		time.Sleep(socketWaitDelay)

		select {
		case <-m.exited:
			return fmt.Errorf("mpv exited before socket was ready")
		default:
		}

		conn, err := net.Dial("unix", m.socketPath)
		if err == nil {
			conn.Close()
			return nil
		}
	}
	return fmt.Errorf("socket %s not ready after %d attempts", m.socketPath, socketWaitRetries)
}

func (m *MPV) Play() error {
	return m.setProperty("pause", false)
}

func (m *MPV) Pause() error {
	return m.setProperty("pause", true)
}

// Seek moves playback to an absolute position within the current track.
func (m *MPV) Seek(seconds float64) error {
	_, err := m.sendCommand([]interface{}{"seek", seconds, "absolute"})
	return err
}

func (m *MPV) SetSpeed(speed float64) error {
	if speed <= 0 {
		return fmt.Errorf("speed must be positive, got %f", speed)
	}
	return m.setProperty("speed", speed)
}

// Position retrieves the current playback position in seconds.
func (m *MPV) Position() (float64, error) {
	return m.getFloatProperty("time-pos")
}

// running reports whether the mpv process is alive and responding.
func (m *MPV) running() bool {
	if m.socketPath == "" || m.cmd == nil {
		return false
	}

	select {
	case <-m.exited:
		return false
	default:
	}

	_, err := m.sendCommand([]interface{}{"get_property", "pid"})
	return err == nil
}

// Close shuts the current mpv process down and cleans up its socket.
// Idempotent per process: spawn rearms it, so a respawned mpv can be quit
// again.
func (m *MPV) Close() error {
	m.stateMu.Lock()
	if m.closed {
		m.stateMu.Unlock()
		return nil
	}
	m.closed = true
	m.stateMu.Unlock()

	if m.listener != nil {
		m.listener.stop()
	}

	if m.socketPath == "" {
		return nil
	}

	// Graceful quit first, force kill after a grace period.
	_, _ = m.sendCommand([]interface{}{"quit"})

	if m.exited != nil {
		select {
		case <-m.exited:
		case <-time.After(3 * time.Second):
			_ = killProcess(m.cmd)
		}
	}

	_ = os.Remove(m.socketPath)
	return nil
}

func (m *MPV) setProperty(property string, value interface{}) error {
	_, err := m.sendCommand([]interface{}{"set_property", property, value})
	return err
}

// getFloatProperty retrieves a float64 mpv property via IPC.
func (m *MPV) getFloatProperty(name string) (float64, error) {
	data, err := m.sendCommand([]interface{}{"get_property", name})
	if err != nil {
		return 0, err
	}

	if data == nil {
		return 0, fmt.Errorf("property %s: nil response", name)
	}

	val, ok := data.(float64)
	if !ok {
		return 0, fmt.Errorf("property %s: expected float64, got %T", name, data)
	}

	return val, nil
}

// buildHeaderString flattens HTTP headers into mpv's comma separated format.
func buildHeaderString(headers map[string]string) string {
	if len(headers) == 0 {
		return ""
	}

	var builder strings.Builder
	for k, v := range headers {
		if builder.Len() > 0 {
			builder.WriteString(",")
		}
		val := strings.ReplaceAll(v, ",", "%2C")
		builder.WriteString(fmt.Sprintf("%s: %s", k, val))
	}
	return builder.String()
}

// sanitizeMediaTarget validates that a target is safe to hand to mpv.
// Prevents flag injection through crafted track URLs.
func sanitizeMediaTarget(target string) (string, error) {
	t := strings.TrimSpace(target)
	if t == "" {
		return "", fmt.Errorf("empty target")
	}

	if strings.ContainsAny(t, "\x00\n\r") {
		return "", fmt.Errorf("invalid control characters in target")
	}

	if strings.HasPrefix(t, "-") {
		return "", fmt.Errorf("target must not start with '-' (looks like a flag)")
	}

	if strings.Contains(t, "://") {
		u, err := url.Parse(t)
		if err != nil {
			return "", fmt.Errorf("invalid URL: %w", err)
		}
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
			return t, nil
		default:
			return "", fmt.Errorf("unsupported URL scheme: %s", u.Scheme)
		}
	}

	// Treat as local file path
	return filepath.Clean(t), nil
}

// sanitizeTitle strips characters that confuse mpv's argument handling.
func sanitizeTitle(title string) string {
	t := strings.ReplaceAll(title, "\n", " ")
	t = strings.ReplaceAll(t, "\r", " ")
	t = strings.ReplaceAll(t, "\t", " ")
	t = strings.ReplaceAll(t, "\x00", "")
	return strings.TrimSpace(t)
}
