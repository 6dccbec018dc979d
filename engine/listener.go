package engine

import (
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/shelfplay-cli/shelfplay/log"
)

// propertyCallback receives a property name and its new value.
type propertyCallback func(property string, data interface{})

// listener holds a persistent IPC connection and turns mpv's
// observe_property notifications into callbacks.
type listener struct {
	socketPath string
	conn       net.Conn
	callback   propertyCallback
	stopCh     chan struct{}
	mu         sync.Mutex
	listening  bool
}

func newListener(socketPath string, callback propertyCallback) *listener {
	return &listener{
		socketPath: socketPath,
		callback:   callback,
		stopCh:     make(chan struct{}),
	}
}

// start registers the property observers and begins the read loop.
func (l *listener) start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.listening {
		return nil
	}

	properties := []struct {
		id   int
		name string
	}{
		{1, "time-pos"},
		{2, "pause"},
		{3, "duration"},
		{4, "eof-reached"},
	}

	for _, prop := range properties {
		_, err := doSendCommand(l.socketPath, []interface{}{"observe_property", prop.id, prop.name})
		if err != nil {
			return fmt.Errorf("observe %s: %w", prop.name, err)
		}
	}

	conn, err := net.Dial("unix", l.socketPath)
	if err != nil {
		return fmt.Errorf("event listener connect: %w", err)
	}
	l.conn = conn
	l.listening = true

	go l.readLoop()

	log.Debugf("mpv event listener started on %s", l.socketPath)
	return nil
}

func (l *listener) stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.listening {
		return
	}

	close(l.stopCh)
	if l.conn != nil {
		l.conn.Close()
	}
	l.listening = false
}

// readLoop continuously reads newline-delimited JSON events from mpv.
func (l *listener) readLoop() {
	defer func() {
		l.mu.Lock()
		l.listening = false
		l.mu.Unlock()
	}()

	buf := make([]byte, 4096)
	var remainder []byte

	for {
		select {
		case <-l.stopCh:
			return
		default:
		}

		if err := l.conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
			return
		}

		n, err := l.conn.Read(buf)
		if err != nil {
			if strings.Contains(err.Error(), "timeout") || strings.Contains(err.Error(), "deadline") {
				continue
			}
			log.Warnf("event listener read error: %v", err)
			return
		}

		data := append(remainder, buf[:n]...)
		remainder = nil

		lines := strings.Split(string(data), "\n")
		for i, line := range lines {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			// An incomplete trailing line carries over to the next read.
			if i == len(lines)-1 && !strings.HasSuffix(string(data), "\n") {
				remainder = []byte(line)
				continue
			}

			l.processEvent(line)
		}
	}
}

// processEvent parses and dispatches a single mpv event line.
func (l *listener) processEvent(line string) {
	var event map[string]interface{}
	if err := json.Unmarshal([]byte(line), &event); err != nil {
		return
	}

	eventType, ok := event["event"].(string)
	if !ok || eventType != "property-change" {
		return
	}

	name, _ := event["name"].(string)
	if name != "" && l.callback != nil {
		l.callback(name, event["data"])
	}
}
