package engine

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSanitizeMediaTarget(t *testing.T) {
	Convey("sanitizeMediaTarget", t, func() {
		Convey("Accepts http and https URLs", func() {
			for _, target := range []string{
				"http://shelf.local/hls/book-1/t0.mp3",
				"https://shelf.local/hls/book-1/t0.mp3?token=abc",
			} {
				got, err := sanitizeMediaTarget(target)
				So(err, ShouldBeNil)
				So(got, ShouldEqual, target)
			}
		})

		Convey("Cleans local paths", func() {
			got, err := sanitizeMediaTarget("/library/book-1/../book-1/01.mp3")
			So(err, ShouldBeNil)
			So(got, ShouldEqual, "/library/book-1/01.mp3")
		})

		Convey("Rejects flag lookalikes", func() {
			_, err := sanitizeMediaTarget("--script=evil.lua")
			So(err, ShouldNotBeNil)
		})

		Convey("Rejects control characters and odd schemes", func() {
			_, err := sanitizeMediaTarget("file\n.mp3")
			So(err, ShouldNotBeNil)

			_, err = sanitizeMediaTarget("ftp://host/file.mp3")
			So(err, ShouldNotBeNil)
		})

		Convey("Rejects the empty target", func() {
			_, err := sanitizeMediaTarget("   ")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestBuildHeaderString(t *testing.T) {
	Convey("buildHeaderString", t, func() {
		Convey("Empty input yields an empty string", func() {
			So(buildHeaderString(nil), ShouldEqual, "")
		})

		Convey("Values lose their commas", func() {
			got := buildHeaderString(map[string]string{"Authorization": "Bearer a,b"})
			So(got, ShouldEqual, "Authorization: Bearer a%2Cb")
		})
	})
}

func TestDispatch(t *testing.T) {
	Convey("Given an idle engine", t, func() {
		m := NewMPV("Dune")

		Convey("Property changes become typed events", func() {
			m.dispatch("time-pos", 42.5)
			m.dispatch("pause", true)
			m.dispatch("duration", 300.0)
			m.dispatch("eof-reached", true)

			event := <-m.Events()
			So(event.Kind, ShouldEqual, EventPosition)
			So(event.Position, ShouldEqual, 42.5)

			event = <-m.Events()
			So(event.Kind, ShouldEqual, EventPlaying)
			So(event.Playing, ShouldBeFalse)

			event = <-m.Events()
			So(event.Kind, ShouldEqual, EventDuration)
			So(event.Duration.OrZero(), ShouldEqual, 300)

			event = <-m.Events()
			So(event.Kind, ShouldEqual, EventCompleted)
		})

		Convey("Unparseable payloads are dropped", func() {
			m.dispatch("time-pos", "not a number")
			m.dispatch("eof-reached", false)

			So(m.Events(), ShouldHaveLength, 0)
		})
	})
}

func TestEventStreamPerProcess(t *testing.T) {
	Convey("Given an engine whose process exited", t, func() {
		m := NewMPV("Dune")
		stream := m.resetStream()

		exited := make(chan struct{})
		close(exited)
		m.watchExit(stream, exited)

		Convey("The ended stream carries a final exit event and closes", func() {
			event, open := <-stream
			So(open, ShouldBeTrue)
			So(event.Kind, ShouldEqual, EventExited)

			_, open = <-stream
			So(open, ShouldBeFalse)
		})

		Convey("The next spawn hands out a fresh open stream", func() {
			So(m.Close(), ShouldBeNil)

			fresh := m.resetStream()
			So(fresh, ShouldNotEqual, stream)

			m.emit(Event{Kind: EventPosition, Position: 7})
			event := <-m.Events()
			So(event.Position, ShouldEqual, 7)

			Convey("And the close guard is rearmed", func() {
				So(m.Close(), ShouldBeNil)
				So(m.closed, ShouldBeTrue)
			})
		})
	})
}
