package timeline

import (
	"testing"

	"github.com/shelfplay-cli/shelfplay/book"
	. "github.com/smartystreets/goconvey/convey"
)

func knownTracks(durations ...float64) []book.Track {
	tracks := make([]book.Track, len(durations))
	for i, d := range durations {
		tracks[i] = book.Track{Index: i, Duration: book.KnownDuration(d)}
	}
	return tracks
}

func TestLocate(t *testing.T) {
	Convey("Locate", t, func() {
		tracks := knownTracks(300, 400)

		Convey("Maps a global offset into the right track", func() {
			pos := Locate(tracks, 350)
			So(pos.TrackIndex, ShouldEqual, 1)
			So(pos.Offset, ShouldEqual, 50)
		})

		Convey("Start of book lands in track 0", func() {
			pos := Locate(tracks, 0)
			So(pos.TrackIndex, ShouldEqual, 0)
			So(pos.Offset, ShouldEqual, 0)
		})

		Convey("Negative offsets clamp to the start", func() {
			pos := Locate(tracks, -10)
			So(pos.TrackIndex, ShouldEqual, 0)
			So(pos.Offset, ShouldEqual, 0)
		})

		Convey("Targets beyond the end clamp to the last track's end", func() {
			pos := Locate(tracks, 10000)
			So(pos.TrackIndex, ShouldEqual, 1)
			So(pos.Offset, ShouldEqual, 400)
		})

		Convey("An unknown duration absorbs all remaining time", func() {
			tracks := []book.Track{
				{Index: 0, Duration: book.KnownDuration(100)},
				{Index: 1, Duration: book.UnknownDuration()},
				{Index: 2, Duration: book.KnownDuration(100)},
			}
			pos := Locate(tracks, 5000)
			So(pos.TrackIndex, ShouldEqual, 1)
			So(pos.Offset, ShouldEqual, 4900)
		})

		Convey("Empty track list yields the zero position", func() {
			So(Locate(nil, 42), ShouldResemble, Position{})
		})
	})
}

func TestGlobal(t *testing.T) {
	Convey("Global", t, func() {
		tracks := knownTracks(300, 400)

		Convey("Sums preceding durations plus the in-track offset", func() {
			g := Global(tracks, 1, 50)
			So(g.IsPresent(), ShouldBeTrue)
			So(g.MustGet(), ShouldEqual, 350)
		})

		Convey("Unknown preceding duration yields None", func() {
			tracks := []book.Track{
				{Index: 0, Duration: book.UnknownDuration()},
				{Index: 1, Duration: book.KnownDuration(400)},
			}
			So(Global(tracks, 1, 50).IsAbsent(), ShouldBeTrue)
		})

		Convey("Out-of-range track index yields None", func() {
			So(Global(tracks, 5, 0).IsAbsent(), ShouldBeTrue)
			So(Global(tracks, -1, 0).IsAbsent(), ShouldBeTrue)
		})
	})
}

func TestRoundTrip(t *testing.T) {
	Convey("Locate then Global round-trips for fully known books", t, func() {
		tracks := knownTracks(120, 1, 3600, 42.5)

		for _, g := range []float64{0, 1, 119.9, 120, 121, 3721, 3763.4} {
			pos := Locate(tracks, g)
			back := Global(tracks, pos.TrackIndex, pos.Offset)
			So(back.IsPresent(), ShouldBeTrue)
			So(back.MustGet(), ShouldAlmostEqual, g, 1e-9)
		}
	})
}

func TestTotal(t *testing.T) {
	Convey("Total", t, func() {
		Convey("Sums fully known durations", func() {
			total := Total(knownTracks(300, 400))
			So(total.IsPresent(), ShouldBeTrue)
			So(total.MustGet(), ShouldEqual, 700)
		})

		Convey("A single unknown duration poisons the total", func() {
			tracks := []book.Track{
				{Index: 0, Duration: book.KnownDuration(300)},
				{Index: 1, Duration: book.UnknownDuration()},
			}
			So(Total(tracks).IsAbsent(), ShouldBeTrue)
		})

		Convey("Empty track list has no total", func() {
			So(Total(nil).IsAbsent(), ShouldBeTrue)
		})
	})
}
