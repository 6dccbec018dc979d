package progress

import (
	"testing"

	"github.com/samber/mo"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/viper"

	"github.com/shelfplay-cli/shelfplay/book"
	"github.com/shelfplay-cli/shelfplay/filesystem"
	"github.com/shelfplay-cli/shelfplay/key"
)

func init() {
	filesystem.SetMemMapFs()
}

func TestStore(t *testing.T) {
	Convey("Given a book", t, func() {
		store := NewStore()
		b := &book.Book{ID: "book-1", Title: "Dune", Author: "Frank Herbert"}

		Convey("When saving a position", func() {
			record := NewRecord(b)
			record.TrackIndex = 1
			record.OffsetSeconds = 50
			record.GlobalSeconds = 350
			record.TotalSeconds = 700

			err := store.SavePosition(record)

			Convey("Then it can be read back", func() {
				So(err, ShouldBeNil)

				got, err := store.Position("book-1")
				So(err, ShouldBeNil)
				So(got, ShouldNotBeNil)
				So(got.Title, ShouldEqual, "Dune")
				So(got.GlobalSeconds, ShouldEqual, 350)
				So(got.Total().OrZero(), ShouldEqual, 700)
			})

			Convey("Then it becomes the last played book", func() {
				So(err, ShouldBeNil)

				last, err := store.LastPlayed()
				So(err, ShouldBeNil)
				So(last, ShouldEqual, "book-1")
			})

			Convey("And removing it leaves no record", func() {
				So(store.Remove("book-1"), ShouldBeNil)

				got, err := store.Position("book-1")
				So(err, ShouldBeNil)
				So(got, ShouldBeNil)
			})
		})

		Convey("When no position was ever saved", func() {
			got, err := store.Position("unknown")
			So(err, ShouldBeNil)
			So(got, ShouldBeNil)
		})

		Convey("When caching chapters", func() {
			chapters := []book.Chapter{
				{Title: "Chapter 1", StartMs: 0},
				{Title: "Chapter 2", StartMs: 300000},
			}
			So(store.SaveChapters("book-1", chapters), ShouldBeNil)

			Convey("Then they survive a fresh store", func() {
				got, err := NewStore().Chapters("book-1")
				So(err, ShouldBeNil)
				So(got, ShouldResemble, chapters)
			})
		})
	})
}

func TestResetDetected(t *testing.T) {
	Convey("Given the default reset minimum", t, func() {
		viper.Set(key.SyncResetMinimumSeconds, 10)

		Convey("A missing server record past the minimum is a reset", func() {
			So(ResetDetected(mo.None[float64](), 120), ShouldBeTrue)
		})

		Convey("A zero server record past the minimum is a reset", func() {
			So(ResetDetected(mo.Some(0.0), 120), ShouldBeTrue)
		})

		Convey("A real server position is never a reset", func() {
			So(ResetDetected(mo.Some(90.0), 120), ShouldBeFalse)
		})

		Convey("Barely started local progress is never a reset", func() {
			So(ResetDetected(mo.None[float64](), 5), ShouldBeFalse)
		})
	})
}
