package library

import (
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/viper"

	"github.com/shelfplay-cli/shelfplay/filesystem"
	"github.com/shelfplay-cli/shelfplay/key"
)

func init() {
	filesystem.SetMemMapFs()
}

func TestTracks(t *testing.T) {
	Convey("Given a downloaded book", t, func() {
		viper.Set(key.LibraryPath, "/library")
		dir := filepath.Join("/library", "book-1")

		fs := filesystem.API()
		So(fs.MkdirAll(dir, 0o755), ShouldBeNil)
		for _, name := range []string{"02 - part two.mp3", "01 - part one.mp3", "cover.jpg"} {
			So(fs.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644), ShouldBeNil)
		}

		Convey("Tracks are listed in filename order, audio only", func() {
			tracks := Tracks("book-1")

			So(tracks, ShouldHaveLength, 2)
			So(tracks[0].Index, ShouldEqual, 0)
			So(tracks[0].Path, ShouldEqual, filepath.Join(dir, "01 - part one.mp3"))
			So(tracks[0].Local, ShouldBeTrue)
			So(tracks[0].Duration.IsKnown(), ShouldBeFalse)
			So(tracks[1].Path, ShouldEqual, filepath.Join(dir, "02 - part two.mp3"))
		})

		Convey("Has reflects presence", func() {
			So(Has("book-1"), ShouldBeTrue)
			So(Has("never-downloaded"), ShouldBeFalse)
		})

		Convey("Extension matching ignores case", func() {
			So(fs.WriteFile(filepath.Join(dir, "03 - PART THREE.MP3"), []byte("x"), 0o644), ShouldBeNil)

			tracks := Tracks("book-1")
			So(tracks, ShouldHaveLength, 3)
			So(tracks[2].Path, ShouldEqual, filepath.Join(dir, "03 - PART THREE.MP3"))
			So(tracks[2].Local, ShouldBeTrue)
		})
	})

	Convey("Given no library at all", t, func() {
		viper.Set(key.LibraryPath, "/nowhere")

		Convey("Tracks is empty, not an error", func() {
			So(Tracks("book-1"), ShouldHaveLength, 0)
		})
	})
}
