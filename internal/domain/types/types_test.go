package types_test

import (
	"encoding/json"
	"testing"

	types "github.com/okian/lanscore/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestEntry(t *testing.T) {
	Convey("Given an Entry struct", t, func() {
		entry := types.Entry{Rank: 1, UserID: 42, Points: 150}

		Convey("When encoding it as JSON", func() {
			data, err := json.Marshal(entry)

			Convey("Then it should use snake_case keys", func() {
				So(err, ShouldBeNil)
				So(string(data), ShouldEqual, `{"rank":1,"user_id":42,"points":150}`)
			})
		})

		Convey("When creating an entry with zero values", func() {
			zero := types.Entry{}

			Convey("Then it should have default values", func() {
				So(zero.Rank, ShouldEqual, 0)
				So(zero.UserID, ShouldEqual, 0)
				So(zero.Points, ShouldEqual, 0)
			})
		})
	})
}
