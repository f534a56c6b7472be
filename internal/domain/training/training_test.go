package training_test

import (
	"errors"
	"testing"

	"github.com/okian/nudge/internal/domain/csvparse"
	"github.com/okian/nudge/internal/domain/training"
	. "github.com/smartystreets/goconvey/convey"
)

const sample = `First Name,Last Name,Status,Title,Sent Date
Jane,Doe,Not Started,Ethics,2024-01-02
Sam,Lee,Completed,Ethics,2024-01-02
Jane,Doe,In Progress,Privacy,2024-01-03
Ann,Ray,completed,Privacy,2024-01-03
,,Not Started,Privacy,2024-01-03
Bob,,Overdue,Privacy,2024-01-03
`

func TestParse(t *testing.T) {
	Convey("Given a training export", t, func() {
		rows, err := training.Parse([]byte(sample), nil)

		Convey("Then stage one keeps every data row", func() {
			So(err, ShouldBeNil)
			So(rows, ShouldHaveLength, 6)
			So(rows[0].FullName, ShouldEqual, "Jane Doe")
			So(rows[5].FullName, ShouldEqual, "Bob")
			So(rows[4].FullName, ShouldEqual, "")
		})

		Convey("Then stage two keeps only named incomplete rows", func() {
			kept := training.Incomplete(rows)
			So(kept, ShouldHaveLength, 2)
			So(kept[0].Status, ShouldEqual, "Not Started")
			So(kept[1].Status, ShouldEqual, "In Progress")
			So(kept[1].Title, ShouldEqual, "Privacy")
		})
	})

	Convey("Given statuses of mixed case", t, func() {
		data := "FirstName,LastName,status,title,SentDate\n" +
			"A,One,Not Started,T,d\n" +
			"B,Two,Completed,T,d\n" +
			"C,Three,In Progress,T,d\n" +
			"D,Four,completed,T,d\n"
		rows, err := training.Parse([]byte(data), nil)

		Convey("Then exactly two rows survive the filter", func() {
			So(err, ShouldBeNil)
			So(training.Incomplete(rows), ShouldHaveLength, 2)
		})
	})

	Convey("Given equivalent data under different header spellings", t, func() {
		a := "Sent Date,User First Name,User Last Name,Status,Title\n2024-01-02,Jane,Doe,Not Started,Ethics\n"
		b := "SentDate\tFirstName\tLastName\tstatus\ttitle\n2024-01-02\tJane\tDoe\tNot Started\tEthics\n"

		rowsA, errA := training.Parse([]byte(a), nil)
		rowsB, errB := training.Parse([]byte(b), nil)

		Convey("Then both parse to the same canonical rows", func() {
			So(errA, ShouldBeNil)
			So(errB, ShouldBeNil)
			So(rowsA, ShouldResemble, rowsB)
		})
	})

	Convey("Given a file without a status column", t, func() {
		_, err := training.Parse([]byte("First Name,Last Name,Title,Sent Date\nJane,Doe,Ethics,x\n"), nil)

		Convey("Then parsing fails naming status", func() {
			var missing *csvparse.MissingColumnError
			So(errors.As(err, &missing), ShouldBeTrue)
			So(missing.Field, ShouldEqual, csvparse.Status)
		})
	})
}
