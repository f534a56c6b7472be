package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/nudge/internal/adapters/blobstore"
	"github.com/okian/nudge/internal/adapters/repository"
	service "github.com/okian/nudge/internal/app"
	"github.com/okian/nudge/internal/domain/csvparse"
	"github.com/okian/nudge/internal/domain/roster"
	"github.com/okian/nudge/internal/domain/snapshot"
	"github.com/okian/nudge/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// testClock is a settable upload clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// failingIndexStore rejects writes to the history index.
type failingIndexStore struct {
	blobstore.Store
}

func (f failingIndexStore) Put(ctx context.Context, p string, data []byte, opts ...blobstore.PutOption) (blobstore.Attrs, error) {
	if p == repository.IndexPath {
		return blobstore.Attrs{}, errors.New("index unavailable")
	}
	return f.Store.Put(ctx, p, data, opts...)
}

var (
	week10 = time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)  // 2024-Week-10
	week11 = time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC) // 2024-Week-11
)

const header = "First Name,Last Name,Status,Title,Sent Date\n"

func put(ctx context.Context, store blobstore.Store, path, body string) {
	if _, err := store.Put(ctx, path, []byte(body)); err != nil {
		panic(err)
	}
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()
		ctx := context.Background()

		Convey("When it is started", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			stats := svc.GetStats(ctx)

			Convey("Then stats should report the memory backend", func() {
				So(stats["started"], ShouldEqual, true)
				So(stats["backend"], ShouldEqual, "memory")
				So(stats["historyWeeks"], ShouldEqual, 0)
				So(stats["rosterSize"], ShouldEqual, 0)
			})

			Convey("Then stopping should mark it stopped", func() {
				svc.Stop()
				So(svc.GetStats(ctx)["started"], ShouldEqual, false)
			})
		})
	})
}

func TestService_ProcessCSVSnapshot(t *testing.T) {
	Convey("Given a service over a memory store", t, func() {
		ctx := context.Background()
		store := blobstore.NewMemoryStore()
		clock := &testClock{now: week10}
		svc := service.New(service.WithStore(store, "memory"), service.WithClock(clock.Now))

		Convey("When rows with mixed statuses are processed", func() {
			put(ctx, store, "uploads/a.csv", header+
				"Jane,Doe,Not Started,Phishing,2024-03-01\n"+
				"Jane,Doe,Completed,Passwords,2024-03-01\n"+
				"Sam,Lee,In Progress,Phishing,2024-03-01\n"+
				"Ann,Ray,completed,Phishing,2024-03-01\n")
			snap, err := svc.ProcessCSVSnapshot(ctx, "uploads/a.csv", nil)

			Convey("Then only incomplete rows should be kept", func() {
				So(err, ShouldBeNil)
				So(len(snap.ParsedRows), ShouldEqual, 2)
				for _, r := range snap.ParsedRows {
					So(r.Status, ShouldBeIn, "Not Started", "In Progress")
				}
				So(snap.WeekID, ShouldEqual, "2024-Week-10")
				So(snap.SnapshotID, ShouldEqual, "snapshots/2024-Week-10.json")
				So(snap.SourceLocation, ShouldEqual, "uploads/a.csv")
				So(snap.SnapshotURL, ShouldNotBeEmpty)
			})

			Convey("Then the history index should reference it", func() {
				entries, err := svc.ListHistoryEntries(ctx)
				So(err, ShouldBeNil)
				So(len(entries), ShouldEqual, 1)
				So(entries[0].SnapshotPath, ShouldEqual, snap.SnapshotID)
				So(entries[0].TotalIncomplete, ShouldEqual, 2)
			})
		})

		Convey("When one person has several incomplete rows", func() {
			put(ctx, store, "uploads/b.csv", header+
				"Jane,Doe,Not Started,A,2024-03-01\n"+
				"Jane,Doe,In Progress,B,2024-03-01\n"+
				"Jane,Doe,Not Started,C,2024-03-01\n"+
				"Sam,Lee,Not Started,A,2024-03-01\n")
			snap, err := svc.ProcessCSVSnapshot(ctx, "uploads/b.csv", nil)

			Convey("Then offenders should be deduplicated", func() {
				So(err, ShouldBeNil)
				So(snap.OffenderList, ShouldResemble, []string{"Jane Doe", "Sam Lee"})
				So(snap.OffenderCount, ShouldEqual, 2)
				So(snap.IncompleteSessions.Total, ShouldEqual, 4)
				So(snap.IncompleteSessions.NotStarted, ShouldEqual, 3)
				So(snap.IncompleteSessions.InProgress, ShouldEqual, 1)
			})
		})

		Convey("When two uploads fall in the same ISO week", func() {
			put(ctx, store, "uploads/1.csv", header+"Jane,Doe,Not Started,A,x\n")
			put(ctx, store, "uploads/2.csv", header+"Jane,Doe,Not Started,A,x\nSam,Lee,In Progress,A,x\n")
			first, err1 := svc.ProcessCSVSnapshot(ctx, "uploads/1.csv", nil)
			clock.Set(week10.Add(48 * time.Hour))
			second, err2 := svc.ProcessCSVSnapshot(ctx, "uploads/2.csv", nil)
			entries, _ := svc.ListHistoryEntries(ctx)

			Convey("Then the second should overwrite the first", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(second.WeekID, ShouldEqual, first.WeekID)
				So(second.SnapshotID, ShouldEqual, first.SnapshotID)
				So(len(entries), ShouldEqual, 1)
				So(entries[0].OffenderCount, ShouldEqual, 2)
				latest, err := svc.FetchLatestSnapshot(ctx)
				So(err, ShouldBeNil)
				So(latest.OffenderCount, ShouldEqual, 2)
			})
		})

		Convey("When headers use alternative spellings", func() {
			put(ctx, store, "uploads/long.csv",
				"Sent Date,User First Name,User Last Name,Status,Title\n2024-03-01,Jane,Doe,Not Started,Phishing\n")
			put(ctx, store, "uploads/short.csv",
				"SentDate,FirstName,LastName,status,title\n2024-03-01,Jane,Doe,Not Started,Phishing\n")
			a, errA := svc.ProcessCSVSnapshot(ctx, "uploads/long.csv", nil)
			b, errB := svc.ProcessCSVSnapshot(ctx, "uploads/short.csv", nil)

			Convey("Then both should resolve to the same rows", func() {
				So(errA, ShouldBeNil)
				So(errB, ShouldBeNil)
				So(a.ParsedRows, ShouldResemble, b.ParsedRows)
				So(a.ParsedRows[0].FullName, ShouldEqual, "Jane Doe")
				So(a.ParsedRows[0].SentDate, ShouldEqual, "2024-03-01")
			})
		})

		Convey("When the file is tab separated with an explicit mapping", func() {
			put(ctx, store, "uploads/tab.csv",
				"Given\tFamily\tState\tCourse\tWhen\nJane\tDoe\tIn Progress\tPhishing\t2024-03-01\n")
			snap, err := svc.ProcessCSVSnapshot(ctx, "uploads/tab.csv", csvparse.FieldMapping{
				csvparse.FirstName: "Given",
				csvparse.LastName:  "Family",
				csvparse.Status:    "State",
				csvparse.SentDate:  "When",
			})

			Convey("Then the mapping should override the aliases", func() {
				So(err, ShouldBeNil)
				So(snap.OffenderList, ShouldResemble, []string{"Jane Doe"})
				So(snap.ParsedRows[0].Title, ShouldEqual, "Phishing")
			})
		})

		Convey("When the status column is missing", func() {
			put(ctx, store, "uploads/bad.csv", "First Name,Last Name,Title,Sent Date\nJane,Doe,A,x\n")
			_, err := svc.ProcessCSVSnapshot(ctx, "uploads/bad.csv", nil)

			Convey("Then it should fail naming status and write nothing", func() {
				So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)
				var missing *csvparse.MissingColumnError
				So(errors.As(err, &missing), ShouldBeTrue)
				So(missing.Field, ShouldEqual, csvparse.Status)
				So(err.Error(), ShouldContainSubstring, "status")

				snaps, _ := store.List(ctx, snapshot.Dir)
				So(snaps, ShouldBeEmpty)
				entries, _ := svc.ListHistoryEntries(ctx)
				So(entries, ShouldBeEmpty)
			})
		})

		Convey("When the location is empty or missing", func() {
			_, errEmpty := svc.ProcessCSVSnapshot(ctx, "  ", nil)
			_, errMissing := svc.ProcessCSVSnapshot(ctx, "uploads/none.csv", nil)

			Convey("Then both should be input errors", func() {
				So(errors.Is(errEmpty, service.ErrInvalidInput), ShouldBeTrue)
				So(errors.Is(errMissing, service.ErrInvalidInput), ShouldBeTrue)
			})
		})

		Convey("When the week is derived in a configured location", func() {
			// Sunday 23:30 UTC is already Monday of the next ISO week in Tokyo.
			tokyo := time.FixedZone("JST", 9*60*60)
			clock.Set(time.Date(2024, 3, 10, 23, 30, 0, 0, time.UTC))
			local := service.New(service.WithStore(store, "memory"), service.WithClock(clock.Now), service.WithLocation(tokyo))
			put(ctx, store, "uploads/tz.csv", header+"Jane,Doe,Not Started,A,x\n")
			snap, err := local.ProcessCSVSnapshot(ctx, "uploads/tz.csv", nil)

			Convey("Then the local calendar date should decide the week", func() {
				So(err, ShouldBeNil)
				So(snap.WeekID, ShouldEqual, "2024-Week-11")
			})
		})
	})
}

func TestService_Compensation(t *testing.T) {
	Convey("Given a store whose history index cannot be written", t, func() {
		ctx := context.Background()
		mem := blobstore.NewMemoryStore()
		clock := &testClock{now: week10}
		healthy := service.New(service.WithStore(mem, "memory"), service.WithClock(clock.Now))
		broken := service.New(service.WithStore(failingIndexStore{Store: mem}, "memory"), service.WithClock(clock.Now))

		put(ctx, mem, "uploads/old.csv", header+"Jane,Doe,Not Started,A,x\n")
		put(ctx, mem, "uploads/new.csv", header+"Sam,Lee,Not Started,A,x\n")
		_, err := healthy.ProcessCSVSnapshot(ctx, "uploads/old.csv", nil)
		So(err, ShouldBeNil)

		Convey("When re-processing the same week fails at the index", func() {
			_, err := broken.ProcessCSVSnapshot(ctx, "uploads/new.csv", nil)
			snap, ferr := healthy.FetchSnapshotByWeek(ctx, "2024-Week-10")

			Convey("Then the previous snapshot should be restored", func() {
				So(err, ShouldNotBeNil)
				So(ferr, ShouldBeNil)
				So(snap, ShouldNotBeNil)
				So(snap.OffenderList, ShouldResemble, []string{"Jane Doe"})
			})
		})

		Convey("When a first-time week fails at the index", func() {
			clock.Set(week11)
			_, err := broken.ProcessCSVSnapshot(ctx, "uploads/new.csv", nil)
			snap, _ := healthy.FetchSnapshotByWeek(ctx, "2024-Week-11")
			byID, ferr := healthy.FetchSnapshot(ctx, snapshot.Path("2024-Week-11"))
			latest, _ := healthy.FetchLatestSnapshot(ctx)

			Convey("Then the orphan should be unreachable through the index", func() {
				So(err, ShouldNotBeNil)
				So(snap, ShouldBeNil)
				So(ferr, ShouldBeNil)
				So(byID, ShouldBeNil)
				So(latest.WeekID, ShouldEqual, "2024-Week-10")
			})
		})
	})
}

func TestService_Reads(t *testing.T) {
	Convey("Given two processed weeks", t, func() {
		ctx := context.Background()
		store := blobstore.NewMemoryStore()
		clock := &testClock{now: week10}
		svc := service.New(service.WithStore(store, "memory"), service.WithClock(clock.Now), service.WithFetchConcurrency(1))

		put(ctx, store, "uploads/w10.csv", header+
			"Alice,Smith,Not Started,A,2024-03-01\n"+
			"Alice,Smith,In Progress,B,2024-03-02\n")
		put(ctx, store, "uploads/w11.csv", header+
			"Alice,Smith,Not Started,C,2024-03-09\n"+
			"Bob,Jones,Not Started,A,2024-03-09\n"+
			"Bob,Jones,Not Started,B,2024-03-09\n"+
			"Bob,Jones,In Progress,C,2024-03-09\n")
		_, err := svc.ProcessCSVSnapshot(ctx, "uploads/w10.csv", nil)
		So(err, ShouldBeNil)
		clock.Set(week11)
		_, err = svc.ProcessCSVSnapshot(ctx, "uploads/w11.csv", nil)
		So(err, ShouldBeNil)

		Convey("When the leaderboard is built", func() {
			entries, err := svc.BuildLeaderboard(ctx)

			Convey("Then ties should be broken by name", func() {
				So(err, ShouldBeNil)
				So(len(entries), ShouldEqual, 2)
				So(entries[0].Name, ShouldEqual, "Alice Smith")
				So(entries[0].Count, ShouldEqual, 3)
				So(entries[1].Name, ShouldEqual, "Bob Jones")
				So(entries[1].Count, ShouldEqual, 3)
			})
		})

		Convey("When one week's snapshot is unreadable", func() {
			put(ctx, store, "snapshots/2024-Week-10.json", "{broken")
			report, err := svc.LeaderboardReport(ctx)

			Convey("Then it should be skipped, not fatal", func() {
				So(err, ShouldBeNil)
				So(report.Skipped, ShouldResemble, []string{"2024-Week-10"})
				So(report.Weeks, ShouldResemble, []string{"2024-Week-11"})
				So(report.Entries[0].Name, ShouldEqual, "Bob Jones")
			})
		})

		Convey("When snapshots are fetched", func() {
			byWeek, err1 := svc.FetchSnapshotByWeek(ctx, "2024-Week-10")
			unknown, err2 := svc.FetchSnapshotByWeek(ctx, "2023-Week-01")
			byID, err3 := svc.FetchSnapshot(ctx, "snapshots/2024-Week-11.json")
			missing, err4 := svc.FetchSnapshot(ctx, "snapshots/2020-Week-01.json")
			viaLatest, err5 := svc.FetchSnapshot(ctx, snapshot.LatestPath)

			Convey("Then known weeks load and unknown ones are nil", func() {
				So(err1, ShouldBeNil)
				So(byWeek.WeekID, ShouldEqual, "2024-Week-10")
				So(err2, ShouldBeNil)
				So(unknown, ShouldBeNil)
				So(err3, ShouldBeNil)
				So(byID.OffenderCount, ShouldEqual, 2)
				So(err4, ShouldBeNil)
				So(missing, ShouldBeNil)
				So(err5, ShouldBeNil)
				So(viaLatest.WeekID, ShouldEqual, "2024-Week-11")
			})
		})

		Convey("When an older week is re-processed", func() {
			local := service.New(service.WithStore(store, "memory"),
				service.WithClock(func() time.Time { return week10 }))
			_, err := local.ProcessCSVSnapshot(ctx, "uploads/w10.csv", nil)
			latest, lerr := svc.FetchLatestSnapshot(ctx)

			Convey("Then latest should still be the greatest week", func() {
				So(err, ShouldBeNil)
				So(lerr, ShouldBeNil)
				So(latest.WeekID, ShouldEqual, "2024-Week-11")
			})
		})

		Convey("When the roster is loaded and lists are requested", func() {
			put(ctx, store, "uploads/master.csv", "Full Name\nAlice Smith\n Carol King \nBob Jones\n\nDan Brown\nCarol King\n")
			names, err := svc.ProcessMasterCSV(ctx, "uploads/master.csv", roster.Mapping{FullName: "Full Name"})
			lists, lerr := svc.FetchCurrentLists(ctx)

			Convey("Then roulette users should exclude current offenders", func() {
				So(err, ShouldBeNil)
				So(names, ShouldResemble, []string{"Alice Smith", "Carol King", "Bob Jones", "Dan Brown"})
				So(lerr, ShouldBeNil)
				So(lists.HighRiskUsers, ShouldResemble, []string{"Alice Smith", "Bob Jones"})
				So(lists.RouletteUsers, ShouldResemble, []string{"Carol King", "Dan Brown"})
			})
		})

		Convey("When an offender profile is requested", func() {
			clock.Set(time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC))
			p, err := svc.OffenderProfile(ctx, "Alice Smith")
			_, nerr := svc.OffenderProfile(ctx, "Nobody")

			Convey("Then it should span every week", func() {
				So(err, ShouldBeNil)
				So(p.Count, ShouldEqual, 3)
				So(p.Weeks, ShouldResemble, []string{"2024-Week-10", "2024-Week-11"})
				So(p.FirstSeen, ShouldEqual, "2024-03-01")
				So(p.LastSeen, ShouldEqual, "2024-03-09")
				So(p.LastTitle, ShouldEqual, "C")
				So(len(p.Sessions), ShouldEqual, 1)
				So(p.Sessions[0].PendingDays, ShouldEqual, 5)
				So(errors.Is(nerr, repository.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestService_CurrentListsEmpty(t *testing.T) {
	Convey("Given nothing has been processed", t, func() {
		ctx := context.Background()
		svc := service.New()

		Convey("When current lists are requested", func() {
			lists, err := svc.FetchCurrentLists(ctx)
			latest, lerr := svc.FetchLatestSnapshot(ctx)
			board, berr := svc.BuildLeaderboard(ctx)

			Convey("Then everything should degrade to empty", func() {
				So(err, ShouldBeNil)
				So(lists.HighRiskUsers, ShouldBeEmpty)
				So(lists.RouletteUsers, ShouldBeEmpty)
				So(lerr, ShouldBeNil)
				So(latest, ShouldBeNil)
				So(berr, ShouldBeNil)
				So(board, ShouldBeEmpty)
			})
		})
	})
}

func TestService_Roster(t *testing.T) {
	Convey("Given a roster CSV with separate name columns", t, func() {
		ctx := context.Background()
		store := blobstore.NewMemoryStore()
		svc := service.New(service.WithStore(store, "memory"))
		put(ctx, store, "uploads/m.csv", "First Name;Last Name\nA;One\nB;Two\n")

		Convey("When the mapping is empty", func() {
			_, err := svc.ProcessMasterCSV(ctx, "uploads/m.csv", roster.Mapping{FirstName: "First Name"})

			Convey("Then it should be an input error", func() {
				So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)
				So(errors.Is(err, roster.ErrEmptyMapping), ShouldBeTrue)
			})
		})

		Convey("When the mapping names an absent column", func() {
			_, err := svc.ProcessMasterCSV(ctx, "uploads/m.csv", roster.Mapping{FullName: "Employee"})

			Convey("Then it should report the missing column", func() {
				var missing *csvparse.MissingColumnError
				So(errors.As(err, &missing), ShouldBeTrue)
				So(missing.Mapped, ShouldEqual, "Employee")
			})
		})

		Convey("When first and last name are mapped", func() {
			names, err := svc.ProcessMasterCSV(ctx, "uploads/m.csv", roster.Mapping{FirstName: "First Name", LastName: "Last Name"})

			Convey("Then full names should be joined", func() {
				So(err, ShouldBeNil)
				So(names, ShouldResemble, []string{"A One", "B Two"})
			})
		})
	})
}

func TestService_Uploads(t *testing.T) {
	Convey("Given a service", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithClock(func() time.Time { return week10 }))

		Convey("When a CSV is uploaded and processed", func() {
			f, err := svc.UploadCSV(ctx, "week.csv", []byte(header+"Jane,Doe,Not Started,A,x\n"))
			So(err, ShouldBeNil)
			snap, perr := svc.ProcessCSVSnapshot(ctx, f.Location, nil)
			files, lerr := svc.ListUploads(ctx)

			Convey("Then the upload should be listed and processable", func() {
				So(perr, ShouldBeNil)
				So(snap.SourceLocation, ShouldEqual, f.Location)
				So(lerr, ShouldBeNil)
				So(len(files), ShouldEqual, 1)
				So(files[0].Location, ShouldEqual, f.Location)
			})
		})

		Convey("When an empty file is uploaded", func() {
			_, err := svc.UploadCSV(ctx, "empty.csv", nil)

			Convey("Then it should be rejected", func() {
				So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)
			})
		})
	})
}

func TestService_ConcurrentWeeks(t *testing.T) {
	Convey("Given concurrent uploads for different weeks", t, func() {
		ctx := context.Background()
		store := blobstore.NewMemoryStore()
		times := []time.Time{week10, week11, week11.Add(7 * 24 * time.Hour), week11.Add(14 * 24 * time.Hour)}
		put(ctx, store, "uploads/c.csv", header+"Jane,Doe,Not Started,A,x\n")

		var wg sync.WaitGroup
		errs := make([]error, len(times))
		for i, at := range times {
			wg.Add(1)
			go func(i int, at time.Time) {
				defer wg.Done()
				svc := service.New(service.WithStore(store, "memory"),
					service.WithClock(func() time.Time { return at }),
					service.WithHistoryAttempts(50))
				_, errs[i] = svc.ProcessCSVSnapshot(ctx, "uploads/c.csv", nil)
			}(i, at)
		}
		wg.Wait()
		entries, err := service.New(service.WithStore(store, "memory")).ListHistoryEntries(ctx)

		Convey("Then every week should be in the index", func() {
			for _, e := range errs {
				So(e, ShouldBeNil)
			}
			So(err, ShouldBeNil)
			So(len(entries), ShouldEqual, len(times))
		})
	})
}

func TestCacheablePrefixes(t *testing.T) {
	Convey("Given configured cache prefixes", t, func() {
		got := service.CacheablePrefixes([]string{"snapshots/", " ", "history/", "hist", "master/"})

		Convey("Then prefixes covering the history index should be dropped", func() {
			So(got, ShouldResemble, []string{"snapshots/", "master/"})
		})
	})
}
