// Package tracker runs the enrollment polling loop. One worker goroutine
// per tracked term repeatedly searches the catalog and polls seat counts,
// appending each observation to a per-term CSV log. When any worker exits,
// the whole cohort is drained and a fresh session is negotiated before the
// next round.
package tracker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ucsd-tools/webreg-scraper/internal/logger"
	"github.com/ucsd-tools/webreg-scraper/internal/state"
	"github.com/ucsd-tools/webreg-scraper/internal/webreg"
)

// maxConsecutiveFailures is how many back-to-back failed or empty polls a
// worker tolerates before assuming the session died.
const maxConsecutiveFailures = 12

// queryDelay is the pause between catalog search requests.
const queryDelay = time.Second

// Tracker drives the polling loop against shared process state.
type Tracker struct {
	state    *state.State
	log      *logger.Logger
	dataDir  string
	recovery RecoveryParams
}

// New creates a tracker writing CSV logs under dataDir.
func New(st *state.State, log *logger.Logger, dataDir string) *Tracker {
	return &Tracker{
		state:    st,
		log:      log.WithModule("tracker"),
		dataDir:  dataDir,
		recovery: DefaultRecoveryParams(),
	}
}

// SetRecoveryParams overrides the session recovery tuning. Test seam.
func (t *Tracker) SetRecoveryParams(p RecoveryParams) {
	t.recovery = p
}

// Run executes the tracking loop until the global stop flag is raised or
// session recovery gives up. It blocks; run it in its own goroutine.
func (t *Tracker) Run(ctx context.Context) {
	if !t.tryLogin(ctx) {
		t.log.Error("initial login failed, tracker not starting")
		return
	}

	for {
		t.state.SetRunning(true)
		t.log.Info("tracking cycle started")

		var loopStop atomic.Bool
		firstDone := make(chan struct{}, len(t.state.Terms))
		var wg sync.WaitGroup
		for _, info := range t.state.Terms {
			wg.Add(1)
			go func(info *state.TermInfo) {
				defer wg.Done()
				t.trackTerm(ctx, info, &loopStop)
				firstDone <- struct{}{}
			}(info)
		}

		// The first worker to exit signals a dead session (or shutdown);
		// raise the cohort stop flag and drain the rest.
		<-firstDone
		loopStop.Store(true)
		wg.Wait()

		t.state.SetRunning(false)

		if t.state.ShouldStop() {
			break
		}

		t.log.Info("session lost, attempting recovery")
		if !t.tryLogin(ctx) {
			t.log.Error("session recovery failed, tracker exiting")
			break
		}
	}

	t.log.Info("tracker stopped")
}

// trackTerm polls one term until the session dies or a stop flag is raised.
func (t *Tracker) trackTerm(ctx context.Context, info *state.TermInfo, loopStop *atomic.Bool) {
	log := t.log.WithTerm(info.Term)

	var csvLog *enrollmentLog
	if info.SaveData {
		var err error
		csvLog, err = openEnrollmentLog(t.dataDir, info.Term, time.Now())
		if err != nil {
			log.WithError(err).Error("cannot open enrollment log")
			return
		}
		defer func() {
			if err := csvLog.Close(); err != nil {
				log.WithError(err).Error("cannot close enrollment log")
			}
		}()
	}

	cooldown := time.Duration(info.Cooldown * float64(time.Second))
	failCount := 0

cycle:
	for {
		if csvLog != nil {
			if err := csvLog.Flush(); err != nil {
				log.WithError(err).Error("cannot flush enrollment log")
			}
		}

		var results []webreg.SectionSummary
		for _, q := range info.SearchQueries {
			found, err := t.state.Wrapper.Req(info.Term).Parsed().SearchCourses(ctx, webreg.Advanced(q))
			if err != nil {
				log.WithError(err).Warn("catalog search failed")
			} else {
				results = append(results, found...)
			}
			sleep(ctx, queryDelay)
		}

		if len(results) == 0 {
			log.Warn("catalog search returned no courses, ending cycle")
			break
		}
		log.WithField("courses", len(results)).Info("catalog search complete")

		for _, course := range results {
			if t.state.ShouldStop() || loopStop.Load() {
				break cycle
			}
			if failCount > maxConsecutiveFailures {
				log.WithField("failures", failCount).Warn("too many consecutive failures, ending cycle")
				break cycle
			}

			start := time.Now()
			counts, err := t.state.Wrapper.Req(info.Term).Parsed().GetEnrollmentCount(ctx, course.SubjCode, course.CourseCode)
			elapsed := time.Since(start)
			info.Stats.Record(elapsed.Milliseconds())

			switch {
			case err != nil:
				failCount++
				t.state.Metrics.RecordPoll(info.Term, "error", elapsed.Seconds())
				log.WithError(err).WithField("course", course.SubjCourseID()).Warn("enrollment poll failed")
			case len(counts) > 0:
				failCount = 0
				t.state.Metrics.RecordPoll(info.Term, "success", elapsed.Seconds())
				if csvLog != nil {
					n, err := csvLog.WriteCounts(start.UnixMilli(), counts)
					if err != nil {
						log.WithError(err).Error("cannot append enrollment rows")
					} else {
						t.state.Metrics.RecordCSVRows(info.Term, n)
					}
				}
			default:
				failCount++
				t.state.Metrics.RecordPoll(info.Term, "empty", elapsed.Seconds())
				log.WithField("course", course.SubjCourseID()).Warn("enrollment poll returned nothing, were we logged out?")
			}

			sleep(ctx, cooldown)
		}
	}
}

// sleep pauses for d, returning early when ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
