// services/scheduler.go
package services

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartSchedulers runs the periodic maintenance jobs: stale-task expiry and
// the clan ranking refresh. Returns the scheduler so main can shut it down.
func StartSchedulers(tasks *TaskService, clans *ClanService) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	sched.Start()

	// Every minute: cancel open tasks whose deadline has passed.
	_, err = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			if _, err := tasks.ExpireStale(time.Now()); err != nil {
				log.Printf("[Scheduler] task expiry error: %v", err)
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	// Every 10 minutes: recompute stored clan rankings.
	_, err = sched.NewJob(
		gocron.DurationJob(10*time.Minute),
		gocron.NewTask(func() {
			if err := clans.RefreshRankings(); err != nil {
				log.Printf("[Scheduler] ranking refresh error: %v", err)
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	log.Println("⏰ Maintenance schedulers started")
	return sched, nil
}
