package tasks

// TaskSchedulerInterface is what the application uses to run background work.
//
//	scheduler := NewScheduler(pipeline, workerCount, interval)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueTask(NewRefreshFeedTask(podcastID, false, pipeline, scheduler))
type TaskSchedulerInterface interface {
	Enqueuer
	Start()
	Stop()
}

// Enqueuer accepts follow-up tasks. Feed refreshes use it to queue art and
// analysis work.
type Enqueuer interface {
	EnqueueTask(task TaskInterface) error
}
