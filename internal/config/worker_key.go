package config

type WorkerKeyStruct struct {
	ProctorEventsQueue  string
	AttemptArchiveQueue string
}

var WorkerKey = &WorkerKeyStruct{
	ProctorEventsQueue:  "proctor_events_queue",
	AttemptArchiveQueue: "attempt_archive_queue",
}
