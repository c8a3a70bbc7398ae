package config

type WorkerKeyStruct struct {
	ResyncResultsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	ResyncResultsQueue: "resync_results_queue",
}
