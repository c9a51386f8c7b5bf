package config

type WorkerKeyStruct struct {
	PersistCheatsQueue  string
	PersistResultsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistCheatsQueue:  "persist_cheats_queue",
	PersistResultsQueue: "persist_results_queue",
}

// Queues lists every persistence queue, for depth reporting.
func (w *WorkerKeyStruct) Queues() []string {
	return []string{w.PersistCheatsQueue, w.PersistResultsQueue}
}
