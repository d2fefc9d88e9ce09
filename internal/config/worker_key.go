package config

type WorkerKeyStruct struct {
	PersistIncidentsQueue string
	PersistAnswersQueue   string
}

var WorkerKey = &WorkerKeyStruct{
	PersistIncidentsQueue: "persist_incidents_queue",
	PersistAnswersQueue:   "persist_answers_queue",
}
