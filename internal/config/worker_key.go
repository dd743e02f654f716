package config

type WorkerKeyStruct struct {
	NotifyExamCreatedQueue string
}

var WorkerKey = &WorkerKeyStruct{
	NotifyExamCreatedQueue: "notify_exam_created_queue",
}
