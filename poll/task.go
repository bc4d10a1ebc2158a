package poll

import "sync"

type TaskArg interface{}

type TaskFunc func(arg TaskArg) error

type task struct {
	Go  TaskFunc
	Arg TaskArg
}

var taskPool = sync.Pool{
	New: func() interface{} {
		return &task{}
	},
}

func getTask() *task {
	return taskPool.Get().(*task)
}

func putTask(t *task) {
	t.Go, t.Arg = nil, nil
	taskPool.Put(t)
}
