package iface

const (
	// MaxTasks bounds how many posted tasks one wakeup drains, so a busy
	// task queue cannot starve fd and timer events.
	MaxTasks int = 256
)
