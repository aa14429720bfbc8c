package executor

import "log"

// Spawner detaches background work from the serving path.
type Spawner interface {
	Spawn(task func())
}

// GoSpawner runs tasks on fresh goroutines, recovering panics into logs so a
// background failure can never reach a caller.
type GoSpawner struct{}

// Spawn starts the task on its own goroutine.
func (GoSpawner) Spawn(task func()) {
	if task == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("background task panic recovered: %v", r)
			}
		}()
		task()
	}()
}

var _ Spawner = GoSpawner{}
