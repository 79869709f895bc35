package fixture

import "sync"

// scriptBoard holds per-path queues of scripted response statuses. Each
// request to a path consumes the head of its queue; a 2xx entry (or an empty
// queue) lets the real handler respond. Tests use this to rehearse retry
// behavior against deterministic failure sequences.
type scriptBoard struct {
	mu     sync.Mutex
	queues map[string][]int
}

func newScriptBoard() *scriptBoard {
	return &scriptBoard{queues: make(map[string][]int)}
}

// Push appends statuses to the queue for a path.
func (b *scriptBoard) Push(path string, statuses ...int) {
	b.mu.Lock()
	b.queues[path] = append(b.queues[path], statuses...)
	b.mu.Unlock()
}

// Next pops the head of the queue for a path. ok is false when nothing is
// queued.
func (b *scriptBoard) Next(path string) (status int, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	queue := b.queues[path]
	if len(queue) == 0 {
		return 0, false
	}
	status = queue[0]
	if len(queue) == 1 {
		delete(b.queues, path)
	} else {
		b.queues[path] = queue[1:]
	}
	return status, true
}

// Pending reports how many scripted statuses remain for a path.
func (b *scriptBoard) Pending(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[path])
}

// Clear drops all queued statuses.
func (b *scriptBoard) Clear() {
	b.mu.Lock()
	b.queues = make(map[string][]int)
	b.mu.Unlock()
}
