// timer/timer.go
package timer

import (
	"container/heap"
	"sync"
	"time"

	"github.com/wfunc/soccerserver/logger"
)

type TimerTask struct {
	Id       int64
	Name     string
	Execute  time.Time
	Interval time.Duration
	Callback func()
	index    int
}

type TimerQueue []*TimerTask

func (q TimerQueue) Len() int { return len(q) }

func (q TimerQueue) Less(i, j int) bool {
	return q[i].Execute.Before(q[j].Execute)
}

func (q TimerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *TimerQueue) Push(x interface{}) {
	n := len(*q)
	task := x.(*TimerTask)
	task.index = n
	*q = append(*q, task)
}

func (q *TimerQueue) Pop() interface{} {
	old := *q
	n := len(old)
	task := old[n-1]
	task.index = -1
	*q = old[0 : n-1]
	return task
}

// TimerManager runs housekeeping callbacks off a min-heap ordered by due time.
// A repeating task is not run again while its previous call is still executing.
type TimerManager struct {
	queue      TimerQueue
	mutex      sync.Mutex
	nextId     int64
	resolution time.Duration
	running    map[int64]bool
	stop       chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

func NewTimerManager(resolution time.Duration) *TimerManager {
	if resolution <= 0 {
		resolution = 100 * time.Millisecond
	}
	manager := &TimerManager{
		queue:      make(TimerQueue, 0),
		nextId:     1,
		resolution: resolution,
		running:    make(map[int64]bool),
		stop:       make(chan struct{}),
	}
	heap.Init(&manager.queue)
	manager.wg.Add(1)
	go manager.process()
	return manager
}

func (m *TimerManager) AddTimer(name string, delay time.Duration, interval time.Duration, callback func()) int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	task := &TimerTask{
		Id:       m.nextId,
		Name:     name,
		Execute:  time.Now().Add(delay),
		Interval: interval,
		Callback: callback,
	}
	m.nextId++

	heap.Push(&m.queue, task)
	return task.Id
}

func (m *TimerManager) RemoveTimer(timerId int64) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for i, task := range m.queue {
		if task.Id == timerId {
			heap.Remove(&m.queue, i)
			return true
		}
	}
	return false
}

func (m *TimerManager) Len() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.queue.Len()
}

// Stop halts dispatching and waits for running callbacks to return.
func (m *TimerManager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	m.wg.Wait()
}

func (m *TimerManager) process() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.resolution)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case now := <-ticker.C:
			for _, task := range m.due(now) {
				m.wg.Add(1)
				go m.run(task)
			}
		}
	}
}

func (m *TimerManager) due(now time.Time) []*TimerTask {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var tasks []*TimerTask
	for m.queue.Len() > 0 {
		task := m.queue[0]
		if task.Execute.After(now) {
			break
		}
		heap.Pop(&m.queue)
		if task.Interval > 0 {
			task.Execute = now.Add(task.Interval)
			heap.Push(&m.queue, task)
		}
		if m.running[task.Id] {
			continue
		}
		m.running[task.Id] = true
		tasks = append(tasks, task)
	}
	return tasks
}

func (m *TimerManager) run(task *TimerTask) {
	defer m.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Errorf("timer %q panicked: %v", task.Name, r)
		}
		m.mutex.Lock()
		delete(m.running, task.Id)
		m.mutex.Unlock()
	}()
	task.Callback()
}
