package flock

import (
	"runtime"
	"sync"
)

// DefaultParallelThreshold is the agent count below which a stage runs on
// the calling goroutine. Below it the dispatch overhead outweighs the gain.
const DefaultParallelThreshold = 256

// stageFunc processes agents [start, end) on the given worker.
type stageFunc func(worker, start, end int)

// workChunk is a range of agents handed to one worker.
type workChunk struct {
	start, end int
	fn         stageFunc
}

// workerPool runs stage chunks on persistent goroutines. run returns only
// after every chunk of the stage has finished, which is the barrier between
// pipeline stages.
type workerPool struct {
	numWorkers int

	workChan chan workChunk // sends work to workers
	doneChan chan struct{}  // workers signal completion
	stopChan chan struct{}  // signals workers to exit
	wg       sync.WaitGroup // tracks active workers
	running  bool
}

func newWorkerPool(numWorkers int) *workerPool {
	if numWorkers < 1 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	return &workerPool{numWorkers: numWorkers}
}

// start launches the worker goroutines.
func (p *workerPool) start() {
	if p.running {
		return
	}

	p.workChan = make(chan workChunk, p.numWorkers)
	p.doneChan = make(chan struct{}, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// stop signals all workers to exit and waits for them.
func (p *workerPool) stop() {
	if !p.running {
		return
	}

	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}

func (p *workerPool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopChan:
			return
		case chunk, ok := <-p.workChan:
			if !ok {
				return
			}
			chunk.fn(id, chunk.start, chunk.end)
			p.doneChan <- struct{}{}
		}
	}
}

// run splits [0, n) into one chunk per worker and blocks until all are done.
func (p *workerPool) run(n int, fn stageFunc) {
	if !p.running {
		p.start()
	}

	chunkSize := (n + p.numWorkers - 1) / p.numWorkers

	dispatched := 0
	for w := 0; w < p.numWorkers; w++ {
		start := w * chunkSize
		end := min(start+chunkSize, n)
		if start >= end {
			continue
		}
		p.workChan <- workChunk{start: start, end: end, fn: fn}
		dispatched++
	}

	for i := 0; i < dispatched; i++ {
		<-p.doneChan
	}
}
