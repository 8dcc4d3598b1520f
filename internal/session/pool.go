package session

import "sync"

// workerPool runs a fixed number of goroutines over an inbox.
type workerPool struct {
	size int
	wg   sync.WaitGroup
}

func newWorkerPool(size int) *workerPool {
	if size <= 0 {
		size = defaultConcurrency
	}
	return &workerPool{size: size}
}

// start launches the workers. They exit once inbox is closed and drained.
func (p *workerPool) start(inbox <-chan *call, handler func(*call)) {
	for range p.size {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for c := range inbox {
				handler(c)
			}
		}()
	}
}

func (p *workerPool) wait() {
	p.wg.Wait()
}
