package committer

// Committer decides when a partition worker should commit its delivered
// position. It only signals; the worker performs the commit and reports it
// back through Committed.
type Committer interface {
	C() <-chan struct{}
	RecordProcessed(count int)
	Committed()
	Close()
}
