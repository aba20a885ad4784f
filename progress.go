package cdfs

// ProgressEvent is a progress update during pack or extract.
type ProgressEvent struct {
	Path       string
	BytesDone  uint64
	BytesTotal uint64
	FilesDone  int
	FilesTotal int
}

// ProgressFunc receives progress updates. Callbacks run synchronously on
// the operation's goroutine and should be inexpensive.
type ProgressFunc func(ProgressEvent)
