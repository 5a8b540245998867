package flashlog

const DefaultMaxDataLen = 2048

type openOptions struct {
	maxDataLen  int
	recordCache int
}

var defaultOpenOptions = openOptions{
	maxDataLen:  DefaultMaxDataLen,
	recordCache: 1024,
}

type OpenOption func(*openOptions)

// WithMaxDataLen limits the payload size of a single data block.
func WithMaxDataLen(n int) OpenOption {
	return func(o *openOptions) {
		o.maxDataLen = n
	}
}

// WithRecordCache sets the number of decoded records kept in memory, 0
// disables the record cache.
func WithRecordCache(n int) OpenOption {
	return func(o *openOptions) {
		o.recordCache = n
	}
}
