//go:build !govips || !cgo

package pipeline

func Startup() error {
	return nil
}

func Shutdown() {}

func newTranscoder(opts Options) (Transcoder, error) {
	return stdlibTranscoder{quality: opts.JPEGQuality, maxPixels: opts.MaxPixels}, nil
}
