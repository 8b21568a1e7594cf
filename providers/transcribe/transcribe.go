// Package transcribe defines the streaming speech-recognition contract the
// ingestion pipeline consumes.
package transcribe

import "context"

// Result is one recognition hypothesis for a stream, partial or final.
type Result struct {
	Transcript string
	IsFinal    bool
	Confidence float64
}

// Session is one live recognition channel. Write feeds raw audio; Results
// yields hypotheses in emission order and is closed when the channel ends,
// whether by Close or by a backend error.
type Session interface {
	Write(audio []byte) error
	Results() <-chan Result
	Close() error
}

// Opener starts recognition sessions.
type Opener interface {
	OpenSession(ctx context.Context) (Session, error)
}
