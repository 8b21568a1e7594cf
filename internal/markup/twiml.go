// Package markup renders the call-control documents the telephony provider
// fetches to drive the call (TwiML).
package markup

import (
	"encoding/xml"
	"fmt"
)

// Verb elements. Each carries its own XMLName so documents preserve the
// exact verb order they were built with.
type (
	// Stream relays one call track to a websocket endpoint.
	Stream struct {
		URL   string `xml:"url,attr,omitempty"`
		Track string `xml:"track,attr,omitempty"`
	}

	startVerb struct {
		XMLName xml.Name `xml:"Start"`
		Stream  *Stream  `xml:"Stream"`
	}

	stopVerb struct {
		XMLName xml.Name `xml:"Stop"`
		Stream  *Stream  `xml:"Stream"`
	}

	sayVerb struct {
		XMLName xml.Name `xml:"Say"`
		Text    string   `xml:",chardata"`
	}

	playVerb struct {
		XMLName xml.Name `xml:"Play"`
		Digits  string   `xml:"digits,attr,omitempty"`
		URL     string   `xml:",chardata"`
	}

	pauseVerb struct {
		XMLName xml.Name `xml:"Pause"`
		Length  int      `xml:"length,attr"`
	}

	dialVerb struct {
		XMLName xml.Name `xml:"Dial"`
		Number  string   `xml:",chardata"`
	}

	hangupVerb struct {
		XMLName xml.Name `xml:"Hangup"`
	}
)

type response struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any
}

func render(verbs ...any) ([]byte, error) {
	body, err := xml.Marshal(response{Verbs: verbs})
	if err != nil {
		return nil, fmt.Errorf("render markup: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}

// Builder renders stage-specific control documents against one media-stream
// endpoint.
type Builder struct {
	streamURL string
	track     string
}

// NewBuilder returns a builder targeting the given stream endpoint.
func NewBuilder(streamURL string) (*Builder, error) {
	if streamURL == "" {
		return nil, fmt.Errorf("stream url is required")
	}
	return &Builder{streamURL: streamURL, track: "inbound_track"}, nil
}

// Initial produces the answer-time document: relay the inbound track,
// greet, and leave the line open for the IVR to speak.
func (b *Builder) Initial(promptURL string) ([]byte, error) {
	greeting := any(sayVerb{Text: "Hi"})
	if promptURL != "" {
		greeting = playVerb{URL: promptURL}
	}
	return render(
		startVerb{Stream: &Stream{URL: b.streamURL, Track: b.track}},
		greeting,
		pauseVerb{Length: 30},
		hangupVerb{},
	)
}

// Digits produces the DTMF document: pause the relay so the tones are not
// transcribed, play them, then re-attach a fresh stream for the next stage.
func (b *Builder) Digits(digits string) ([]byte, error) {
	if digits == "" {
		return nil, fmt.Errorf("digits are required")
	}
	return render(
		stopVerb{Stream: &Stream{}},
		playVerb{Digits: digits},
		startVerb{Stream: &Stream{URL: b.streamURL, Track: b.track}},
		pauseVerb{Length: 60},
	)
}

// Hangup produces the terminate document.
func (b *Builder) Hangup() ([]byte, error) {
	return render(hangupVerb{})
}

// Bridge produces the document that dials the call through to a human
// destination.
func (b *Builder) Bridge(destination string) ([]byte, error) {
	if destination == "" {
		return nil, fmt.Errorf("bridge destination is required")
	}
	return render(dialVerb{Number: destination})
}
