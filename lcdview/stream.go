// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package lcdview

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/textproto"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/GermanBionicSystems/lcd16x2/lcdsim"
)

// StreamOpts represents the options of a Stream.
type StreamOpts struct {
	// Format sent when the client does not ask for one.
	Format Format
	Log    logrus.FieldLogger
}

// Stream is an http.Handler sending the rendered display as a
// multipart/x-mixed-replace stream ("MJPEG"), as IP cameras do. Every client
// gets the current frame on connect and a new one after each Update.
//
// Clients pick the encoding with "?format=png" or "?format=jpeg" (or "jpg").
type Stream struct {
	panel         *Panel
	defaultFormat Format
	log           logrus.FieldLogger

	mu      sync.Mutex
	snap    lcdsim.Snapshot
	clients map[*client]struct{}
	frames  map[Format][]byte
}

type client struct {
	refresh   chan struct{}
	terminate chan struct{}
}

// NewStream returns a Stream rendering through p.
func NewStream(p *Panel, opts *StreamOpts) *Stream {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Stream{
		panel:         p,
		defaultFormat: opts.Format,
		log:           log,
		clients:       map[*client]struct{}{},
		frames:        map[Format][]byte{},
	}
}

func (s *Stream) String() string {
	return "Stream"
}

// Update records the new display state and wakes every client. Rendering
// is deferred until a client asks for the frame.
func (s *Stream) Update(snap lcdsim.Snapshot) {
	s.mu.Lock()
	s.snap = snap
	clear(s.frames)
	for c := range s.clients {
		select {
		case c.refresh <- struct{}{}:
		default:
		}
	}
	s.mu.Unlock()
}

// Halt terminates all running client requests asynchronously.
func (s *Stream) Halt() error {
	s.mu.Lock()
	for c := range s.clients {
		select {
		case c.terminate <- struct{}{}:
		default:
		}
	}
	s.mu.Unlock()
	return nil
}

// Clients returns the number of connected clients.
func (s *Stream) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// frame returns the current frame in format f. The returned slice must not
// be modified.
func (s *Stream) frame(f Format) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.frames[f]; ok {
		return b, nil
	}
	var buf bytes.Buffer
	if err := f.encode(&buf, s.panel.Render(s.snap)); err != nil {
		return nil, err
	}
	s.frames[f] = buf.Bytes()
	return buf.Bytes(), nil
}

// ServeHTTP implements http.Handler.
func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "", http.StatusMethodNotAllowed)
		return
	}
	format := s.defaultFormat
	if v := r.URL.Query().Get("format"); v != "" {
		f, err := ParseFormat(v)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		format = f
	}

	fw := newFrameWriter(w)
	w.Header().Set("Content-Type",
		mime.FormatMediaType("multipart/x-mixed-replace", map[string]string{"boundary": fw.boundary}))

	c := &client{refresh: make(chan struct{}, 1), terminate: make(chan struct{}, 1)}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
	}()
	log := s.log.WithFields(logrus.Fields{"remote": r.RemoteAddr, "format": format})
	log.Debug("preview client connected")

	header := make(textproto.MIMEHeader)
	header.Set("Content-Type", format.contentType())
	header.Set("Content-Transfer-Encoding", "binary")
	for {
		b, err := s.frame(format)
		if err != nil {
			log.WithError(err).Error("encoding frame")
			return
		}
		// There is no way to report an error inside the stream; the request
		// just ends.
		if err := fw.writeFrame(header, b); err != nil {
			log.WithError(err).Debug("preview client gone")
			return
		}
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
		select {
		case <-c.refresh:
		case <-c.terminate:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// frameWriter writes an endless MIME multipart body, one flushed part per
// frame. mime/multipart.Writer only ends the previous part when the next one
// starts, which would hold every frame back by one.
type frameWriter struct {
	w        io.Writer
	boundary string
	started  bool
}

func newFrameWriter(w io.Writer) *frameWriter {
	// RFC 2046 section 5.1.1 allows up to 70 characters.
	var b [34]byte
	if _, err := io.ReadFull(rand.Reader, b[:]); err != nil {
		panic(err)
	}
	return &frameWriter{w: w, boundary: fmt.Sprintf("%x", b[:])}
}

// writeFrame sets Content-Length in header and writes one complete part
// followed by the boundary.
func (f *frameWriter) writeFrame(header textproto.MIMEHeader, body []byte) error {
	header.Set("Content-Length", strconv.Itoa(len(body)))
	var buf bytes.Buffer
	if !f.started {
		fmt.Fprintf(&buf, "--%s\r\n", f.boundary)
		f.started = true
	}
	for name, values := range header {
		for _, v := range values {
			fmt.Fprintf(&buf, "%s: %s\r\n", name, v)
		}
	}
	buf.WriteString("\r\n")
	buf.Write(body)
	fmt.Fprintf(&buf, "\r\n--%s\r\n", f.boundary)
	_, err := buf.WriteTo(f.w)
	return err
}

var _ http.Handler = &Stream{}
