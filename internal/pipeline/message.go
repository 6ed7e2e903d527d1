// Package pipeline wires the chunk processing stages into a retryable
// asynchronous chain and produces the merged output document.
package pipeline

import (
	"path/filepath"
	"strings"
)

// Message travels through the stage chain and accumulates the artifact
// paths produced for one chunk. A message is owned by exactly one stage
// at a time; handing it to the next channel transfers ownership.
type Message struct {
	ChunkPath string
	Stem      string
	PDFType   string

	MiddleJSON     string
	LeafBlockPath  string
	TranslatedPath string
	CensoredPath   string
	HTMLPath       string
	PDFPath        string

	Err error

	// TotalChunks 全部消息共享同一值，供末端统计
	TotalChunks int
}

// NewMessage creates the message for one chunk.
func NewMessage(chunkPath, pdfType string, totalChunks int) *Message {
	base := filepath.Base(chunkPath)
	return &Message{
		ChunkPath:   chunkPath,
		Stem:        strings.TrimSuffix(base, filepath.Ext(base)),
		PDFType:     pdfType,
		TotalChunks: totalChunks,
	}
}

// Fail marks the message failed. The first error sticks.
func (m *Message) Fail(err error) {
	if m.Err == nil {
		m.Err = err
	}
}

// Failed reports whether a stage has already failed this message.
func (m *Message) Failed() bool {
	return m.Err != nil
}
