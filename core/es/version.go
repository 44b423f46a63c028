package es

import (
	"log/slog"
	"math"
)

// Version is the 0-indexed position of an event within its log stream.
// The first event of a stream has Version 0; NoStream marks a stream that
// has no events yet. Version is used for optimistic concurrency control:
// an append states the Version it expects the stream to be at.
type Version int64

const (
	// NoStream is the expected Version of a stream that does not exist yet.
	NoStream Version = -1
	// StreamEnd addresses the most recent record when reading backwards.
	StreamEnd Version = math.MaxInt64
)

func (v Version) Int64() int64                           { return int64(v) }
func (v Version) Next() Version                          { return v + 1 }
func (v Version) Exists() bool                           { return v > NoStream }
func (v Version) SlogAttr() slog.Attr                    { return newSlogVersionAttr("version", v) }
func (v Version) SlogAttrWithKey(key string) slog.Attr   { return newSlogVersionAttr(key, v) }
func newSlogVersionAttr(key string, v Version) slog.Attr { return slog.Int64(key, int64(v)) }
