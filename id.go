package ussh

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"sync/atomic"
	"time"
)

// TagBuilder generates short, sortable, collision resistant tags used to
// label connections and channels in log output. Not part of the wire
// protocol - purely a debugging aid.
type TagBuilder struct {
	counter uint64
}

func NewTagBuilder() (rv TagBuilder) {
	arr := [8]byte{}
	s := arr[:]
	if _, err := rand.Read(s); err != nil {
		panic(err)
	}
	return TagBuilder{
		counter: binary.BigEndian.Uint64(s),
	}
}

func (this *TagBuilder) NewTag() (rv string) {
	u := atomic.AddUint64(&this.counter, 1)
	arr := [4]byte{}
	s := arr[:]
	binary.BigEndian.PutUint32(s, uint32(u))
	return time.Now().UTC().Format("060102150405") + hex.EncodeToString(s)
}
