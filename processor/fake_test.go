package processor

import (
	"sync/atomic"

	"github.com/joeycumines/go-channelgraph/channel"
	"github.com/joeycumines/go-channelgraph/internal/reopen"
)

// fakeChannel is a minimal channel.Processor used to exercise the object
// graph/worker/processor state machinery without any real transport,
// matching the in-memory test doubles used by channel/channel_test.go.
type fakeChannel struct {
	*channel.Base
	failOpen atomic.Bool
}

func (f *fakeChannel) Process() error { return channel.ErrAgain }

func (f *fakeChannel) Open() error {
	if err := f.Base.Open(); err != nil {
		return err
	}
	if f.failOpen.Load() {
		return f.Base.Fail()
	}
	return f.Base.Active()
}

func (f *fakeChannel) Close() error { return f.Base.Close() }

func newFakeSpec(name string, depends ...string) ObjectSpec {
	return ObjectSpec{
		Name:         name,
		DependsNames: depends,
		Reopen:       reopen.Config{},
		New: func() (Channel, *channel.Base, error) {
			cfg := channel.NewConfig(name, "fake", "fake://"+name)
			base := channel.NewBase(cfg, 0)
			return &fakeChannel{Base: base}, base, nil
		},
	}
}
