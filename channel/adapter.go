package channel

import "github.com/joeycumines/go-channelgraph/internal/loop"

// LoopMember adapts a *Base plus its owning transport's Processor into the
// internal/loop.Member interface, bridging the typed DCap bitmask to the
// raw uint32 the loop package uses internally (loop cannot import channel,
// so it can't speak DCap directly; the two packages agree on bit layout by
// construction — see caps.go and internal/loop/loop.go).
type LoopMember struct {
	Base *Base
	Proc Processor
}

func (a LoopMember) FD() int          { return a.Base.FD() }
func (a LoopMember) DCaps() uint32    { return uint32(a.Base.DCaps()) }
func (a LoopMember) Process() error   { return a.Proc.Process() }
func (a LoopMember) Fail() error      { return a.Base.Fail() }
func (a LoopMember) Name() string     { return a.Base.Config.Name }

var _ loop.Member = LoopMember{}
