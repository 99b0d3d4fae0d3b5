package main

import (
	"fmt"

	"github.com/joeycumines/go-channelgraph/channel"
	"github.com/joeycumines/go-channelgraph/curl"
	"github.com/joeycumines/go-channelgraph/processor"
	"github.com/joeycumines/go-channelgraph/pub"
	"github.com/joeycumines/go-channelgraph/stream"
	"github.com/joeycumines/go-channelgraph/transport/memring"
	"github.com/joeycumines/go-channelgraph/transport/tcp"
	"github.com/joeycumines/go-channelgraph/transport/udp"
)

// memringServerChannel adapts memring.Server (which has no inbound
// readiness to drive, so never needed a Process method of its own) to
// processor.Channel, the same way channel/adapter.go's LoopMember bridges
// Base into internal/loop.Member.
type memringServerChannel struct{ *memring.Server }

func (memringServerChannel) Process() error { return channel.ErrAgain }

// acceptedConfig builds the per-accepted-client *channel.Config factory
// every multi-connection server constructor (tcp.NewServer, pub.NewServer,
// stream.NewServer) requires, naming each accepted client after the
// generated name the server already computes (server.go: "<name>.clientN").
func acceptedConfig(proto, url string) func(name string) *channel.Config {
	return func(name string) *channel.Config {
		return channel.NewConfig(name, proto, url)
	}
}

// buildChannel constructs the transport named by oc.URL's protocol, per
// spec.md §6's URL grammar (`proto://host;k=v;...`). `mode=client|server`
// picks the connecting vs listening side for every connection-oriented
// proto; transport-specific knobs (frame, size, autoseq, ...) are read
// straight off the URL's key/value tail via curl.URL's typed getters.
func buildChannel(oc objectConfig) (processor.Channel, *channel.Base, error) {
	u, err := curl.Parse(oc.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("channelgraphd: object %s: %w", oc.Name, err)
	}
	cfg := channel.NewConfig(oc.Name, u.Proto, oc.URL)
	mode := u.GetDefault("mode", "client")

	frame, err := tcp.ParseFrameKind(u.GetDefault("frame", "std"))
	if err != nil {
		return nil, nil, fmt.Errorf("channelgraphd: object %s: %w", oc.Name, err)
	}
	opts := tcp.SockOpts{
		SndBuf:    int(u.GetSize("sndbuf", 0)),
		RcvBuf:    int(u.GetSize("rcvbuf", 0)),
		KeepAlive: u.GetBool("keepalive", false),
		NoDelay:   u.GetBool("nodelay", true),
	}
	fam := tcp.FamilyTCP

	switch u.Proto {
	case "tcp":
		if mode == "server" {
			s := tcp.NewServer(cfg, u.Host, frame, opts, fam, acceptedConfig(u.Proto, oc.URL))
			return s, s.Base, nil
		}
		c := tcp.NewClient(cfg, u.Host, frame, opts, fam)
		return c, c.Base, nil

	case "udp":
		bind, peer := "", u.Host
		if mode == "server" {
			bind, peer = u.Host, ""
		}
		mcast := udp.MulticastOpts{
			Enabled:   u.GetBool("udp.multicast", false),
			Loop:      u.GetBool("udp.loop", false),
			Interface: u.GetDefault("udp.interface", ""),
			TTL:       int(u.GetInt("udp.ttl", 1)),
		}
		s := udp.NewSocket(cfg, bind, peer, frame, mcast, opts)
		return s, s.Base, nil

	case "memring":
		if mode == "server" {
			size := u.GetSize("size", 64<<10)
			s := memring.NewServer(cfg, u.Host, int(size))
			return memringServerChannel{s}, s.Base, nil
		}
		c := memring.NewClient(cfg, u.Host)
		return c, c.Base, nil

	case "pub":
		if mode == "server" {
			size := u.GetSize("size", 1<<20)
			s := pub.NewServer(cfg, u.Host, int(size), frame, opts, fam, acceptedConfig(u.Proto, oc.URL))
			return s, s.Base, nil
		}
		// The pub client side is a plain framed TCP reader — pub.cc's
		// ChPubSocket client mode does no protocol work beyond decoding
		// the same frames tcp.Client already decodes.
		c := tcp.NewClient(cfg, u.Host, frame, opts, fam)
		return c, c.Base, nil

	case "stream":
		if mode == "server" {
			autoseq := u.GetBool("stream.autoseq", false)
			name := u.GetDefault("stream.name", oc.Name)
			s := stream.NewServer(cfg, u.Host, name, autoseq, frame, opts, fam, acceptedConfig(u.Proto, oc.URL))
			return s, s.Base, nil
		}
		reqMode, seq, blockName, blockIndex, err := parseStreamClientMode(u)
		if err != nil {
			return nil, nil, fmt.Errorf("channelgraphd: object %s: %w", oc.Name, err)
		}
		connCfg := channel.NewConfig(oc.Name+"/request", u.Proto, oc.URL)
		conn := tcp.NewClient(connCfg, u.Host, frame, opts, fam)
		clientName := u.GetDefault("stream.client-name", oc.Name)
		c := stream.NewClient(cfg, conn, clientName, reqMode, seq, blockName, blockIndex)
		return c, c.Base, nil

	default:
		return nil, nil, fmt.Errorf("channelgraphd: object %s: unsupported proto %q", oc.Name, u.Proto)
	}
}

// parseStreamClientMode reads a stream client's request mode from the
// URL, per spec.md §4.4: stream.mode=seq;stream.seq=N,
// stream.mode=block;stream.block=name[;stream.block-index=N], or
// stream.mode=online.
func parseStreamClientMode(u curl.URL) (mode stream.RequestMode, seq int64, blockName string, blockIndex int32, err error) {
	switch u.GetDefault("stream.mode", "seq") {
	case "seq":
		return stream.ModeSeq, u.GetInt("stream.seq", 0), "", 0, nil
	case "block":
		idx := u.GetInt("stream.block-index", 0)
		return stream.ModeBlock, 0, u.GetDefault("stream.block", ""), int32(idx), nil
	case "online":
		return stream.ModeOnline, 0, "", 0, nil
	default:
		return 0, 0, "", 0, fmt.Errorf("unknown stream.mode %q", u.GetDefault("stream.mode", ""))
	}
}
