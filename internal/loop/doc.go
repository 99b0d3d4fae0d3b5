// Package loop implements the fd-multiplexed, cooperative event loop that
// schedules channel.Processor.Process() calls, per spec.md §4.2.
//
// Each Loop runs on a single goroutine. It tracks three channel
// lists — list_process (fd-backed, Process-eligible), list_pending (the
// subset additionally marked Pending), and list_nofd (no fd, still
// process()-eligible) — and a platform poller (epoll on Linux, kqueue on
// Darwin) plus a pending-wakeup fd that is armed whenever list_pending is
// non-empty, so a blocking poll() call returns immediately instead of
// waiting out its timeout.
//
// Grounded on github.com/joeycumines/go-utilpkg/eventloop's Loop/FastPoller
// design (cache-line-padded atomic state, a chunked mutex-based ingress
// queue that benchmarks faster than lock-free CAS under contention, and a
// pipe/eventfd wakeup mechanism) — generalized here from a JS-timer/promise
// scheduler to a transport-channel scheduler.
package loop
