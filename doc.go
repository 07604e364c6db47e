// Package pollpipe provides non-blocking Unix pipes, and a single-owner
// readiness registry that polls them (or any other descriptor).
//
// # Registry
//
// A [Registry] associates descriptors with a caller-chosen [Token] and an
// interest mask ([IOEvents]), and drives one OS readiness call per
// [Registry.Poll]:
//   - Linux: epoll
//   - Darwin: kqueue
//   - Any Unix: poll(2), see [WithBackend]
//
// Each poll cycle yields an [EventIter], listing each ready registration's
// token once, along with the readiness observed. The iterator is invalidated
// by the next Poll.
//
// # Usage
//
//	r, w, err := pollpipe.NewPipe()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//	defer w.Close()
//
//	reg, err := pollpipe.NewRegistry()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer reg.Close()
//
//	if err := reg.Register(r, 1, pollpipe.EventReadable); err != nil {
//	    log.Fatal(err)
//	}
//
//	events, err := reg.Poll(pollpipe.After(time.Second))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for token, ev := range events.All() {
//	    // token 1 is readable (or hung up)
//	}
//
// # Safety
//
// A Registry is not safe for concurrent use, and holds only descriptor
// numbers. Always unregister a descriptor before closing it, to prevent stale
// events due to descriptor reuse. The [Reader] and [Writer] types do this
// automatically on Close.
package pollpipe
