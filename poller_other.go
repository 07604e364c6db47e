//go:build unix && !linux && !darwin

package pollpipe

func openPoller(b Backend, capacity int) (poller, error) {
	switch b {
	case BackendAuto, BackendPoll:
		return newPollPoller(capacity), nil
	default:
		return nil, ErrBackendUnavailable
	}
}
