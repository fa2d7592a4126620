package killswitch

// state is the snapshot a transition is computed from. Only the serialized
// run loop mutates it, so transitions always start from the outcome of the
// previous one, never from a stale view.
type state struct {
	mode      Mode
	enforcing bool
	connected bool
}

// plan is the full effect of one accepted request: the resulting mode,
// whether the backend has to (re)install or remove rules first, and whether
// the new mode must be persisted. At most one of install/remove is set.
type plan struct {
	next    Mode
	install bool
	remove  bool
	persist bool
}

func (p plan) noop() bool { return !p.install && !p.remove && !p.persist }

// nextState decides legality and effect of a request. It is pure and total:
// every (state, request) pair yields a plan, illegal or duplicate requests
// collapse into no-ops.
func nextState(cur state, req *request) plan {
	switch req.trigger {
	case triggerDisable:
		// Always legal, idempotent from ModeOff.
		return plan{
			next:    ModeOff,
			remove:  cur.enforcing,
			persist: cur.mode != ModeOff,
		}

	case triggerEnable:
		if req.target == cur.mode {
			// Repeated enable is a no-op success, no backend round trip.
			return plan{next: cur.mode}
		}
		wantEnforce := req.target == ModeHard || (req.target == ModeSoft && !cur.connected)
		return plan{
			next:    req.target,
			install: wantEnforce,
			remove:  !wantEnforce && cur.enforcing,
			persist: true,
		}

	case triggerConnectivity:
		// Connectivity only matters under ModeSoft. The plan compares the
		// enforcement the status calls for against the actual one, not the
		// status against the previous status: a duplicate in a healthy
		// state stays a no-op, while a repeated status re-installs rules
		// whose install failed last time.
		if cur.mode != ModeSoft {
			return plan{next: cur.mode}
		}
		wantEnforce := !req.connected
		return plan{
			next:    cur.mode,
			install: wantEnforce && !cur.enforcing,
			remove:  !wantEnforce && cur.enforcing,
		}

	case triggerUpdate:
		// A new server endpoint matters only while rules are installed.
		return plan{next: cur.mode, install: cur.enforcing}

	default:
		return plan{next: cur.mode}
	}
}
