package raft

// Stepdown begins a leadership transfer: the leader stops accepting new
// proposals, picks the most caught-up voting follower, and once that
// follower's log matches its own, sends it a TimeoutNow so it can win
// the next election without waiting out a full election timeout.
// timeoutTicks bounds how long the transfer may take before it is
// abandoned and leadership resumes normally.
func (f *FSM) Stepdown(timeoutTicks int) error {
	if f.role != RoleLeader {
		return &NotLeaderError{LeaderHint: f.leader}
	}
	target, ok := f.bestTransferee()
	if !ok {
		return ErrNotLeader
	}
	if timeoutTicks <= 0 {
		timeoutTicks = f.cfg.ElectionTick
	}
	f.stepping = true
	f.transferSent = false
	f.transferTarget = target
	f.transferElapsed = 0
	f.transferTimeout = timeoutTicks
	f.maybeFinishStepdown()
	return nil
}

// bestTransferee picks the voting follower with the highest matchIndex,
// breaking ties by ServerID for determinism.
func (f *FSM) bestTransferee() (ServerID, bool) {
	var best ServerID
	var bestMatch Index
	found := false
	for _, id := range f.configuration.AllVoters() {
		if id == f.id {
			continue
		}
		pr, ok := f.progress[id]
		if !ok {
			continue
		}
		if !found || pr.matchIndex > bestMatch || (pr.matchIndex == bestMatch && id < best) {
			best, bestMatch, found = id, pr.matchIndex, true
		}
	}
	return best, found
}

// maybeFinishStepdown sends the TimeoutNow once the target's log has
// caught up. The transfer stays in progress afterward: this server
// remains a non-accepting leader until the target's election demotes it
// via a higher term, or the transfer deadline expires.
func (f *FSM) maybeFinishStepdown() {
	if !f.stepping || f.transferSent {
		return
	}
	pr, ok := f.progress[f.transferTarget]
	if !ok {
		f.abandonStepdown()
		return
	}
	if pr.matchIndex >= f.log.lastIndex() {
		req := TimeoutNowRequest{Term: f.currentTerm, Leader: f.id}
		target := f.transferTarget
		f.send(target, func(s *Send) { s.TimeoutNowRequest = &req })
		f.transferSent = true
	}
}

// abandonStepdown gives up on an in-progress transfer: leadership
// resumes normally and the driver is told so it can fail the caller's
// promise with a timeout.
func (f *FSM) abandonStepdown() {
	f.stepping = false
	f.transferSent = false
	f.transferTarget = ""
	f.out.StepdownTimedOut = true
}

// handleTimeoutNow is the transfer target's reaction: it becomes a
// candidate immediately, skipping both the election timer and the
// pre-vote round. Pre-voting would stall here, since every other
// follower has just heard from the still-live outgoing leader and
// would refuse the straw poll.
func (f *FSM) handleTimeoutNow(from ServerID, req *TimeoutNowRequest) {
	f.observeTerm(req.Term)
	if req.Term < f.currentTerm {
		return
	}
	if f.role == RoleLeader {
		return
	}
	f.becomeCandidate()
}
