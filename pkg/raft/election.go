package raft

// logUpToDate reports whether a candidate's log (lastLogTerm, lastLogIndex)
// is at least as up to date as this server's own log, per the Raft
// paper's election restriction: higher last term wins outright; on a
// term tie, the longer log wins.
func (f *FSM) logUpToDate(lastIndex Index, lastTerm Term) bool {
	myTerm := f.log.lastTerm()
	if lastTerm != myTerm {
		return lastTerm > myTerm
	}
	return lastIndex >= f.log.lastIndex()
}

func (f *FSM) broadcastPreVoteRequests() {
	req := PreVoteRequest{
		Term:         f.currentTerm + 1,
		Candidate:    f.id,
		LastLogIndex: f.log.lastIndex(),
		LastLogTerm:  f.log.lastTerm(),
	}
	for _, id := range f.configuration.AllVoters() {
		if id == f.id {
			continue
		}
		r := req
		f.send(id, func(s *Send) { s.PreVoteRequest = &r })
	}
	f.maybeBecomePreVoteWinner()
}

func (f *FSM) maybeBecomePreVoteWinner() {
	if f.role != RolePreCandidate {
		return
	}
	if f.configuration.HasVoteQuorum(f.preVotesGranted) {
		f.becomeCandidate()
	}
}

// handlePreVoteRequest answers a pre-vote round. It never mutates term
// or vote state: a pre-vote is purely advisory.
func (f *FSM) handlePreVoteRequest(from ServerID, req *PreVoteRequest) {
	granted := req.Term > f.currentTerm &&
		!f.heardFromLeaderRecently() &&
		f.logUpToDate(req.LastLogIndex, req.LastLogTerm)
	resp := PreVoteResponse{Term: f.currentTerm, Voter: f.id, Granted: granted}
	f.send(from, func(s *Send) { s.PreVoteResponse = &resp })
}

// heardFromLeaderRecently reports whether this follower has heard from a
// leader within the minimum election timeout, used to refuse pre-votes to
// a partitioned peer that would otherwise keep calling elections it
// cannot win once reconnected.
func (f *FSM) heardFromLeaderRecently() bool {
	return f.role == RoleFollower && f.electionElapsed < f.cfg.ElectionTick
}

func (f *FSM) handlePreVoteResponse(from ServerID, resp *PreVoteResponse) {
	if f.role != RolePreCandidate {
		return
	}
	if resp.Term > f.currentTerm {
		f.observeTerm(resp.Term)
		return
	}
	if resp.Granted {
		f.preVotesGranted[from] = true
		f.maybeBecomePreVoteWinner()
	}
}

func (f *FSM) broadcastVoteRequests() {
	req := VoteRequest{
		Term:         f.currentTerm,
		Candidate:    f.id,
		LastLogIndex: f.log.lastIndex(),
		LastLogTerm:  f.log.lastTerm(),
	}
	for _, id := range f.configuration.AllVoters() {
		if id == f.id {
			continue
		}
		r := req
		f.send(id, func(s *Send) { s.VoteRequest = &r })
	}
	f.maybeBecomeLeader()
}

func (f *FSM) maybeBecomeLeader() {
	if f.role != RoleCandidate {
		return
	}
	if f.configuration.HasVoteQuorum(f.votesGranted) {
		f.becomeLeader()
	}
}

func (f *FSM) handleVoteRequest(from ServerID, req *VoteRequest) {
	f.observeTerm(req.Term)

	granted := false
	if req.Term == f.currentTerm &&
		(f.votedFor == nil || *f.votedFor == req.Candidate) &&
		f.logUpToDate(req.LastLogIndex, req.LastLogTerm) {
		granted = true
		candidate := req.Candidate
		f.recordTermVote(f.currentTerm, &candidate)
		f.resetElectionTimeout()
	}
	resp := VoteResponse{Term: f.currentTerm, Voter: f.id, Granted: granted}
	f.send(from, func(s *Send) { s.VoteResponse = &resp })
}

func (f *FSM) handleVoteResponse(from ServerID, resp *VoteResponse) {
	if resp.Term > f.currentTerm {
		f.observeTerm(resp.Term)
		return
	}
	if f.role != RoleCandidate || resp.Term != f.currentTerm {
		return
	}
	if resp.Granted {
		f.votesGranted[from] = true
		f.maybeBecomeLeader()
	}
}
