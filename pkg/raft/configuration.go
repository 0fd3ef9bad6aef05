package raft

// voterIDs returns the voting members of a server set, in no particular
// order.
func voterIDs(servers []ServerInfo) []ServerID {
	ids := make([]ServerID, 0, len(servers))
	for _, s := range servers {
		if s.Voter {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

func majorityMet(ids []ServerID, have map[ServerID]Index, want Index) bool {
	if len(ids) == 0 {
		return true
	}
	need := len(ids)/2 + 1
	count := 0
	for _, id := range ids {
		if have[id] >= want {
			count++
		}
	}
	return count >= need
}

// HasQuorum reports whether every active configuration set (both C_old and
// C_new during a joint transition) has a majority of its voters with
// match[id] >= index.
func (c Configuration) HasQuorum(match map[ServerID]Index, index Index) bool {
	if !majorityMet(voterIDs(c.Servers), match, index) {
		return false
	}
	if c.IsJoint() && !majorityMet(voterIDs(c.Old), match, index) {
		return false
	}
	return true
}

func majorityGranted(ids []ServerID, granted map[ServerID]bool) bool {
	if len(ids) == 0 {
		return true
	}
	need := len(ids)/2 + 1
	count := 0
	for _, id := range ids {
		if granted[id] {
			count++
		}
	}
	return count >= need
}

// HasVoteQuorum reports whether the votes (or pre-votes) recorded in
// granted form a majority of each active configuration set.
func (c Configuration) HasVoteQuorum(granted map[ServerID]bool) bool {
	if !majorityGranted(voterIDs(c.Servers), granted) {
		return false
	}
	if c.IsJoint() && !majorityGranted(voterIDs(c.Old), granted) {
		return false
	}
	return true
}

// ContainsVoter reports whether id is a voting member of either set. A
// member demoted to learner does not count: a leader demoted that way
// must step down the same as one removed outright.
func (c Configuration) ContainsVoter(id ServerID) bool {
	for _, s := range c.Servers {
		if s.ID == id && s.Voter {
			return true
		}
	}
	for _, s := range c.Old {
		if s.ID == id && s.Voter {
			return true
		}
	}
	return false
}

// AllVoters returns the union of voting members across both sets of a
// (possibly joint) configuration, deduplicated.
func (c Configuration) AllVoters() []ServerID {
	seen := make(map[ServerID]bool)
	var ids []ServerID
	add := func(list []ServerInfo) {
		for _, s := range list {
			if !s.Voter || seen[s.ID] {
				continue
			}
			seen[s.ID] = true
			ids = append(ids, s.ID)
		}
	}
	add(c.Servers)
	add(c.Old)
	return ids
}
