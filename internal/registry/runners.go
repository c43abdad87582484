package registry

import "github.com/seantiz/gradbridge/internal/foreign"

// runnerSlot holds one dispatch address and the interpreter object that keeps
// the underlying callable alive.
type runnerSlot struct {
	addr   foreign.Address
	holder *foreign.Owned
}

// set installs a new runner and returns the holder it replaced, if any.
func (s *runnerSlot) set(addr foreign.Address, holder *foreign.Owned) *foreign.Owned {
	old := s.holder
	s.addr = addr
	s.holder = holder
	return old
}

// clear empties the slot and returns the holder to release.
func (s *runnerSlot) clear() *foreign.Owned {
	return s.set(foreign.NilAddress, nil)
}

func (s *runnerSlot) registered() bool {
	return s.addr != foreign.NilAddress
}
