package room

// MembershipTracker keeps the live player list in arrival order
type MembershipTracker struct {
	players []Player
}

func NewMembershipTracker() *MembershipTracker {
	return &MembershipTracker{}
}

// Join adds the player unless an entry with the same ID exists. Duplicate deliveries are
// therefore harmless.
func (m *MembershipTracker) Join(p Player) bool {
	if m.indexOf(p.ID) >= 0 {
		return false
	}
	m.players = append(m.players, p)
	return true
}

// Leave removes the player with the given ID, if present
func (m *MembershipTracker) Leave(id PlayerID) bool {
	i := m.indexOf(id)
	if i < 0 {
		return false
	}
	m.players = append(m.players[:i], m.players[i+1:]...)
	return true
}

// Seed adds an initial roster, skipping IDs already present
func (m *MembershipTracker) Seed(players []Player) {
	for _, p := range players {
		m.Join(p)
	}
}

func (m *MembershipTracker) Contains(id PlayerID) bool {
	return m.indexOf(id) >= 0
}

func (m *MembershipTracker) Len() int {
	return len(m.players)
}

// Members returns a copy of the current list
func (m *MembershipTracker) Members() []Player {
	out := make([]Player, len(m.players))
	copy(out, m.players)
	return out
}

func (m *MembershipTracker) indexOf(id PlayerID) int {
	for i, p := range m.players {
		if p.ID == id {
			return i
		}
	}
	return -1
}
