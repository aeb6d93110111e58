package datadirector

import "sync"

// Memory is an in-process Director backing test fixtures and the
// lobby's golden-path scenarios (spec §6). A load completes after
// Delay additional polls of AreUserDataBeingLoaded /
// AreCharacterDataBeingLoaded past the request that started it,
// defaulting to one tick — enough to exercise the lobby's "stay in the
// queue while loading" branch without needing real latency.
type Memory struct {
	mu    sync.Mutex
	Delay int

	users      map[string]*User
	userLoad   map[string]int
	chars      map[uint32]*Character
	charLoad   map[uint32]int
}

// NewMemory returns an empty Memory director with the default one-tick
// load delay.
func NewMemory() *Memory {
	return &Memory{
		Delay:    1,
		users:    make(map[string]*User),
		userLoad: make(map[string]int),
		chars:    make(map[uint32]*Character),
		charLoad: make(map[uint32]int),
	}
}

// SeedUser installs a user record as if previously persisted. It does
// not itself trigger or satisfy a pending load.
func (m *Memory) SeedUser(u User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := u
	m.users[u.Name] = &cp
}

// SeedCharacter installs a character record as if previously
// persisted.
func (m *Memory) SeedCharacter(c Character) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := c
	m.chars[c.UID] = &cp
}

func (m *Memory) RequestLoadUser(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, requested := m.userLoad[name]; requested {
		return
	}
	m.userLoad[name] = m.Delay
}

func (m *Memory) AreUserDataBeingLoaded(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	remaining, requested := m.userLoad[name]
	if !requested {
		return false
	}
	if remaining <= 0 {
		return false
	}
	m.userLoad[name] = remaining - 1
	return true
}

func (m *Memory) GetUser(name string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if remaining, requested := m.userLoad[name]; !requested || remaining > 0 {
		return User{}, ErrNotFound
	}
	u, ok := m.users[name]
	if !ok {
		return User{}, ErrNotFound
	}
	return *u, nil
}

func (m *Memory) RequestLoadCharacter(uid uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, requested := m.charLoad[uid]; requested {
		return
	}
	m.charLoad[uid] = m.Delay
}

func (m *Memory) AreCharacterDataBeingLoaded(uid uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	remaining, requested := m.charLoad[uid]
	if !requested {
		return false
	}
	if remaining <= 0 {
		delete(m.charLoad, uid)
		return false
	}
	m.charLoad[uid] = remaining - 1
	return true
}

func (m *Memory) GetCharacter(uid uint32) (Character, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chars[uid]
	if !ok {
		return Character{}, ErrNotFound
	}
	return *c, nil
}

var _ Director = (*Memory)(nil)
