package filing

import "sync"

// keyedMutex serializes work per string key. Entries are dropped once no
// goroutine holds or waits on them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

// Lock blocks until key is free and returns the matching unlock func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func recordKey(kind ReturnKind, clientID ClientID, period Period) string {
	return string(kind) + "|" + string(clientID) + "|" + period.String()
}

func recordIDKey(kind ReturnKind, id RecordID) string {
	return string(kind) + "#" + string(id)
}

func assignmentKey(clientID ClientID, period Period) string {
	return "assign|" + string(clientID) + "|" + period.String()
}
