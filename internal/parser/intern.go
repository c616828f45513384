package parser

import "sync"

// MaxInternPoolSize limits the intern pool. Past the limit strings are
// returned as-is.
const MaxInternPoolSize = 100000

// StringIntern deduplicates repeated strings such as topic names and
// payload keys, which recur on every message of a recording.
type StringIntern struct {
	mu   sync.RWMutex
	pool map[string]string
}

// NewStringIntern creates a new string interner.
func NewStringIntern() *StringIntern {
	return &StringIntern{
		pool: make(map[string]string, 256),
	}
}

// Intern returns the canonical copy of s.
func (si *StringIntern) Intern(s string) string {
	si.mu.RLock()
	if pooled, ok := si.pool[s]; ok {
		si.mu.RUnlock()
		return pooled
	}
	full := len(si.pool) >= MaxInternPoolSize
	si.mu.RUnlock()
	if full {
		return s
	}

	si.mu.Lock()
	defer si.mu.Unlock()
	if pooled, ok := si.pool[s]; ok {
		return pooled
	}
	if len(si.pool) >= MaxInternPoolSize {
		return s
	}
	si.pool[s] = s
	return s
}

// InternBytes interns b without allocating when it is already pooled.
func (si *StringIntern) InternBytes(b []byte) string {
	si.mu.RLock()
	// The compiler does not allocate for string(b) in a map index.
	if pooled, ok := si.pool[string(b)]; ok {
		si.mu.RUnlock()
		return pooled
	}
	si.mu.RUnlock()
	return si.Intern(string(b))
}

// Len returns the number of unique strings in the pool.
func (si *StringIntern) Len() int {
	si.mu.RLock()
	defer si.mu.RUnlock()
	return len(si.pool)
}

// Clear removes all interned strings.
func (si *StringIntern) Clear() {
	si.mu.Lock()
	defer si.mu.Unlock()
	si.pool = make(map[string]string, 256)
}

// internKeys rebuilds nested maps so every key is drawn from the pool.
func (si *StringIntern) internKeys(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[si.Intern(k)] = si.internKeys(val)
		}
		return out
	case []interface{}:
		for i := range t {
			t[i] = si.internKeys(t[i])
		}
		return t
	}
	return v
}
