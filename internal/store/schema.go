package store

import (
	"strings"
	"sync"

	"github.com/uspbroker/broker/internal/usp"
)

// memSchemaStore is a process-local SchemaStore: plain maps guarded by
// a mutex. Stdlib-only by design, not omission — the schema surface is
// entirely derived from each connected Service's GetSupportedDMResp and
// is rebuilt from scratch on every reconnect (schema discovery
// never treats it as durable state), so a database round-trip on every
// Get/Set lookup would only add latency the broker's hot path cannot
// afford.
type memSchemaStore struct {
	mu   sync.RWMutex
	rows map[int][]usp.SupportedObj // instanceID -> owned objects
}

func NewMemSchemaStore() SchemaStore {
	return &memSchemaStore{rows: make(map[int][]usp.SupportedObj)}
}

func (s *memSchemaStore) PutSchema(instanceID int, objs []usp.SupportedObj) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[instanceID] = objs
}

func (s *memSchemaStore) DropSchema(instanceID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, instanceID)
}

// Lookup walks every owned SupportedObj and returns the longest path
// that is an ancestor of (or equal to) path, matching the data model's
// rule that the most specific registered object owns a sub-path.
func (s *memSchemaStore) Lookup(path string) (int, usp.SupportedObj, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bestLen := -1
	var bestObj usp.SupportedObj
	bestInstance := 0
	found := false

	for instanceID, objs := range s.rows {
		for _, obj := range objs {
			if !pathUnder(obj.SupportedObjPath, path) {
				continue
			}
			if len(obj.SupportedObjPath) > bestLen {
				bestLen = len(obj.SupportedObjPath)
				bestObj = obj
				bestInstance = instanceID
				found = true
			}
		}
	}
	return bestInstance, bestObj, found
}

// pathUnder reports whether objPath is an ancestor of, or equal to,
// path, respecting '.' as the data model separator rather than doing a
// raw string-prefix match (so "Device.WiFi." does not wrongly claim
// "Device.WiFiRadio.1.").
func pathUnder(objPath, path string) bool {
	if objPath == path {
		return true
	}
	if !strings.HasSuffix(objPath, ".") {
		objPath += "."
	}
	return strings.HasPrefix(path, objPath)
}
