package store

import (
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// BadgerTables backs RequestTable and SubscriptionTable with a single
// badger database, keyed by prefix per row kind. Grounded on the
// omni storage module's BadgerStore: badger.DefaultOptions, db.View/
// db.Update closures, and prefix iteration via NewIterator+Seek.
// Unlike the SchemaStore and PermissionStore (pure process-local
// caches, justified as stdlib maps), these two tables back state that
// must survive a Broker restart — an in-flight request or an
// unreconciled subscription row is exactly the kind of state a crash
// must not silently drop.
type BadgerTables struct {
	db *badger.DB
}

const (
	requestPrefix      = "req/"
	subscriptionPrefix = "sub/"
)

func OpenBadgerTables(dir string) (*BadgerTables, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger at %s: %w", dir, err)
	}
	return &BadgerTables{db: db}, nil
}

func (t *BadgerTables) Close() error {
	return t.db.Close()
}

// Requests returns a RequestTable view over the shared database.
func (t *BadgerTables) Requests() RequestTable { return requestTable{t} }

// Subscriptions returns a SubscriptionTable view over the shared
// database.
func (t *BadgerTables) Subscriptions() SubscriptionTable { return subscriptionTable{t} }

type requestTable struct{ t *BadgerTables }

func (r requestTable) Put(row RequestRow) error { return r.t.Put(row) }
func (r requestTable) Get(msgID string) (RequestRow, bool, error) { return r.t.Get(msgID) }
func (r requestTable) Delete(msgID string) error { return r.t.Delete(msgID) }
func (r requestTable) All() ([]RequestRow, error) { return r.t.All() }

type subscriptionTable struct{ t *BadgerTables }

func (s subscriptionTable) Put(row SubscriptionRow) error { return s.t.PutSubscription(row) }
func (s subscriptionTable) Get(subscriptionID string) (SubscriptionRow, bool, error) {
	return s.t.GetSubscription(subscriptionID)
}
func (s subscriptionTable) Delete(subscriptionID string) error {
	return s.t.DeleteSubscription(subscriptionID)
}
func (s subscriptionTable) ByServiceInstance(instanceID int) ([]SubscriptionRow, error) {
	return s.t.ByServiceInstance(instanceID)
}
func (s subscriptionTable) All() ([]SubscriptionRow, error) { return s.t.AllSubscriptions() }

func requestKey(msgID string) []byte {
	return []byte(requestPrefix + msgID)
}

func subscriptionKey(subscriptionID string) []byte {
	return []byte(subscriptionPrefix + subscriptionID)
}

// --- RequestTable --------------------------------------------------------

func (t *BadgerTables) Put(row RequestRow) error {
	buf, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("store: marshal request row: %w", err)
	}
	return t.db.Update(func(txn *badger.Txn) error {
		return txn.Set(requestKey(row.MsgID), buf)
	})
}

func (t *BadgerTables) Get(msgID string) (RequestRow, bool, error) {
	var row RequestRow
	found := false
	err := t.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(requestKey(msgID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &row)
		})
	})
	if err != nil {
		return RequestRow{}, false, fmt.Errorf("store: get request row %s: %w", msgID, err)
	}
	return row, found, nil
}

func (t *BadgerTables) Delete(msgID string) error {
	return t.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(requestKey(msgID))
	})
}

func (t *BadgerTables) All() ([]RequestRow, error) {
	var rows []RequestRow
	err := t.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(requestPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			var row RequestRow
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &row)
			}); err != nil {
				return err
			}
			rows = append(rows, row)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: list request rows: %w", err)
	}
	return rows, nil
}

// --- SubscriptionTable -----------------------------------------------------

func (t *BadgerTables) PutSubscription(row SubscriptionRow) error {
	buf, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("store: marshal subscription row: %w", err)
	}
	return t.db.Update(func(txn *badger.Txn) error {
		return txn.Set(subscriptionKey(row.SubscriptionID), buf)
	})
}

func (t *BadgerTables) GetSubscription(subscriptionID string) (SubscriptionRow, bool, error) {
	var row SubscriptionRow
	found := false
	err := t.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(subscriptionKey(subscriptionID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &row)
		})
	})
	if err != nil {
		return SubscriptionRow{}, false, fmt.Errorf("store: get subscription row %s: %w", subscriptionID, err)
	}
	return row, found, nil
}

func (t *BadgerTables) DeleteSubscription(subscriptionID string) error {
	return t.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(subscriptionKey(subscriptionID))
	})
}

func (t *BadgerTables) AllSubscriptions() ([]SubscriptionRow, error) {
	var rows []SubscriptionRow
	err := t.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(subscriptionPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			var row SubscriptionRow
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &row)
			}); err != nil {
				return err
			}
			rows = append(rows, row)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: list subscription rows: %w", err)
	}
	return rows, nil
}

func (t *BadgerTables) ByServiceInstance(instanceID int) ([]SubscriptionRow, error) {
	all, err := t.AllSubscriptions()
	if err != nil {
		return nil, err
	}
	var out []SubscriptionRow
	for _, row := range all {
		if row.ServiceInstance == instanceID {
			out = append(out, row)
		}
	}
	return out, nil
}
