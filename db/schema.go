package db

import (
	"encoding/binary"
	"errors"
)

// CurrentSchemaVersion is bumped whenever the layout of a bucket changes.
const CurrentSchemaVersion uint64 = 2

// CheckSchema stamps a fresh database with the current schema version and refuses databases
// written with another one.
func CheckSchema(d DB) error {
	return d.Update(func(txn Transaction) error {
		var have uint64
		err := txn.Get(SchemaVersion.Key(), func(b []byte) error {
			have = binary.BigEndian.Uint64(b)
			return nil
		})
		if errors.Is(err, ErrKeyNotFound) {
			return txn.Set(SchemaVersion.Key(), Uint64Key(CurrentSchemaVersion))
		} else if err != nil {
			return err
		}

		if have != CurrentSchemaVersion {
			return &SchemaMismatchError{Have: have, Want: CurrentSchemaVersion}
		}
		return nil
	})
}
