package simulator

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

const bucket = "simulator"

// store keeps the values written to simulated channels across restarts.
type store struct {
	db *bolt.DB
}

func newStore(db *bolt.DB) (*store, error) {
	st := store{db: db}

	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bucket %s: %v", bucket, err)
	}
	return &st, nil
}

func valueKey(device, channel string) []byte {
	return []byte(device + "/" + channel)
}

// SetValue saves a channel value as a json number.
func (s *store) SetValue(device, channel string, value float64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket %s not found", bucket)
		}

		data, err := json.Marshal(value)
		if err != nil {
			return err
		}
		return b.Put(valueKey(device, channel), data)
	})
}

// GetValue returns a saved channel value. ok is false when none was saved.
func (s *store) GetValue(device, channel string) (value float64, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket %s not found", bucket)
		}

		data := b.Get(valueKey(device, channel))
		if data == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(data, &value)
	})
	return value, ok, err
}
