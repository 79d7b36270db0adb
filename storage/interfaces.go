package storage

import "market-search/models"

// Backend is a key/value blob store. Get reports false for a missing key.
type Backend interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, value []byte) error
	Delete(key string) error
	Close() error
}

// ListingWriter is the interface any export format must satisfy.
type ListingWriter interface {
	Write(listings []*models.Listing) error
	Close() error
}
