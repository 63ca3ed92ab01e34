package interfaces

// KVStore is the shared persistent store every participant reads and
// writes. A missing key is reported with ok=false, not an error.
type KVStore interface {
	Get(key string) (value []byte, ok bool, err error)
	Set(key string, value []byte) error
	Remove(key string) error
}

// Swapper is implemented by stores that can replace a value atomically.
// A nil old value means the key must be absent; a nil new value removes it.
type Swapper interface {
	CompareAndSwap(key string, old, new []byte) (swapped bool, err error)
}
