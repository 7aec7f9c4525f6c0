package interfaces

// Hashable is implemented by anything with a canonical byte serialization
// and a digest derived from it. Both methods are pure functions of the
// current field values.
type Hashable interface {
	Bytes() []byte
	CalculateHash() [32]byte
}
