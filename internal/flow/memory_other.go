//go:build !linux

package flow

// limitAddressSpace is a no-op outside Linux; the resident set guard still
// applies.
func limitAddressSpace(ceiling uint64) (restore func(), err error) {
	return func() {}, nil
}
