// Package record defines the fixed record layout shared by the MPSC and
// SPSC ring buffers: an 8-byte length+type header followed by payload,
// plus the sub-offset and alignment helpers built on that layout.
//
//	+0  int32  length  (total bytes including header; negated while claimed)
//	+4  int32  type    (>=1 for user messages; PaddingType for padding)
//	+8  bytes  payload
package record

// HeaderLength is the fixed size of a record header in bytes. Record
// alignment equals HeaderLength.
const HeaderLength = 8

// PaddingType marks a record as padding: well-formed but skipped by the
// consumer. It is the only type value less than the minimum user type.
const PaddingType int32 = -1

// InsufficientCapacity is returned by a ring's claim/try-claim path when
// the ring cannot satisfy a reservation after a fresh observation of
// head.
const InsufficientCapacity = -2

// MinUserType is the smallest valid user-supplied record type; 0 and
// negative values (other than PaddingType) are reserved.
const MinUserType = 1

// LengthOffset returns the offset of the length field of the record at
// recordIndex.
func LengthOffset(recordIndex int) int { return recordIndex }

// TypeOffset returns the offset of the type field of the record at
// recordIndex.
func TypeOffset(recordIndex int) int { return recordIndex + 4 }

// PayloadOffset returns the offset of the payload of the record at
// recordIndex.
func PayloadOffset(recordIndex int) int { return recordIndex + 8 }

// Align rounds n up to the next multiple of HeaderLength.
func Align(n int) int { return (n + HeaderLength - 1) &^ (HeaderLength - 1) }

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool { return n > 0 && n&(n-1) == 0 }
