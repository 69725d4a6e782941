package hashfunction

import (
	"encoding/binary"
	"fmt"

	"github.com/go-faster/city"
	"github.com/spaolacci/murmur3"
)

type HashFunctionType int

/* Pre-defined hash functions */
const (
	HashFunctionIdent  = HashFunctionType(0)
	HashFunctionMurmur = HashFunctionType(1)
	HashFunctionCity   = HashFunctionType(2)
)

/* Shard key column types */
const (
	ColumnTypeInteger       = "integer"
	ColumnTypeUinteger      = "uinteger"
	ColumnTypeVarchar       = "varchar"
	ColumnTypeVarcharHashed = "varchar hashed"
	ColumnTypeUUID          = "uuid"
)

var (
	errUnknownColumnType = func(ctype string, hf HashFunctionType) error {
		return fmt.Errorf("unknown column type '%s' for hash function '%d'", ctype, hf)
	}
	errUnknownValueType = func(v interface{}, hf HashFunctionType) error {
		return fmt.Errorf("unknown type of value that the hash will be calculated from: %T for %d hash type", v, hf)
	}
)

// EncodeUInt64 encodes input as a uvarint padded to 8 bytes, or to
// binary.MaxVarintLen64 bytes for values that do not fit into 56 bits.
func EncodeUInt64(input uint64) []byte {
	const ENCODING_BYTES_BIG = binary.MaxVarintLen64
	const ENCODING_BYTES = 8
	const BOUND = 1 << 56 /* 72057594037927936 */

	sz := ENCODING_BYTES
	if input >= BOUND {
		sz = ENCODING_BYTES_BIG
	}

	buf := make([]byte, sz)
	binary.PutUvarint(buf, input)
	return buf
}

func ApplyMurmurHashFunction(input any, ctype string) (uint32, error) {
	switch ctype {
	case ColumnTypeInteger:
		if res, ok := input.(int64); ok {
			buf := EncodeUInt64(uint64(res))
			h := murmur3.Sum32(buf)
			return h, nil
		} else {
			return 0, fmt.Errorf("invalid type for murmurhash '%s'", ColumnTypeInteger)
		}
	case ColumnTypeUinteger:
		if res, ok := input.(uint64); ok {
			buf := EncodeUInt64(res)
			h := murmur3.Sum32(buf)
			return h, nil
		} else {
			return 0, fmt.Errorf("invalid type for murmurhash '%s'", ColumnTypeUinteger)
		}
	case ColumnTypeVarcharHashed, ColumnTypeVarchar, ColumnTypeUUID:
		switch v := input.(type) {
		case []byte:
			return murmur3.Sum32(v), nil
		case string:
			return murmur3.Sum32([]byte(v)), nil
		default:
			return 0, errUnknownValueType(input, HashFunctionMurmur)
		}
	default:
		return 0, errUnknownColumnType(ctype, HashFunctionMurmur)
	}
}

func ApplyCityHashFunction(input any, ctype string) (uint32, error) {
	switch ctype {
	case ColumnTypeInteger:
		if res, ok := input.(int64); ok {
			buf := EncodeUInt64(uint64(res))
			h := city.Hash32(buf)
			return h, nil
		} else {
			return 0, fmt.Errorf("invalid type for cityhash '%s'", ColumnTypeInteger)
		}
	case ColumnTypeUinteger:
		if res, ok := input.(uint64); ok {
			buf := EncodeUInt64(res)
			h := city.Hash32(buf)
			return h, nil
		} else {
			return 0, fmt.Errorf("invalid type for cityhash '%s'", ColumnTypeUinteger)
		}
	case ColumnTypeVarcharHashed, ColumnTypeVarchar, ColumnTypeUUID:
		switch v := input.(type) {
		case []byte:
			return city.Hash32(v), nil
		case string:
			return city.Hash32([]byte(v)), nil
		default:
			return 0, errUnknownValueType(input, HashFunctionCity)
		}
	default:
		return 0, errUnknownColumnType(ctype, HashFunctionCity)
	}
}

// ApplyHashFunction maps a shard key column value onto the uint64 routing space.
// Identity accepts only integer columns: string keys have no order-preserving
// projection onto that space.
func ApplyHashFunction(input any, ctype string, hf HashFunctionType) (uint64, error) {
	switch hf {
	case HashFunctionIdent:
		switch ctype {
		case ColumnTypeInteger:
			switch v := input.(type) {
			case int64:
				return uint64(v), nil
			case int:
				return uint64(v), nil
			case float64:
				/* numbers decoded from JSON documents */
				return uint64(int64(v)), nil
			}
		case ColumnTypeUinteger:
			if v, ok := input.(uint64); ok {
				return v, nil
			}
		default:
			return 0, errUnknownColumnType(ctype, hf)
		}
		return 0, errUnknownValueType(input, hf)
	case HashFunctionMurmur:
		v, err := ApplyMurmurHashFunction(normalizeInteger(input, ctype), ctype)
		return uint64(v), err
	case HashFunctionCity:
		v, err := ApplyCityHashFunction(normalizeInteger(input, ctype), ctype)
		return uint64(v), err
	default:
		return 0, fmt.Errorf("unknown hash function type: %d", hf)
	}
}

func normalizeInteger(input any, ctype string) any {
	if ctype != ColumnTypeInteger {
		return input
	}
	switch v := input.(type) {
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return input
}

// HashFunctionByName returns the corresponding HashFunctionType based on the given hash function name.
func HashFunctionByName(hfn string) (HashFunctionType, error) {
	switch hfn {
	case "identity", "ident", "":
		return HashFunctionIdent, nil
	case "murmur":
		return HashFunctionMurmur, nil
	case "city":
		return HashFunctionCity, nil
	default:
		return 0, fmt.Errorf("unknown hash function type: %s", hfn)
	}
}

// ToString converts a HashFunctionType to its corresponding string representation.
// If the input HashFunctionType is not recognized, an empty string is returned.
func ToString(hf HashFunctionType) string {
	switch hf {
	case HashFunctionIdent:
		return "identity"
	case HashFunctionMurmur:
		return "murmur"
	case HashFunctionCity:
		return "city"
	}
	return ""
}
