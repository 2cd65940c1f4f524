package ingest

import (
	"strings"

	"github.com/agentic-research/catalyst/api"
	"github.com/apache/arrow-go/v18/arrow"
)

// StorageType is the engine column type a dataset column is created with.
type StorageType string

const (
	StorageInteger   StorageType = "INTEGER"
	StorageBigint    StorageType = "BIGINT"
	StorageDouble    StorageType = "DOUBLE"
	StorageTimestamp StorageType = "TIMESTAMP"
	StorageVarchar   StorageType = "VARCHAR"
)

// MapColumnType picks the storage type for a column. Temporal columns with an
// integer dtype are bare calendar years and stay integers; everything the
// analyzer could not classify is stored as text.
func MapColumnType(col api.Column) StorageType {
	switch col.Type {
	case api.TypeTemporal:
		if isIntegerLike(col.DType) {
			return StorageInteger
		}
		return StorageTimestamp
	case api.TypeNumerical:
		if isIntegerLike(col.DType) {
			return StorageBigint
		}
		return StorageDouble
	default:
		return StorageVarchar
	}
}

func isIntegerLike(dtype string) bool {
	d := strings.ToLower(strings.TrimSpace(dtype))
	return strings.HasPrefix(d, "int") || strings.HasPrefix(d, "uint") || d == "bigint"
}

// ArrowType is the column type used for this storage type in ingest batches.
func (t StorageType) ArrowType() arrow.DataType {
	switch t {
	case StorageInteger, StorageBigint:
		return arrow.PrimitiveTypes.Int64
	case StorageDouble:
		return arrow.PrimitiveTypes.Float64
	case StorageTimestamp:
		return arrow.FixedWidthTypes.Timestamp_us
	default:
		return arrow.BinaryTypes.String
	}
}
