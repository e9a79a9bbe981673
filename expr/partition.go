package expr

import (
	"fmt"
)

// PartitionPredicate builds the JSON for a partition routing predicate:
// column modulus nparts equals part. A part of -1 matches no tuple whose
// column value is non-negative and yields the empty predicate used for
// skipped partitions; the modulus of a negative value is zero or negative.
func PartitionPredicate(column, nparts, part int) string {
	return fmt.Sprintf(`{"TYPE": "COMPARE_EQUAL", "VALUE_TYPE": "BOOLEAN",
 "LEFT": {"TYPE": "OPERATOR_MODULUS", "VALUE_TYPE": "BIGINT",
  "LEFT": {"TYPE": "VALUE_TUPLE", "VALUE_TYPE": "BIGINT", "COLUMN_IDX": %d},
  "RIGHT": {"TYPE": "VALUE_CONSTANT", "VALUE_TYPE": "BIGINT", "VALUE": %d}},
 "RIGHT": {"TYPE": "VALUE_CONSTANT", "VALUE_TYPE": "BIGINT", "VALUE": %d}}`,
		column, nparts, part)
}
