package csvpipe

// Batcher groups typed rows into batches for committing. Implement this
// interface on the storage collaborator (auto-detected) or install one with
// WithBatcher when plain size-based batching is insufficient.
//
// The writer calls Batch whenever its pending buffer reaches the resolved
// batch size, and once more to flush whatever remains when the row sequence
// is exhausted.
//
// Ready-made batchers cover the common cases:
//   - [SizeBatcher]: fixed number of rows per batch (the default)
//   - [WeightedBatcher]: batch by cumulative weight, e.g. SQL bind-parameter
//     or payload-size limits
//   - [GroupByField]: rows sharing a column value land in the same batch,
//     e.g. one commit per partition key
type Batcher interface {
	// Batch groups rows into batches for committing.
	Batch(rows []Row) [][]Row
}

// BatcherFunc adapts a plain function to the [Batcher] interface.
type BatcherFunc func(rows []Row) [][]Row

func (f BatcherFunc) Batch(rows []Row) [][]Row {
	return f(rows)
}

// SizeBatcher creates batches with at most maxSize rows each.
//
// Example:
//
//	batcher := csvpipe.SizeBatcher(500)
func SizeBatcher(maxSize int) Batcher {
	return BatcherFunc(func(rows []Row) [][]Row {
		if len(rows) == 0 || maxSize <= 0 {
			return nil
		}
		return chunkRows(rows, maxSize)
	})
}

// WeightedBatcher creates batches whose cumulative weight does not exceed
// maxWeight. The weigher returns the weight of a single row; rows accumulate
// until adding the next one would cross the cap, at which point a new batch
// starts. A single row heavier than maxWeight still ships in its own batch,
// never dropped.
//
// Example:
//
//	// Each row binds one parameter per schema field; stay under the
//	// driver's 65535 parameter limit.
//	batcher := csvpipe.WeightedBatcher(func(r csvpipe.Row) int { return r.Len() }, 65535)
func WeightedBatcher(weigher func(Row) int, maxWeight int) Batcher {
	return BatcherFunc(func(rows []Row) [][]Row {
		if len(rows) == 0 || maxWeight <= 0 {
			return nil
		}

		var batches [][]Row
		var current []Row
		weight := 0

		for _, row := range rows {
			w := weigher(row)
			if len(current) > 0 && weight+w > maxWeight {
				batches = append(batches, current)
				current = nil
				weight = 0
			}
			current = append(current, row)
			weight += w
		}

		if len(current) > 0 {
			batches = append(batches, current)
		}
		return batches
	})
}

// GroupByField creates batches by grouping rows that share a value in the
// named column, keeping each group's rows in input order. Groups larger than
// maxGroupSize are split. Rows missing the column fall into one shared
// group.
//
// Example:
//
//	// One commit per expiration date, at most 200 rows each.
//	batcher := csvpipe.GroupByField("expiration_date", 200)
func GroupByField(field string, maxGroupSize int) Batcher {
	return BatcherFunc(func(rows []Row) [][]Row {
		if len(rows) == 0 || maxGroupSize <= 0 {
			return nil
		}

		var order []string
		groups := make(map[string][]Row)
		for _, row := range rows {
			key := ""
			if v, ok := row.Value(field); ok {
				key = v.String()
			}
			if _, seen := groups[key]; !seen {
				order = append(order, key)
			}
			groups[key] = append(groups[key], row)
		}

		var batches [][]Row
		for _, key := range order {
			batches = append(batches, chunkRows(groups[key], maxGroupSize)...)
		}
		return batches
	})
}

// chunkRows splits rows into sub-slices of at most size elements.
func chunkRows(rows []Row, size int) [][]Row {
	if len(rows) == 0 || size <= 0 {
		return nil
	}

	numChunks := (len(rows) + size - 1) / size
	out := make([][]Row, 0, numChunks)

	for i := 0; i < len(rows); i += size {
		end := min(i+size, len(rows))
		out = append(out, rows[i:end])
	}

	return out
}
