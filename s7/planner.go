// Batching planner: groups read/write items into PDU-sized batches. New
// code -- the teacher has no analog (gos7 issues one item per call) --
// written from the estimator formulas spec.md §4.6 gives exactly, using
// the teacher's greedy-fill idiom (plcman/manager.go's poll() builds one
// flat read list per tick; this package instead emits N bounded batches).
package s7

const (
	readReqFixedOverhead  = 19
	readReqPerItem        = 12
	readRespFixedOverhead = 21
	readRespPerItemHeader = 4

	writeReqFixedOverhead  = 19
	writeReqPerItem        = 12
	writeDataPerItemHeader = 4
)

func ceilEven(n int) int {
	if n%2 == 0 {
		return n
	}
	return n + 1
}

// estimatedReadItemBytes returns the wire byte count of one item's decoded
// payload, used by both the response-size estimator and range-splitting.
func estimatedReadItemBytes(t DataType) int {
	if t.Kind == KindBool {
		return 1
	}
	return t.ByteWidth()
}

// PlanReadBatches splits tags into batches satisfying both the ≤255-item
// cap and the estimated request+response wire-size budget against
// pduSize. A tag whose own payload alone would overflow the budget is
// split into sequential range sub-reads of type Bytes(n); the caller
// (scheduler) is responsible for stitching those sub-results back
// together before decoding, since PlanReadBatches operates purely on
// Location/DataType pairs.
func PlanReadBatches(tags []Tag, pduSize uint16) [][]ReadItem {
	budget := int(pduSize)
	var batches [][]ReadItem
	var cur []ReadItem
	curReq := readReqFixedOverhead
	curResp := readRespFixedOverhead

	flush := func() {
		if len(cur) > 0 {
			batches = append(batches, cur)
			cur = nil
			curReq = readReqFixedOverhead
			curResp = readRespFixedOverhead
		}
	}

	for _, tag := range tags {
		items := splitReadItem(tag.Location, tag.Type, budget)
		for _, it := range items {
			itemBytes := estimatedReadItemBytes(it.Type)
			reqCost := readReqPerItem
			respCost := readRespPerItemHeader + ceilEven(itemBytes)

			if len(cur) >= 255 || curReq+reqCost > budget || curResp+respCost > budget {
				flush()
			}
			cur = append(cur, it)
			curReq += reqCost
			curResp += respCost
		}
	}
	flush()
	return batches
}

// splitReadItem returns a single-element slice for tags that fit within
// budget whole, or multiple Bytes(n) range reads (each independently
// within budget) for an oversized byte/array tag.
func splitReadItem(loc Location, t DataType, budget int) []ReadItem {
	whole := estimatedReadItemBytes(t)
	maxWhole := budget - readReqFixedOverhead - readReqPerItem
	if maxWhole2 := budget - readRespFixedOverhead - readRespPerItemHeader; maxWhole2 < maxWhole {
		maxWhole = maxWhole2
	}
	if whole <= maxWhole || maxWhole <= 0 {
		return []ReadItem{{Location: loc, Type: t}}
	}

	chunkSize := maxWhole
	if chunkSize < 1 {
		chunkSize = 1
	}
	var out []ReadItem
	for off := 0; off < whole; off += chunkSize {
		n := chunkSize
		if off+n > whole {
			n = whole - off
		}
		sub := loc
		sub.StartByte = loc.StartByte + off
		sub.BitOffset = -1
		sub.WidthBits = n * 8
		out = append(out, ReadItem{Location: sub, Type: Bytes(n)})
	}
	return out
}

// PlanWriteBatches groups WriteItems into ≤255-item, budget-bounded
// batches. Unlike reads, an oversized single write cannot be split
// transparently (splitting a write changes its atomicity), so a write
// whose own payload exceeds the PDU budget is returned alone in its own
// batch, never silently dropped; BuildWriteVarRequest does not check that
// batch against the PDU size.
func PlanWriteBatches(items []WriteItem, pduSize uint16) [][]WriteItem {
	budget := int(pduSize)
	var batches [][]WriteItem
	var cur []WriteItem
	curReq := writeReqFixedOverhead

	flush := func() {
		if len(cur) > 0 {
			batches = append(batches, cur)
			cur = nil
			curReq = writeReqFixedOverhead
		}
	}

	for _, it := range items {
		payloadBytes := estimatedReadItemBytes(it.Value.Type)
		cost := writeReqPerItem + writeDataPerItemHeader + ceilEven(payloadBytes)

		if len(cur) >= 255 || (len(cur) > 0 && curReq+cost > budget) {
			flush()
		}
		cur = append(cur, it)
		curReq += cost
	}
	flush()
	return batches
}
