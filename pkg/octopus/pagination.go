package octopus

import "time"

const slotLength = 30 * time.Minute

// pagesToFetch returns the page numbers (2..totalPages) whose expected
// half-hour slots are not already fully present in existing. Page 1 has
// already been fetched to learn the total count and the first slot time, so
// it is never included.
func pagesToFetch(totalCount, recordsPerPage int, firstFrom time.Time, existing map[time.Time]struct{}) []int {
	if recordsPerPage <= 0 {
		return nil
	}
	totalPages := (totalCount + recordsPerPage - 1) / recordsPerPage
	var out []int
	for page := 2; page <= totalPages; page++ {
		if !pageCovered(page, recordsPerPage, firstFrom, existing) {
			out = append(out, page)
		}
	}
	return out
}

// pageCovered reports whether every expected slot of a page exists in the
// given set of already-stored valid_from timestamps.
func pageCovered(page, recordsPerPage int, firstFrom time.Time, existing map[time.Time]struct{}) bool {
	for _, ts := range expectedPageTimes(page, recordsPerPage, firstFrom) {
		if _, ok := existing[ts.UTC()]; !ok {
			return false
		}
	}
	return true
}

// expectedPageTimes synthesizes the valid_from timestamps page N should
// contain. The API returns rates newest first, so page N covers
// recordsPerPage half-hour slots counted backward from the first record of
// page 1. Assumes strict half-hour granularity with no gaps; a gap in the
// published series makes a page look uncovered, which only costs an extra
// fetch.
func expectedPageTimes(page, recordsPerPage int, firstFrom time.Time) []time.Time {
	out := make([]time.Time, 0, recordsPerPage)
	start := (page - 1) * recordsPerPage
	for i := 0; i < recordsPerPage; i++ {
		out = append(out, firstFrom.Add(-time.Duration(start+i)*slotLength))
	}
	return out
}
