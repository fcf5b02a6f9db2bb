package worker

import "sort"

// PackRows assigns reads to non-overlapping rows. Reads that appear in
// prevRows keep their row so the layout does not jump between renders; new
// reads go into the first row with room, leaving at least gap between
// neighbours. A row emptied by vanished reads keeps its place until new
// reads fill it; only trailing empty rows are dropped.
//
// Reads are matched by ID. Reads without an ID never match a previous row
// and are never treated as duplicates.
func PackRows(reads []Read, prevRows [][]Read, gap float64) [][]Read {
	index := make(map[string]int, len(reads))
	for i, r := range reads {
		if r.ID == "" {
			continue
		}
		if _, dup := index[r.ID]; !dup {
			index[r.ID] = i
		}
	}

	placed := make(map[string]bool, len(reads))
	rows := make([][]Read, 0, len(prevRows))
	for _, prev := range prevRows {
		row := make([]Read, 0, len(prev))
		for _, old := range prev {
			i, ok := index[old.ID]
			if !ok || placed[old.ID] {
				continue
			}
			row = append(row, reads[i])
			placed[old.ID] = true
		}
		rows = append(rows, row)
	}

	fresh := make([]Read, 0, len(reads)-len(placed))
	for _, r := range reads {
		if r.ID != "" {
			if placed[r.ID] {
				continue
			}
			placed[r.ID] = true
		}
		fresh = append(fresh, r)
	}
	sort.SliceStable(fresh, func(i, j int) bool { return fresh[i].From < fresh[j].From })

	for _, r := range fresh {
		target := -1
		for i := range rows {
			if fits(rows[i], r, gap) {
				target = i
				break
			}
		}
		if target < 0 {
			rows = append(rows, nil)
			target = len(rows) - 1
		}
		rows[target] = append(rows[target], r)
	}

	for len(rows) > 0 && len(rows[len(rows)-1]) == 0 {
		rows = rows[:len(rows)-1]
	}
	for _, row := range rows {
		sort.SliceStable(row, func(i, j int) bool { return row[i].From < row[j].From })
	}
	return rows
}

func fits(row []Read, r Read, gap float64) bool {
	for _, other := range row {
		if r.From < other.To+gap && other.From < r.To+gap {
			return false
		}
	}
	return true
}
