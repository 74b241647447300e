package export

// Column describes one field of a Dataset.
type Column struct {
	Key     string
	Title   string
	Numeric bool
	// Width is a relative weight used by the PDF layout. Zero means 1.
	Width float64
}

// Dataset is tabular export content plus optional footer lines.
type Dataset struct {
	Title   string
	Columns []Column
	Rows    []map[string]string
	Footer  []string
}

func (d Dataset) headers() []string {
	out := make([]string, len(d.Columns))
	for i, col := range d.Columns {
		if col.Title != "" {
			out[i] = col.Title
		} else {
			out[i] = col.Key
		}
	}
	return out
}
