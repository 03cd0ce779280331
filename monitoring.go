package bdb

// Stats is a snapshot of DB activity counters.
type Stats struct {
	Reads      uint64
	Writes     uint64
	Saves      uint64
	SaveErrors uint64
	Decodes    uint64

	// LastSize is the size in bytes of the most recently written document.
	LastSize int64
}

func (db *DB) Stats() Stats {
	return Stats{
		Reads:      db.readCount.Load(),
		Writes:     db.writeCount.Load(),
		Saves:      db.saveCount.Load(),
		SaveErrors: db.saveErrorCount.Load(),
		Decodes:    db.decodeCount.Load(),
		LastSize:   db.lastSize.Load(),
	}
}
