package syncer

// KindProgress is the displayable rebuild progress for one document kind.
type KindProgress struct {
	Indexed int64
	Total   int64
	Percent int
}

// Progress is a point-in-time view of both kinds plus the working flag.
type Progress struct {
	Topics  KindProgress
	Posts   KindProgress
	Working bool
}

// progressOf turns a raw counter and a set cardinality into display
// figures. Counters drift: removals decrement whether or not the entry
// existed, and other processes may be writing too. The view clamps instead
// of reconciling: an empty set shows zeros, a counter at or past the total
// shows exactly the total, and a negative counter shows zero.
func progressOf(counter, total int64) KindProgress {
	if total <= 0 {
		return KindProgress{}
	}
	pct := counter * 100 / total
	if pct >= 100 {
		return KindProgress{Indexed: total, Total: total, Percent: 100}
	}
	if counter < 0 {
		counter = 0
	}
	if pct < 0 {
		pct = 0
	}
	return KindProgress{Indexed: counter, Total: total, Percent: int(pct)}
}
