package sequencer

// interpolate updates every linear voltage channel for the current time.
// A channel holds its value until the time of its current breakpoint and
// moves its cursor forward once the next breakpoint has been reached.
func (s *Sequencer) interpolate() {
	for ch, table := range s.index.breakpoints {
		if len(table) < 2 {
			continue
		}
		i := s.cursors[ch]
		start, end := table[i], table[i+1]
		if s.time < start.at {
			continue
		}
		if end.at <= start.at {
			s.voltages[ch] = end.value
		} else {
			progress := (s.time - start.at) / (end.at - start.at)
			s.voltages[ch] = start.value + progress*(end.value-start.value)
		}
		if s.time >= end.at {
			s.cursors[ch] = i + 1
		}
	}
}

// resyncCursors points each channel's cursor at the last breakpoint at or
// before the current time.
func (s *Sequencer) resyncCursors() {
	for ch, table := range s.index.breakpoints {
		i := 0
		for i+1 < len(table)-1 && table[i+1].at <= s.time {
			i++
		}
		s.cursors[ch] = i
	}
}
