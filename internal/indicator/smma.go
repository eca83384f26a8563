package indicator

// smma is Wilder smoothing: the first value is the mean of period samples,
// then avg = (avg*(period-1) + x) / period.
type smma struct {
	period  int
	count   int
	sum     float64
	current float64
}

func newSMMA(period int) smma {
	return smma{period: period}
}

// update feeds x and reports whether the average is defined.
func (s *smma) update(x float64) (float64, bool) {
	if s.period < 1 {
		return 0, false
	}
	s.count++

	if s.count <= s.period {
		s.sum += x
		if s.count == s.period {
			s.current = s.sum / float64(s.period)
			return s.current, true
		}
		return 0, false
	}

	s.current = (s.current*float64(s.period-1) + x) / float64(s.period)
	return s.current, true
}

func (s *smma) reset() {
	s.count = 0
	s.sum = 0
	s.current = 0
}
