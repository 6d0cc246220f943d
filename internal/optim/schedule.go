package optim

// Schedule is a coefficient that moves linearly from Start to End over the
// iteration budget. Start == End gives a static coefficient.
type Schedule struct {
	Start float64 `yaml:"start" mapstructure:"start"`
	End   float64 `yaml:"end" mapstructure:"end"`
}

func Constant(v float64) Schedule {
	return Schedule{Start: v, End: v}
}

func Linear(start, end float64) Schedule {
	return Schedule{Start: start, End: end}
}

// At returns the coefficient for iteration it of total.
func (s Schedule) At(it, total int) float64 {
	if total <= 1 || s.Start == s.End {
		return s.Start
	}
	if it >= total-1 {
		return s.End
	}
	frac := float64(it) / float64(total-1)
	return s.Start + (s.End-s.Start)*frac
}
