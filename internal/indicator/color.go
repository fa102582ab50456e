package indicator

// RGB is an LED color.
type RGB struct {
	R, G, B uint8
}

var (
	Off     = RGB{0, 0, 0}
	Red     = RGB{255, 0, 0}
	Green   = RGB{0, 255, 0}
	Blue    = RGB{0, 0, 255}
	Yellow  = RGB{255, 255, 0}
	Orange  = RGB{255, 165, 0}
	White   = RGB{255, 255, 255}
	DimBlue = RGB{0, 0, 100}
)

func (t Temperature) Color() RGB {
	return [...]RGB{Green, Yellow, Orange, Red}[t]
}

func (l Load) Color() RGB {
	return [...]RGB{Blue, Green, Yellow, Red}[l]
}

func (d DiskActivity) Color() RGB {
	return [...]RGB{DimBlue, White, Red}[d]
}

func (h Health) Color() RGB {
	return [...]RGB{Green, Yellow, Red}[h]
}

// Colors returns the per-channel colors, indexed by Channel.
func (s States) Colors() [ChannelCount]RGB {
	return [ChannelCount]RGB{
		ChannelTemperature:  s.Temperature.Color(),
		ChannelLoad:         s.Load.Color(),
		ChannelDiskActivity: s.DiskActivity.Color(),
		ChannelHealth:       s.Health.Color(),
	}
}
