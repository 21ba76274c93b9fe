package indicators

// VolumeClass classifies the last bar's volume relative to its 20-bar
// average.
type VolumeClass string

const (
	VolumeSurge  VolumeClass = "surge"
	VolumeDry    VolumeClass = "dry"
	VolumeNormal VolumeClass = "normal"
)

// VolumeProfile is the volume_ratio and classification for the last bar.
type VolumeProfile struct {
	Ratio float64
	Class VolumeClass
}

// Volume computes volume_ratio = last volume / 20-bar average, classified
// as surge (>2), dry (<0.5), or normal otherwise.
func Volume(bars []Bar) (VolumeProfile, error) {
	const window = 20
	if len(bars) < window {
		return VolumeProfile{}, ErrInsufficientData
	}

	last := len(bars) - 1
	var sum float64
	for i := last - window + 1; i <= last; i++ {
		sum += bars[i].Volume
	}
	avg := sum / float64(window)
	if avg == 0 {
		return VolumeProfile{Ratio: 0, Class: VolumeNormal}, nil
	}

	ratio := bars[last].Volume / avg
	class := VolumeNormal
	switch {
	case ratio > 2:
		class = VolumeSurge
	case ratio < 0.5:
		class = VolumeDry
	}
	return VolumeProfile{Ratio: ratio, Class: class}, nil
}
