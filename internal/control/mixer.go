package control

// USat is the mixer's output ceiling, matching PID.c's U_SAT(x, 0.7f)
// applied to every motor command before the offset remap.
const USat = 0.7

// mix combines pitch, roll, and throttle into the four X-frame motor
// commands. When yawEnabled, yaw subtracts from motors 0 and 2 and adds
// to motors 1 and 3, matching PIDTask's yaw-regulation branch.
func mix(pitch, roll, throttle, yaw float64, yawEnabled bool) [4]float64 {
	m := [4]float64{
		+pitch + roll + throttle,
		-pitch + roll + throttle,
		-pitch - roll + throttle,
		+pitch - roll + throttle,
	}
	if yawEnabled {
		m[0] -= yaw
		m[1] += yaw
		m[2] -= yaw
		m[3] += yaw
	}
	for i := range m {
		m[i] = sat(m[i], USat)
	}
	return m
}

func sat(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}
