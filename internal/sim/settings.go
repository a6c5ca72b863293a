package sim

// Settings are the display flags consulted by the driving loops. Only
// DisplayEnvironmentState affects the environment itself; the rest are read
// by search agents.
type Settings struct {
	DisplayBestActions        bool
	DisplayPUCTInfo           bool
	DisplayConsiderationStats bool
	DisplayEnvironmentState   bool
}

func DefaultSettings() Settings {
	return Settings{
		DisplayBestActions:        true,
		DisplayPUCTInfo:           false,
		DisplayConsiderationStats: true,
		DisplayEnvironmentState:   true,
	}
}

// DisableOutput turns every display flag off.
func (s *Settings) DisableOutput() {
	s.DisplayBestActions = false
	s.DisplayPUCTInfo = false
	s.DisplayConsiderationStats = false
	s.DisplayEnvironmentState = false
}
