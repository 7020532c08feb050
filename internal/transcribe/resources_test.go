package transcribe

// stubMonitor scripts host load patterns; function fields override the
// defaults of an idle, roomy machine.
type stubMonitor struct {
	cpuFunc  func() (float64, error)
	diskFunc func(string) (uint64, error)
	memFunc  func() (uint64, error)
}

var _ ResourceMonitor = (*stubMonitor)(nil)

func (s *stubMonitor) CPUPercent() (float64, error) {
	if s.cpuFunc != nil {
		return s.cpuFunc()
	}
	return 0, nil
}

func (s *stubMonitor) FreeDiskBytes(path string) (uint64, error) {
	if s.diskFunc != nil {
		return s.diskFunc(path)
	}
	return 1 << 40, nil
}

func (s *stubMonitor) FreeMemoryBytes() (uint64, error) {
	if s.memFunc != nil {
		return s.memFunc()
	}
	return 8 << 30, nil
}
