package rules

// DefaultEncoding is used when a ScanContext carries no encoding.
const DefaultEncoding = "utf-8"

// ScanContext is handed to every rule call of one scan. The engine builds it
// once per scan and never mutates it afterwards; rules must treat the maps as
// read-only.
type ScanContext struct {
	// RootPath is the absolute scan root.
	RootPath string

	// Encoding is the default text encoding used to decode files.
	Encoding string

	// Config is the scan-wide configuration as seen by rules.
	Config map[string]any

	// Extra carries engine-to-rule and rule-to-rule side channel values,
	// for example "scan_id".
	Extra map[string]any
}

// NewScanContext returns a context with non-nil maps.
func NewScanContext(root, encoding string, cfg, extra map[string]any) *ScanContext {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	return &ScanContext{
		RootPath: root,
		Encoding: encoding,
		Config:   cloneMap(cfg),
		Extra:    cloneMap(extra),
	}
}

// ConfigString returns Config[key] when it is a string.
func (sc *ScanContext) ConfigString(key string) string {
	if sc == nil {
		return ""
	}
	s, _ := sc.Config[key].(string)
	return s
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
