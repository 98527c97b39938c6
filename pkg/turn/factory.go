package turn

import (
	"fmt"
	"log/slog"
)

// Detector kinds accepted by New.
const (
	KindEnglish      = "english"
	KindMultilingual = "multilingual"
	KindRemote       = "remote"
	KindNone         = "none"
)

// Config selects and configures a detector.
type Config struct {
	Kind      string // english, multilingual, remote or none
	ModelPath string // model directory, see DefaultModelPath
	RemoteURL string // required for remote; also wraps a local kind when set
	Logger    *slog.Logger
}

// New builds the configured detector. KindNone returns a nil Detector, which
// callers treat as "always assume the turn is complete".
func New(cfg Config) (Detector, error) {
	kind := cfg.Kind
	if kind == "" {
		kind = KindEnglish
	}

	switch kind {
	case KindNone:
		return nil, nil
	case KindRemote:
		if cfg.RemoteURL == "" {
			return nil, fmt.Errorf("remote turn detector requires LIVEKIT_REMOTE_EOT_URL")
		}
		return NewRemoteDetector(cfg.RemoteURL, nil, cfg.Logger), nil
	case KindEnglish, KindMultilingual:
		local, err := NewONNXDetector(kind, cfg.ModelPath, cfg.Logger)
		if err != nil {
			return nil, err
		}
		if cfg.RemoteURL != "" {
			return NewRemoteDetector(cfg.RemoteURL, local, cfg.Logger), nil
		}
		return local, nil
	default:
		return nil, fmt.Errorf("invalid turn detector %q (supported: english|multilingual|remote|none)", kind)
	}
}
