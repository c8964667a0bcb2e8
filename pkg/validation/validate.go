package validation

import (
	"errors"
	"fmt"
	"strings"

	"duochat/pkg/models"
)

// Rules bound inbound send payloads. Zero values fall back to defaults.
type Rules struct {
	// MaxTextBytes caps text/caption length; 0 means DefaultMaxTextBytes.
	MaxTextBytes int64
	// Kinds lists the accepted content kinds; empty means the built-in set.
	Kinds []string
}

const DefaultMaxTextBytes = 64 << 10

var rules Rules

// SetRules installs the process-wide validation rules.
func SetRules(r Rules) { rules = r }

// ValidateMessage checks an inbound message before persistence. Redacted
// messages are store-internal and never pass through here.
func ValidateMessage(m models.Message) error {
	var errs []string
	if m.Sender == "" {
		errs = append(errs, "sender is required")
	}
	if m.Conversation == "" {
		errs = append(errs, "conversation is required")
	}
	if !kindAllowed(m.Kind) {
		errs = append(errs, fmt.Sprintf("unsupported kind: %q", m.Kind))
	}
	switch m.Kind {
	case models.KindText:
		if strings.TrimSpace(m.Text) == "" {
			errs = append(errs, "text is required for text messages")
		}
	case models.KindImage, models.KindFile:
		if m.FileURL == "" {
			errs = append(errs, "file_url is required for media messages")
		}
	}
	max := rules.MaxTextBytes
	if max <= 0 {
		max = DefaultMaxTextBytes
	}
	if int64(len(m.Text)) > max {
		errs = append(errs, fmt.Sprintf("text exceeds %d bytes", max))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func kindAllowed(kind string) bool {
	allowed := rules.Kinds
	if len(allowed) == 0 {
		allowed = []string{models.KindText, models.KindImage, models.KindFile}
	}
	for _, k := range allowed {
		if k == kind {
			return true
		}
	}
	return false
}
