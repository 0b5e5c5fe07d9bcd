package server

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const (
	maxAddressLength = 128
	maxPromptLength  = 280
	maxTitleLength   = 140
	maxDrawingBytes  = 2 * 1024 * 1024
)

var validatorOnce sync.Once

func registerValidators() {
	validatorOnce.Do(func() {
		engine, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = engine.RegisterValidation("address", func(fl validator.FieldLevel) bool {
			_, err := validateAddress(fl.Field().String())
			return err == nil
		})
		_ = engine.RegisterValidation("prompt", func(fl validator.FieldLevel) bool {
			_, err := validatePrompt(fl.Field().String())
			return err == nil
		})
		_ = engine.RegisterValidation("drawing", func(fl validator.FieldLevel) bool {
			return validateDrawing(fl.Field().String()) == nil
		})
		_ = engine.RegisterValidation("title", func(fl validator.FieldLevel) bool {
			_, err := validateTitle(fl.Field().String())
			return err == nil
		})
	})
}

// validateAddress accepts wallet-style identifiers: hex addresses, ENS
// names and plain handles. Addresses are used verbatim as participant
// keys, so surrounding whitespace is rejected rather than trimmed.
func validateAddress(address string) (string, error) {
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		return "", errors.New("address is required")
	}
	if trimmed != address {
		return "", errors.New("address must not have surrounding whitespace")
	}
	if len(address) > maxAddressLength {
		return "", fmt.Errorf("address must be %d characters or fewer", maxAddressLength)
	}
	for _, r := range address {
		if r >= 'a' && r <= 'z' {
			continue
		}
		if r >= 'A' && r <= 'Z' {
			continue
		}
		if r >= '0' && r <= '9' {
			continue
		}
		if r == '-' || r == '_' || r == '.' || r == ':' {
			continue
		}
		return "", errors.New("address contains unsupported characters")
	}
	return address, nil
}

// validatePrompt allows an empty prompt so partial turn updates can clear
// it; LockTurn enforces non-empty.
func validatePrompt(text string) (string, error) {
	trimmed := normalizeText(text)
	if trimmed == "" {
		return "", nil
	}
	if len(trimmed) > maxPromptLength {
		return "", fmt.Errorf("prompt must be %d characters or fewer", maxPromptLength)
	}
	if !isSafeText(trimmed) {
		return "", errors.New("prompt contains unsupported characters")
	}
	return trimmed, nil
}

func validateDrawing(data string) error {
	if len(data) > maxDrawingBytes {
		return fmt.Errorf("drawing must be %d bytes or fewer", maxDrawingBytes)
	}
	if data != "" && !strings.HasPrefix(data, "data:image/") {
		return errors.New("drawing must be an image data URI")
	}
	return nil
}

func validateTitle(text string) (string, error) {
	trimmed := normalizeText(text)
	if trimmed == "" {
		return "", nil
	}
	return validateText("title", trimmed, maxTitleLength)
}

func validateText(label, text string, maxLen int) (string, error) {
	trimmed := normalizeText(text)
	if trimmed == "" {
		return "", fmt.Errorf("%s is required", label)
	}
	if len(trimmed) > maxLen {
		return "", fmt.Errorf("%s must be %d characters or fewer", label, maxLen)
	}
	if !isSafeText(trimmed) {
		return "", fmt.Errorf("%s contains unsupported characters", label)
	}
	return trimmed, nil
}

func normalizeText(text string) string {
	fields := strings.Fields(strings.TrimSpace(text))
	return strings.Join(fields, " ")
}

func isSafeText(text string) bool {
	for _, r := range text {
		if r > 127 {
			return false
		}
		if r >= 'a' && r <= 'z' {
			continue
		}
		if r >= 'A' && r <= 'Z' {
			continue
		}
		if r >= '0' && r <= '9' {
			continue
		}
		switch r {
		case ' ', '-', '_', '\'', '"', '.', ',', '!', '?', ':', ';', '&', '(', ')', '/', '+', '#':
			continue
		default:
			return false
		}
	}
	return true
}
