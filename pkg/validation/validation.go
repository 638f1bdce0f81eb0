package validation

import (
	"fmt"
	"net/mail"
	"strings"
)

const (
	MinPageSize = 1
	MaxPageSize = 100

	MinWorkers = 1
	MaxWorkers = 20

	MaxTitleLength = 100
)

func ValidateWorkerCount(workers int) error {
	if workers < MinWorkers || workers > MaxWorkers {
		return fmt.Errorf("worker count must be between %d and %d, got %d", MinWorkers, MaxWorkers, workers)
	}
	return nil
}

// ValidateID checks board, comment and user ids.
func ValidateID(kind string, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%s ID must be a positive integer, got %d", kind, id)
	}
	return nil
}

func ValidatePage(page, size int) error {
	if page < 0 {
		return fmt.Errorf("page cannot be negative, got %d", page)
	}
	if size < MinPageSize || size > MaxPageSize {
		return fmt.Errorf("page size must be between %d and %d, got %d", MinPageSize, MaxPageSize, size)
	}
	return nil
}

func ValidateNonEmptyString(fieldName, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	return nil
}

func ValidateTitle(title string) error {
	if err := ValidateNonEmptyString("title", title); err != nil {
		return err
	}
	if n := len([]rune(title)); n > MaxTitleLength {
		return fmt.Errorf("title must be at most %d characters, got %d", MaxTitleLength, n)
	}
	return nil
}

func ValidateSortType(sortType string) error {
	validSorts := map[string]bool{
		"latest":  true,
		"popular": true,
	}
	if !validSorts[sortType] {
		return fmt.Errorf("invalid sort type: %s (must be one of: latest, popular)", sortType)
	}
	return nil
}

// ValidateBoardType accepts the categories in validTypes, compared case-insensitively.
func ValidateBoardType(boardType string, validTypes []string) error {
	for _, v := range validTypes {
		if strings.EqualFold(strings.ReplaceAll(boardType, "-", "_"), v) {
			return nil
		}
	}
	return fmt.Errorf("invalid board type: %s (must be one of: %s)", boardType, strings.Join(validTypes, ", "))
}

func ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email, "@") {
		return fmt.Errorf("invalid email address: %q", email)
	}
	return nil
}
